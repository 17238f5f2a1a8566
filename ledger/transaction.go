/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ledger

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
)

const signatureLength = 64
const maxInstructionAccounts = 255

// Transaction is an atomic unit of one or more instructions anchored to a
// recent blockhash; the fee payer is the sole required signer of the
// transactions constructed by this service
type Transaction struct {
	RecentBlockhash Hash           `json:"recent_blockhash"`
	FeePayer        Address        `json:"fee_payer"`
	Instructions    []*Instruction `json:"instructions"`
}

// AddInstruction appends the given instruction; instruction order is
// preserved by serialization and relied upon by downstream history parsers
func (t *Transaction) AddInstruction(ix *Instruction) {
	t.Instructions = append(t.Instructions, ix)
}

// Serialize renders the deterministic wire encoding of the transaction
// without any signatures applied; a single zeroed signature slot is emitted
// for the fee payer so the blob can be signed and submitted out-of-band.
//
// layout:
//   u8 signature count || count * 64 zero bytes
//   blockhash(32) || fee payer(32)
//   u8 instruction count
//   per instruction:
//     program id(32) || u8 account count
//     per account: address(32) || u8 flags (bit 0 signer, bit 1 writable)
//     u16le data length || data
func (t *Transaction) Serialize() ([]byte, error) {
	if len(t.Instructions) == 0 {
		return nil, fmt.Errorf("failed to serialize transaction; no instructions")
	}
	if len(t.Instructions) > maxInstructionAccounts {
		return nil, fmt.Errorf("failed to serialize transaction; instruction count %d exceeds limit", len(t.Instructions))
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(1) // fee payer signature slot, unsigned
	buf.Write(make([]byte, signatureLength))

	buf.Write(t.RecentBlockhash[:])
	buf.Write(t.FeePayer[:])

	buf.WriteByte(uint8(len(t.Instructions)))
	for _, ix := range t.Instructions {
		if len(ix.Accounts) > maxInstructionAccounts {
			return nil, fmt.Errorf("failed to serialize instruction; account count %d exceeds limit", len(ix.Accounts))
		}

		buf.Write(ix.ProgramID[:])
		buf.WriteByte(uint8(len(ix.Accounts)))
		for _, account := range ix.Accounts {
			buf.Write(account.Address[:])
			var flags uint8
			if account.IsSigner {
				flags |= 0x01
			}
			if account.IsWritable {
				flags |= 0x02
			}
			buf.WriteByte(flags)
		}

		if len(ix.Data) > 0xffff {
			return nil, fmt.Errorf("failed to serialize instruction; %d-byte data exceeds limit", len(ix.Data))
		}
		var dataLen [2]byte
		binary.LittleEndian.PutUint16(dataLen[:], uint16(len(ix.Data)))
		buf.Write(dataLen[:])
		buf.Write(ix.Data)
	}

	return buf.Bytes(), nil
}

// SerializeBase64 renders the unsigned transaction blob as base64 for
// transport to the payer wallet
func (t *Transaction) SerializeBase64() (*string, error) {
	raw, err := t.Serialize()
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	return &encoded, nil
}

// DeserializeTransaction parses a serialized transaction blob; signature
// slots are consumed and discarded
func DeserializeTransaction(raw []byte) (*Transaction, error) {
	buf := bytes.NewReader(raw)

	sigCount, err := buf.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction; %s", err.Error())
	}
	if _, err := buf.Seek(int64(sigCount)*signatureLength, 1); err != nil {
		return nil, fmt.Errorf("failed to parse transaction signature slots; %s", err.Error())
	}

	tx := &Transaction{}
	if _, err := io.ReadFull(buf, tx.RecentBlockhash[:]); err != nil {
		return nil, fmt.Errorf("failed to parse transaction blockhash; %s", err.Error())
	}
	if _, err := io.ReadFull(buf, tx.FeePayer[:]); err != nil {
		return nil, fmt.Errorf("failed to parse transaction fee payer; %s", err.Error())
	}

	ixCount, err := buf.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction instruction count; %s", err.Error())
	}

	tx.Instructions = make([]*Instruction, 0, ixCount)
	for i := uint8(0); i < ixCount; i++ {
		ix := &Instruction{}
		if _, err := io.ReadFull(buf, ix.ProgramID[:]); err != nil {
			return nil, fmt.Errorf("failed to parse instruction program id; %s", err.Error())
		}

		acctCount, err := buf.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("failed to parse instruction account count; %s", err.Error())
		}

		ix.Accounts = make([]*AccountMeta, 0, acctCount)
		for j := uint8(0); j < acctCount; j++ {
			account := &AccountMeta{}
			if _, err := io.ReadFull(buf, account.Address[:]); err != nil {
				return nil, fmt.Errorf("failed to parse instruction account; %s", err.Error())
			}
			flags, err := buf.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("failed to parse instruction account flags; %s", err.Error())
			}
			account.IsSigner = flags&0x01 != 0
			account.IsWritable = flags&0x02 != 0
			ix.Accounts = append(ix.Accounts, account)
		}

		var dataLen [2]byte
		if _, err := io.ReadFull(buf, dataLen[:]); err != nil {
			return nil, fmt.Errorf("failed to parse instruction data length; %s", err.Error())
		}
		ix.Data = make([]byte, binary.LittleEndian.Uint16(dataLen[:]))
		if len(ix.Data) > 0 {
			if _, err := io.ReadFull(buf, ix.Data); err != nil {
				return nil, fmt.Errorf("failed to parse instruction data; %s", err.Error())
			}
		}

		tx.Instructions = append(tx.Instructions, ix)
	}

	return tx, nil
}
