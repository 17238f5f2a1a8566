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
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// well-known program addresses on the target ledger
var (
	// TokenProgramID is the stablecoin token program
	TokenProgramID = MustAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// AssetProgramID is the compressed asset (merkle leaf ownership) program
	AssetProgramID = MustAddress("BGUMAp9Gq7iTEuizy4pqaxsTyUCBK68MDfK752saRPUY")

	// CompressionProgramID is the account compression program managing concurrent merkle trees
	CompressionProgramID = MustAddress("cmtDvXumGCrqC1Age74AVPhSRVXJMd8PJS91L8KbNCK")

	// NoopProgramID is the log wrapper invoked by the compression program
	NoopProgramID = MustAddress("noopb9bkMVfRPU8AsbpTUg8AQkHtKwMYZiFUjNRtMmV")
)

// tokenTransferCheckedOpcode is the token program opcode for a
// decimals-checked transfer
const tokenTransferCheckedOpcode = 12

// assetTransferDiscriminator is the 8-byte dispatch tag of the compressed
// asset transfer instruction (sha256("global:transfer")[0:8])
var assetTransferDiscriminator = []byte{0xa3, 0x34, 0xc8, 0xe7, 0x8c, 0x03, 0x45, 0xba}

// DeriveTokenAccount derives the canonical associated token account address
// for the given owner and mint
func DeriveTokenAccount(owner, mint Address) Address {
	digest := sha256.New()
	digest.Write([]byte("token-account"))
	digest.Write(owner[:])
	digest.Write(mint[:])
	digest.Write(TokenProgramID[:])

	var derived Address
	copy(derived[:], digest.Sum(nil))
	return derived
}

// NewTokenTransferInstruction constructs a decimals-checked stablecoin
// transfer from the payer's token account to the destination token account;
// amount is expressed in base units of the mint
func NewTokenTransferInstruction(payer, mint, source, destination Address, amount uint64, decimals uint8) *Instruction {
	data := make([]byte, 10)
	data[0] = tokenTransferCheckedOpcode
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals

	return &Instruction{
		ProgramID: TokenProgramID,
		Accounts: []*AccountMeta{
			{Address: source, IsSigner: false, IsWritable: true},
			{Address: mint, IsSigner: false, IsWritable: false},
			{Address: destination, IsSigner: false, IsWritable: true},
			{Address: payer, IsSigner: true, IsWritable: false},
		},
		Data: data,
	}
}

// ParseTokenTransferInstruction extracts the transferred amount and decimals
// from a token transfer instruction; returns an error if the instruction is
// not a decimals-checked transfer
func ParseTokenTransferInstruction(ix *Instruction) (amount uint64, decimals uint8, err error) {
	if ix.ProgramID != TokenProgramID {
		return 0, 0, fmt.Errorf("failed to parse token transfer; instruction targets program %s", ix.ProgramID)
	}
	if len(ix.Data) != 10 || ix.Data[0] != tokenTransferCheckedOpcode {
		return 0, 0, fmt.Errorf("failed to parse token transfer; unexpected instruction data")
	}
	return binary.LittleEndian.Uint64(ix.Data[1:9]), ix.Data[9], nil
}

// AssetTransferParams carries everything the asset program requires to move
// a compressed asset leaf to a new owner
type AssetTransferParams struct {
	Tree          Address
	TreeAuthority Address
	LeafOwner     Address
	LeafDelegate  Address
	NewLeafOwner  Address
	Root          Hash
	DataHash      Hash
	CreatorHash   Hash
	LeafIndex     uint64
	ProofPath     []Hash
}

// NewAssetTransferInstruction constructs the compressed asset transfer
// instruction; the proof path is appended to the account list as
// non-signing, non-writable keys and must already be canopy-trimmed. The
// leaf index doubles as nonce and index per the tree's concurrency model.
func NewAssetTransferInstruction(params *AssetTransferParams) *Instruction {
	data := new(bytes.Buffer)
	data.Write(assetTransferDiscriminator)
	data.Write(params.Root[:])
	data.Write(params.DataHash[:])
	data.Write(params.CreatorHash[:])

	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], params.LeafIndex)
	data.Write(nonce[:])

	var index [4]byte
	binary.LittleEndian.PutUint32(index[:], uint32(params.LeafIndex))
	data.Write(index[:])

	ix := &Instruction{
		ProgramID: AssetProgramID,
		Accounts: []*AccountMeta{
			{Address: params.TreeAuthority, IsSigner: false, IsWritable: false},
			{Address: params.LeafOwner, IsSigner: true, IsWritable: false},
			{Address: params.LeafDelegate, IsSigner: false, IsWritable: false},
			{Address: params.NewLeafOwner, IsSigner: false, IsWritable: false},
			{Address: params.Tree, IsSigner: false, IsWritable: true},
			{Address: NoopProgramID, IsSigner: false, IsWritable: false},
			{Address: CompressionProgramID, IsSigner: false, IsWritable: false},
		},
		Data: data.Bytes(),
	}

	for _, node := range params.ProofPath {
		ix.AppendReadonlyAccount(Address(node))
	}

	return ix
}
