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
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/provideplatform/checkout/common"
)

// AddressLength is the length in bytes of ledger addresses and hashes
const AddressLength = 32

// Address is a 32-byte ledger account address, rendered as base58 text
type Address [AddressLength]byte

// Hash is a 32-byte ledger hash (merkle roots, leaf hashes, blockhashes), rendered as base58 text
type Hash [AddressLength]byte

// Signature is an opaque base58-encoded ledger transaction signature
type Signature string

// AddressFromString parses the given base58 string into an Address
func AddressFromString(addr string) (Address, error) {
	var address Address
	raw := base58.Decode(addr)
	if len(raw) != AddressLength {
		return address, fmt.Errorf("failed to parse address; expected %d decoded bytes, resolved %d", AddressLength, len(raw))
	}
	copy(address[:], raw)
	return address, nil
}

// MustAddress parses the given base58 string into an Address, panicking on failure;
// reserved for service configuration resolved at process start
func MustAddress(addr string) Address {
	address, err := AddressFromString(addr)
	if err != nil {
		common.Log.Panicf("failed to parse configured address %s; %s", addr, err.Error())
	}
	return address
}

// NewAddress returns an Address wrapping the given 32 bytes
func NewAddress(raw []byte) (Address, error) {
	var address Address
	if len(raw) != AddressLength {
		return address, fmt.Errorf("failed to initialize address; expected %d bytes, resolved %d", AddressLength, len(raw))
	}
	copy(address[:], raw)
	return address, nil
}

// String returns the base58 representation of the address
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes returns the raw address bytes
func (a Address) Bytes() []byte {
	return a[:]
}

// IsZero returns true if the address is the zero value
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalJSON renders the address as a base58 string
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses the address from a base58 string
func (a *Address) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	addr, err := AddressFromString(str)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// HashFromString parses the given base58 string into a Hash
func HashFromString(hash string) (Hash, error) {
	addr, err := AddressFromString(hash)
	if err != nil {
		return Hash{}, err
	}
	return Hash(addr), nil
}

// NewHash returns a Hash wrapping the given 32 bytes
func NewHash(raw []byte) (Hash, error) {
	addr, err := NewAddress(raw)
	if err != nil {
		return Hash{}, err
	}
	return Hash(addr), nil
}

// String returns the base58 representation of the hash
func (h Hash) String() string {
	return base58.Encode(h[:])
}

// Bytes returns the raw hash bytes
func (h Hash) Bytes() []byte {
	return h[:]
}

// Equals compares the hash byte-exact against another hash
func (h Hash) Equals(other Hash) bool {
	return bytes.Equal(h[:], other[:])
}

// MarshalJSON renders the hash as a base58 string
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON parses the hash from a base58 string
func (h *Hash) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	hash, err := HashFromString(str)
	if err != nil {
		return err
	}
	*h = hash
	return nil
}

// AccountMeta describes one account referenced by an instruction
type AccountMeta struct {
	Address    Address `json:"address"`
	IsSigner   bool    `json:"is_signer"`
	IsWritable bool    `json:"is_writable"`
}

// Instruction is a single program invocation within a transaction
type Instruction struct {
	ProgramID Address        `json:"program_id"`
	Accounts  []*AccountMeta `json:"accounts"`
	Data      []byte         `json:"data"`
}

// AppendReadonlyAccount appends a non-signing, non-writable key to the
// instruction account list; used to attach order reference tags
func (i *Instruction) AppendReadonlyAccount(addr Address) {
	i.Accounts = append(i.Accounts, &AccountMeta{
		Address:    addr,
		IsSigner:   false,
		IsWritable: false,
	})
}

// References returns true if any account of the instruction matches the given address
func (i *Instruction) References(addr Address) bool {
	for _, account := range i.Accounts {
		if account.Address == addr {
			return true
		}
	}
	return false
}
