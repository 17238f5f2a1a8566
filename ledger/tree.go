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
	"encoding/binary"
	"fmt"
)

const treeAccountVersion = 1
const treeAccountDataLength = 1 + 4 + 4 + 4 + 32

// TreeState is the on-ledger state of a concurrent merkle tree account. The
// root advances with every accepted leaf mutation; the canopy caches the top
// CanopyDepth proof levels on-ledger, so submitted proofs omit that many
// trailing siblings. MaxBufferSize is the changelog window within which
// slightly stale roots remain acceptable to the tree program.
type TreeState struct {
	Root          Hash   `json:"root"`
	CanopyDepth   uint32 `json:"canopy_depth"`
	MaxDepth      uint32 `json:"max_depth"`
	MaxBufferSize uint32 `json:"max_buffer_size"`
}

// Capacity returns the maximum number of leaves the tree can hold
func (s *TreeState) Capacity() uint64 {
	return uint64(1) << s.MaxDepth
}

// ParseTreeAccountData parses the serialized tree account header as read
// from the ledger.
//
// layout: u8 version || u32le max depth || u32le max buffer size ||
//         u32le canopy depth || current root(32)
func ParseTreeAccountData(data []byte) (*TreeState, error) {
	if len(data) < treeAccountDataLength {
		return nil, fmt.Errorf("failed to parse tree account; expected at least %d bytes, resolved %d", treeAccountDataLength, len(data))
	}
	if data[0] != treeAccountVersion {
		return nil, fmt.Errorf("failed to parse tree account; unsupported version %d", data[0])
	}

	state := &TreeState{
		MaxDepth:      binary.LittleEndian.Uint32(data[1:5]),
		MaxBufferSize: binary.LittleEndian.Uint32(data[5:9]),
		CanopyDepth:   binary.LittleEndian.Uint32(data[9:13]),
	}
	copy(state.Root[:], data[13:45])

	if state.MaxDepth == 0 || state.MaxDepth > 30 {
		return nil, fmt.Errorf("failed to parse tree account; max depth %d out of range", state.MaxDepth)
	}
	if state.CanopyDepth >= state.MaxDepth {
		return nil, fmt.Errorf("failed to parse tree account; canopy depth %d exceeds max depth %d", state.CanopyDepth, state.MaxDepth)
	}

	return state, nil
}

// SerializeTreeAccountData renders the tree account header; used by tests
// and local tree emulation
func SerializeTreeAccountData(state *TreeState) []byte {
	data := make([]byte, treeAccountDataLength)
	data[0] = treeAccountVersion
	binary.LittleEndian.PutUint32(data[1:5], state.MaxDepth)
	binary.LittleEndian.PutUint32(data[5:9], state.MaxBufferSize)
	binary.LittleEndian.PutUint32(data[9:13], state.CanopyDepth)
	copy(data[13:45], state.Root[:])
	return data
}
