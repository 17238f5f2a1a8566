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

package proof

import (
	"fmt"
	"sync"

	"github.com/provideplatform/checkout/ledger"
)

// FixedDepthTree is an in-memory merkle tree of fixed depth using the same
// pairwise combinator as the ledger's tree program; unoccupied leaves hold
// the zero hash. It mirrors the ledger-side tree closely enough to generate
// and cross-check inclusion proofs locally.
type FixedDepthTree struct {
	depth  uint32
	leaves []ledger.Hash
	zeros  []ledger.Hash

	mutex sync.RWMutex
}

// NewFixedDepthTree initializes an empty tree of the given depth
func NewFixedDepthTree(depth uint32) (*FixedDepthTree, error) {
	if depth == 0 || depth > 30 {
		return nil, fmt.Errorf("failed to initialize fixed depth tree; depth %d out of range", depth)
	}

	zeros := make([]ledger.Hash, depth+1)
	for i := uint32(1); i <= depth; i++ {
		zeros[i] = CombineHashes(zeros[i-1], zeros[i-1])
	}

	return &FixedDepthTree{
		depth:  depth,
		leaves: make([]ledger.Hash, 0),
		zeros:  zeros,
	}, nil
}

// Depth returns the fixed depth of the tree
func (t *FixedDepthTree) Depth() uint32 {
	return t.depth
}

// Capacity returns the maximum number of leaves the tree can hold
func (t *FixedDepthTree) Capacity() uint64 {
	return uint64(1) << t.depth
}

// Insert appends the given leaf hash at the next available index
func (t *FixedDepthTree) Insert(leaf ledger.Hash) (uint64, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if uint64(len(t.leaves)) >= t.Capacity() {
		return 0, fmt.Errorf("failed to insert leaf; tree at capacity %d", t.Capacity())
	}

	t.leaves = append(t.leaves, leaf)
	return uint64(len(t.leaves) - 1), nil
}

// Set overwrites the leaf at the given index; models a leaf ownership
// mutation accepted by the ledger program
func (t *FixedDepthTree) Set(index uint64, leaf ledger.Hash) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if index >= uint64(len(t.leaves)) {
		return fmt.Errorf("failed to set leaf %d; %d leaves present", index, len(t.leaves))
	}

	t.leaves[index] = leaf
	return nil
}

func (t *FixedDepthTree) leafAt(index uint64) ledger.Hash {
	if index < uint64(len(t.leaves)) {
		return t.leaves[index]
	}
	return t.zeros[0]
}

// nodeAt computes the node hash at the given level and index; level 0 is
// the leaf level
func (t *FixedDepthTree) nodeAt(level uint32, index uint64) ledger.Hash {
	if level == 0 {
		return t.leafAt(index)
	}

	// levels fully to the right of the occupied leaves collapse to zeros
	if index<<level >= uint64(len(t.leaves)) {
		return t.zeros[level]
	}

	left := t.nodeAt(level-1, index*2)
	right := t.nodeAt(level-1, index*2+1)
	return CombineHashes(left, right)
}

// Root returns the current tree root
func (t *FixedDepthTree) Root() ledger.Hash {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.nodeAt(t.depth, 0)
}

// ProofAt generates the full inclusion proof for the leaf at the given
// index, siblings ordered leaf-to-root
func (t *FixedDepthTree) ProofAt(index uint64) (*InclusionProof, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if index >= t.Capacity() {
		return nil, fmt.Errorf("failed to generate proof; index %d out of bounds", index)
	}

	siblings := make([]ledger.Hash, 0, t.depth)
	nodeIndex := index
	for level := uint32(0); level < t.depth; level++ {
		siblings = append(siblings, t.nodeAt(level, nodeIndex^1))
		nodeIndex /= 2
	}

	return &InclusionProof{
		LeafIndex: index,
		Leaf:      t.leafAt(index),
		Root:      t.nodeAt(t.depth, 0),
		Siblings:  siblings,
	}, nil
}

// State renders the tree as ledger tree account state with the given
// canopy depth and buffer size
func (t *FixedDepthTree) State(canopyDepth, maxBufferSize uint32) *ledger.TreeState {
	return &ledger.TreeState{
		Root:          t.Root(),
		CanopyDepth:   canopyDepth,
		MaxDepth:      t.depth,
		MaxBufferSize: maxBufferSize,
	}
}
