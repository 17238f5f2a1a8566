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
	"crypto/sha256"
	"errors"

	"github.com/provideplatform/checkout/ledger"
)

// ErrProofInvalid indicates local merkle verification failed; transaction
// construction fails closed on this condition
var ErrProofInvalid = errors.New("inclusion proof invalid")

// InclusionProof proves the presence of one leaf in a merkle tree; siblings
// are ordered leaf-to-root
type InclusionProof struct {
	LeafIndex uint64        `json:"leaf_index"`
	Leaf      ledger.Hash   `json:"leaf"`
	Root      ledger.Hash   `json:"root"`
	Siblings  []ledger.Hash `json:"siblings"`
}

// CombineHashes is the pairwise hash combinator shared with the ledger's
// tree program
func CombineHashes(left, right ledger.Hash) ledger.Hash {
	digest := sha256.New()
	digest.Write(left[:])
	digest.Write(right[:])

	var combined ledger.Hash
	copy(combined[:], digest.Sum(nil))
	return combined
}

// Fold recomputes the root implied by the proof, combining the leaf hash
// with each sibling in order; the corresponding bit of the leaf index
// selects left/right concatenation at each level
func (p *InclusionProof) Fold() ledger.Hash {
	node := p.Leaf
	index := p.LeafIndex
	for _, sibling := range p.Siblings {
		if index%2 == 0 {
			node = CombineHashes(node, sibling)
		} else {
			node = CombineHashes(sibling, node)
		}
		index /= 2
	}
	return node
}

// Verify returns true if the proof is consistent with the given root,
// compared byte-exact. A false result is advisory; a stale-but-valid
// historical root can fail this comparison while remaining acceptable
// within the ledger tree's changelog window, so final authority rests with
// the ledger program itself. Purely functional, no side effects.
func Verify(root ledger.Hash, p *InclusionProof) bool {
	if p == nil {
		return false
	}
	return p.Fold().Equals(root)
}

// VerifyWithState bounds-checks the proof against the tree's capacity
// before verifying it against the tree's current root
func VerifyWithState(state *ledger.TreeState, p *InclusionProof) bool {
	if state == nil || p == nil {
		return false
	}
	if p.LeafIndex >= state.Capacity() {
		return false
	}
	if uint32(len(p.Siblings)) > state.MaxDepth {
		return false
	}
	return Verify(state.Root, p)
}

// Trim returns a copy of the proof with the last canopyDepth siblings
// dropped; those levels are cached on-ledger and must be omitted from
// submitted proofs. The verifier and the tree program agree on this
// convention or valid ownership proofs would be rejected.
func (p *InclusionProof) Trim(canopyDepth uint32) *InclusionProof {
	trimmed := &InclusionProof{
		LeafIndex: p.LeafIndex,
		Leaf:      p.Leaf,
		Root:      p.Root,
		Siblings:  p.Siblings,
	}
	if canopyDepth == 0 {
		return trimmed
	}
	if uint32(len(p.Siblings)) <= canopyDepth {
		trimmed.Siblings = []ledger.Hash{}
		return trimmed
	}
	trimmed.Siblings = p.Siblings[:uint32(len(p.Siblings))-canopyDepth]
	return trimmed
}
