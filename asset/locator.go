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

package asset

import (
	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/ledger"
	"github.com/provideplatform/checkout/proof"
)

// TreeReader reads concurrent merkle tree account state directly from the
// ledger, independent of the asset index
type TreeReader interface {
	TreeState(tree ledger.Address) (*ledger.TreeState, error)
}

// Locator resolves the compressed assets an owner verifiably holds in the
// configured loyalty tree. The index is treated as a cache that can be
// stale; every candidate is re-verified client-side against tree state read
// from the ledger before it is surfaced. Candidate state is scoped to a
// single call and never shared across orders.
type Locator struct {
	index  IndexClient
	reader TreeReader
	tree   ledger.Address
}

// LocatorFactory initializes an asset locator for the given loyalty tree
func LocatorFactory(index IndexClient, reader TreeReader, tree ledger.Address) *Locator {
	return &Locator{
		index:  index,
		reader: reader,
		tree:   tree,
	}
}

// FindOwnedAssets returns the verified compressed assets the given owner
// holds in the loyalty tree. Candidates failing the ownership, compression
// or proof checks are dropped silently as transient index inconsistencies.
// Index transport failures surface as ErrIndexUnavailable; callers must not
// apply a discount in that case. Callers must not depend on result ordering
// beyond "first verified asset, if any."
func (l *Locator) FindOwnedAssets(owner ledger.Address) ([]*VerifiedAsset, error) {
	candidates, err := l.index.AssetsByOwner(owner)
	if err != nil {
		common.Log.Warningf("failed to query asset index for owner %s; %s", owner, err.Error())
		return nil, ErrIndexUnavailable
	}

	verified := make([]*VerifiedAsset, 0)
	for _, candidate := range candidates {
		if candidate.Tree != l.tree {
			continue
		}

		match, err := l.verify(owner, candidate)
		if err != nil {
			if err == ErrIndexUnavailable {
				return nil, err
			}
			common.Log.Debugf("dropped candidate asset %s for owner %s; %s", candidate.ID, owner, err.Error())
			continue
		}

		verified = append(verified, match)
	}

	return verified, nil
}

// verify re-fetches the candidate's proof and checks ownership plus
// client-side merkle verification against the tree root read independently
// from the ledger
func (l *Locator) verify(owner ledger.Address, candidate *CompressedAsset) (*VerifiedAsset, error) {
	if err := candidate.Actionable(owner, l.tree); err != nil {
		return nil, err
	}

	indexProof, err := l.index.AssetProof(candidate.ID)
	if err != nil {
		common.Log.Warningf("failed to fetch proof for asset %s; %s", candidate.ID, err.Error())
		return nil, ErrIndexUnavailable
	}

	state, err := l.reader.TreeState(candidate.Tree)
	if err != nil {
		common.Log.Warningf("failed to read tree account %s; %s", candidate.Tree, err.Error())
		return nil, ErrIndexUnavailable
	}

	inclusionProof := &proof.InclusionProof{
		LeafIndex: candidate.LeafIndex,
		Leaf:      indexProof.Leaf,
		Root:      indexProof.Root,
		Siblings:  indexProof.Siblings,
	}

	if !proof.VerifyWithState(state, inclusionProof) {
		return nil, proof.ErrProofInvalid
	}

	return &VerifiedAsset{
		Asset:     candidate,
		Proof:     inclusionProof,
		TreeState: state,
	}, nil
}
