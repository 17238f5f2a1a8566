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
	"errors"

	"github.com/provideplatform/checkout/ledger"
	"github.com/provideplatform/checkout/proof"
)

// ErrIndexUnavailable indicates the external asset index was unreachable or
// errored; recoverable, callers conservatively apply no discount
var ErrIndexUnavailable = errors.New("asset index unavailable")

// ErrAssetNotOwned indicates a candidate asset failed the ownership check
var ErrAssetNotOwned = errors.New("asset not owned by claimed owner")

// ErrAssetNotCompressed indicates a candidate asset is not a compressed
// merkle leaf asset and is not actionable by this service
var ErrAssetNotCompressed = errors.New("asset is not compressed")

// CompressedAsset is a non-fungible asset whose ownership record lives as a
// leaf in a concurrent merkle tree rather than as its own ledger account
type CompressedAsset struct {
	ID          ledger.Address  `json:"id"`
	Owner       ledger.Address  `json:"owner"`
	Delegate    *ledger.Address `json:"delegate,omitempty"`
	Tree        ledger.Address  `json:"tree"`
	LeafIndex   uint64          `json:"leaf_index"`
	DataHash    ledger.Hash     `json:"data_hash"`
	CreatorHash ledger.Hash     `json:"creator_hash"`
	Compressed  bool            `json:"compressed"`
}

// Actionable returns nil if the asset can be acted on by this service:
// the asset must be compressed and live in the given loyalty tree, and its
// recorded owner must match the claimed owner
func (a *CompressedAsset) Actionable(owner, tree ledger.Address) error {
	if !a.Compressed {
		return ErrAssetNotCompressed
	}
	if a.Tree != tree || a.Owner != owner {
		return ErrAssetNotOwned
	}
	return nil
}

// DelegateOrOwner returns the asset delegate, defaulting to the owner when
// no delegate is set
func (a *CompressedAsset) DelegateOrOwner() ledger.Address {
	if a.Delegate != nil && !a.Delegate.IsZero() {
		return *a.Delegate
	}
	return a.Owner
}

// VerifiedAsset is a compressed asset whose ownership survived client-side
// re-verification against tree state read directly from the ledger
type VerifiedAsset struct {
	Asset     *CompressedAsset      `json:"asset"`
	Proof     *proof.InclusionProof `json:"proof"`
	TreeState *ledger.TreeState     `json:"tree_state"`
}
