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
	"fmt"

	"github.com/provideplatform/checkout/ledger"
)

// AssetProof is the raw proof material returned by the asset index for one
// asset; advisory until re-verified client-side
type AssetProof struct {
	Leaf     ledger.Hash   `json:"leaf"`
	Root     ledger.Hash   `json:"root"`
	Siblings []ledger.Hash `json:"proof"`
}

// IndexClient provides read access to an external compressed asset index;
// index responses are an optimization and are never trusted as the sole
// source of truth for a transfer decision
type IndexClient interface {
	AssetsByOwner(owner ledger.Address) ([]*CompressedAsset, error)
	AssetProof(assetID ledger.Address) (*AssetProof, error)
}

// rpcIndexClient resolves index queries against a read API endpoint
type rpcIndexClient struct {
	rpc *ledger.Client
}

// InitIndexClient initializes an asset index client for the given read API
// endpoint
func InitIndexClient(endpoint string) IndexClient {
	return &rpcIndexClient{
		rpc: ledger.NewClient(endpoint),
	}
}

type indexedAsset struct {
	ID        string `json:"id"`
	Ownership struct {
		Owner    string  `json:"owner"`
		Delegate *string `json:"delegate"`
	} `json:"ownership"`
	Compression struct {
		Compressed  bool   `json:"compressed"`
		Tree        string `json:"tree"`
		LeafID      uint64 `json:"leaf_id"`
		DataHash    string `json:"data_hash"`
		CreatorHash string `json:"creator_hash"`
	} `json:"compression"`
}

func (a *indexedAsset) parse() (*CompressedAsset, error) {
	id, err := ledger.AddressFromString(a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse indexed asset id %s; %s", a.ID, err.Error())
	}
	owner, err := ledger.AddressFromString(a.Ownership.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to parse owner of indexed asset %s; %s", a.ID, err.Error())
	}
	tree, err := ledger.AddressFromString(a.Compression.Tree)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tree of indexed asset %s; %s", a.ID, err.Error())
	}
	dataHash, err := ledger.HashFromString(a.Compression.DataHash)
	if err != nil {
		return nil, fmt.Errorf("failed to parse data hash of indexed asset %s; %s", a.ID, err.Error())
	}
	creatorHash, err := ledger.HashFromString(a.Compression.CreatorHash)
	if err != nil {
		return nil, fmt.Errorf("failed to parse creator hash of indexed asset %s; %s", a.ID, err.Error())
	}

	parsed := &CompressedAsset{
		ID:          id,
		Owner:       owner,
		Tree:        tree,
		LeafIndex:   a.Compression.LeafID,
		DataHash:    dataHash,
		CreatorHash: creatorHash,
		Compressed:  a.Compression.Compressed,
	}

	if a.Ownership.Delegate != nil {
		delegate, err := ledger.AddressFromString(*a.Ownership.Delegate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse delegate of indexed asset %s; %s", a.ID, err.Error())
		}
		parsed.Delegate = &delegate
	}

	return parsed, nil
}

// AssetsByOwner lists all compressed assets the index attributes to the
// given owner; result ordering is not stable across calls
func (c *rpcIndexClient) AssetsByOwner(owner ledger.Address) ([]*CompressedAsset, error) {
	var resp struct {
		Total uint64          `json:"total"`
		Items []*indexedAsset `json:"items"`
	}
	err := c.rpc.Call("getAssetsByOwner", map[string]interface{}{
		"ownerAddress": owner.String(),
		"sortBy": map[string]interface{}{
			"sortBy":        "recent_action",
			"sortDirection": "asc",
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	assets := make([]*CompressedAsset, 0, len(resp.Items))
	for _, item := range resp.Items {
		parsed, err := item.parse()
		if err != nil {
			return nil, err
		}
		assets = append(assets, parsed)
	}
	return assets, nil
}

// AssetProof fetches the merkle proof material the index holds for the
// given asset
func (c *rpcIndexClient) AssetProof(assetID ledger.Address) (*AssetProof, error) {
	var resp struct {
		Leaf  string   `json:"leaf"`
		Root  string   `json:"root"`
		Proof []string `json:"proof"`
	}
	err := c.rpc.Call("getAssetProof", map[string]interface{}{"id": assetID.String()}, &resp)
	if err != nil {
		return nil, err
	}

	leaf, err := ledger.HashFromString(resp.Leaf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proof leaf for asset %s; %s", assetID, err.Error())
	}
	root, err := ledger.HashFromString(resp.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proof root for asset %s; %s", assetID, err.Error())
	}

	siblings := make([]ledger.Hash, 0, len(resp.Proof))
	for _, node := range resp.Proof {
		sibling, err := ledger.HashFromString(node)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proof path for asset %s; %s", assetID, err.Error())
		}
		siblings = append(siblings, sibling)
	}

	return &AssetProof{
		Leaf:     leaf,
		Root:     root,
		Siblings: siblings,
	}, nil
}
