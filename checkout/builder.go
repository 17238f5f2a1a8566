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

package checkout

import (
	"fmt"

	"github.com/provideplatform/checkout/asset"
	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/ledger"
	"github.com/provideplatform/checkout/proof"
)

// LedgerReader is the read surface the builder requires from the ledger
type LedgerReader interface {
	LatestBlockhash() (ledger.Hash, error)
	MintDecimals(mint ledger.Address) (uint8, error)
}

// AssetLocator resolves the verified loyalty assets a buyer holds
type AssetLocator interface {
	FindOwnedAssets(owner ledger.Address) ([]*asset.VerifiedAsset, error)
}

// Builder constructs unsigned checkout transactions. All per-order state is
// scoped to the BuildTransaction call; a single builder serves concurrent
// checkouts.
type Builder struct {
	reader        LedgerReader
	locator       AssetLocator
	store         ledger.Address
	mint          ledger.Address
	treeAuthority ledger.Address
}

// BuiltTransaction is the outcome of one build: the unsigned transaction
// awaiting the buyer's signature and the discount decision it encodes
type BuiltTransaction struct {
	Transaction *ledger.Transaction `json:"-"`
	Discount    *DiscountDecision   `json:"discount"`
	Units       uint64              `json:"units"`
	Decimals    uint8               `json:"decimals"`
	Message     string              `json:"message"`
}

// SerializeBase64 renders the unsigned transaction as a base64 string for
// transport to the buyer's wallet
func (b *BuiltTransaction) SerializeBase64() (*string, error) {
	return b.Transaction.SerializeBase64()
}

// BuilderFactory initializes a checkout transaction builder
func BuilderFactory(reader LedgerReader, locator AssetLocator, store, mint, treeAuthority ledger.Address) *Builder {
	return &Builder{
		reader:        reader,
		locator:       locator,
		store:         store,
		mint:          mint,
		treeAuthority: treeAuthority,
	}
}

// BuildTransaction constructs the unsigned transaction settling the given
// order for the given buyer. When the buyer verifiably holds a loyalty
// credential, the transaction atomically surrenders that credential to the
// store and pays half price; either both effects land or neither does. The
// payment instruction always carries the order reference as an additional
// account key so the watcher can discover it. The buyer is the sole fee
// paying signer.
func (b *Builder) BuildTransaction(payer ledger.Address, amount string, reference ledger.Address) (*BuiltTransaction, error) {
	decimals, err := b.reader.MintDecimals(b.mint)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mint decimals; %s", err.Error())
	}

	units, err := ledger.ParseUnits(amount, decimals)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount %s; %s", amount, err.Error())
	}

	assets, err := b.locator.FindOwnedAssets(payer)
	if err != nil {
		if err != asset.ErrIndexUnavailable {
			return nil, err
		}
		common.Log.Warningf("asset index unavailable; building checkout for %s without discount", payer)
		assets = nil
	}

	discount := ResolveDiscount(assets)
	finalUnits, err := ledger.ApplyMultiplier(units, discount.Numerator, discount.Denominator)
	if err != nil {
		return nil, fmt.Errorf("failed to apply discount; %s", err.Error())
	}

	blockhash, err := b.reader.LatestBlockhash()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recent blockhash; %s", err.Error())
	}

	tx := &ledger.Transaction{
		RecentBlockhash: blockhash,
		FeePayer:        payer,
	}

	if redeemed := discount.Redeemed(); redeemed != nil {
		// re-check immediately before instruction construction; a discount
		// is never granted on the strength of index data alone
		if !proof.VerifyWithState(redeemed.TreeState, redeemed.Proof) {
			return nil, proof.ErrProofInvalid
		}

		trimmed := redeemed.Proof.Trim(redeemed.TreeState.CanopyDepth)
		tx.AddInstruction(ledger.NewAssetTransferInstruction(&ledger.AssetTransferParams{
			Tree:          redeemed.Asset.Tree,
			TreeAuthority: b.treeAuthority,
			LeafOwner:     payer,
			LeafDelegate:  redeemed.Asset.DelegateOrOwner(),
			NewLeafOwner:  b.store,
			Root:          redeemed.Proof.Root,
			DataHash:      redeemed.Asset.DataHash,
			CreatorHash:   redeemed.Asset.CreatorHash,
			LeafIndex:     redeemed.Proof.LeafIndex,
			ProofPath:     trimmed.Siblings,
		}))
	}

	// the payment instruction follows any credential surrender so history
	// parsers can rely on instruction order
	payment := ledger.NewTokenTransferInstruction(
		payer,
		b.mint,
		ledger.DeriveTokenAccount(payer, b.mint),
		ledger.DeriveTokenAccount(b.store, b.mint),
		finalUnits,
		decimals,
	)
	payment.AppendReadonlyAccount(reference)
	tx.AddInstruction(payment)

	message := fmt.Sprintf("thanks for your order of %s", ledger.FormatUnits(finalUnits, decimals))
	if discount.Applied() {
		message = fmt.Sprintf("enjoy 50%% off! you pay %s instead of %s", ledger.FormatUnits(finalUnits, decimals), ledger.FormatUnits(units, decimals))
	}

	return &BuiltTransaction{
		Transaction: tx,
		Discount:    discount,
		Units:       finalUnits,
		Decimals:    decimals,
		Message:     message,
	}, nil
}
