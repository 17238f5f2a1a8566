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

import "github.com/provideplatform/checkout/asset"

const (
	loyaltyDiscountNumerator   = uint64(1)
	loyaltyDiscountDenominator = uint64(2)
)

// DiscountDecision is the resolved price multiplier for a single checkout
// attempt, expressed as an exact rational; holding at least one verified
// loyalty credential halves the price, holding more than one grants nothing
// further
type DiscountDecision struct {
	Numerator   uint64                 `json:"numerator"`
	Denominator uint64                 `json:"denominator"`
	Assets      []*asset.VerifiedAsset `json:"-"`
}

// Applied returns true if the decision discounts the price
func (d *DiscountDecision) Applied() bool {
	return d.Numerator != d.Denominator
}

// Redeemed returns the verified asset consumed by the discount, if any
func (d *DiscountDecision) Redeemed() *asset.VerifiedAsset {
	if !d.Applied() || len(d.Assets) == 0 {
		return nil
	}
	return d.Assets[0]
}

// ResolveDiscount maps the verified assets located for a buyer to a price
// multiplier; it is pure and performs no i/o. A nil or empty slice resolves
// to the identity multiplier.
func ResolveDiscount(assets []*asset.VerifiedAsset) *DiscountDecision {
	if len(assets) == 0 {
		return &DiscountDecision{
			Numerator:   1,
			Denominator: 1,
		}
	}

	return &DiscountDecision{
		Numerator:   loyaltyDiscountNumerator,
		Denominator: loyaltyDiscountDenominator,
		Assets:      assets,
	}
}
