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

package issuer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	provide "github.com/provideplatform/provide-go/common"

	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/ledger"
	"github.com/provideplatform/checkout/watcher"
)

var (
	defaultIssuer     Issuer
	defaultIssuerOnce sync.Once
)

func requireIssuer() Issuer {
	defaultIssuerOnce.Do(func() {
		defaultIssuer = InitIssuer(common.IssuerAPIURL)
	})
	return defaultIssuer
}

// InstallAPI registers the coupon issuance API handlers with gin
func InstallAPI(r *gin.Engine) {
	r.POST("/api/v1/coupons", createCouponHandler)
}

// issue a loyalty coupon to a buyer whose payment has been confirmed
func createCouponHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	var params struct {
		BuyerAddress *string `json:"buyer_address"`
		Reference    *string `json:"reference"`
	}
	err = json.Unmarshal(buf, &params)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	if params.BuyerAddress == nil || *params.BuyerAddress == "" {
		provide.RenderError("no buyer address provided", 400, c)
		return
	}
	if params.Reference == nil || *params.Reference == "" {
		provide.RenderError("no reference provided", 400, c)
		return
	}

	recipient, err := ledger.AddressFromString(*params.BuyerAddress)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	confirmation := watcher.FindPaymentConfirmationByReference(*params.Reference)
	if confirmation == nil {
		provide.RenderError("payment not confirmed for reference", 402, c)
		return
	}
	if confirmation.Signer == nil || *confirmation.Signer != *params.BuyerAddress {
		provide.RenderError("buyer address does not match confirmed payer", 403, c)
		return
	}

	if coupon := FindCouponByReference(*params.Reference); coupon != nil {
		provide.Render(map[string]interface{}{
			"status":   "success",
			"asset_id": coupon.AssetID,
		}, 200, c)
		return
	}

	assetID, err := requireIssuer().MintCompressedAsset(&MintParams{
		Tree:        ledger.MustAddress(common.LoyaltyTreeAddress),
		Collection:  ledger.MustAddress(common.LoyaltyCollectionAddress),
		Recipient:   recipient,
		Name:        defaultCouponName,
		Symbol:      defaultCouponSymbol,
		MetadataRef: common.StringOrNil(fmt.Sprintf("%s:%s", *params.BuyerAddress, *params.Reference)),
	})
	if err != nil {
		common.Log.Warningf("failed to mint credential for %s; %s", *params.BuyerAddress, err.Error())
		provide.RenderError("error minting coupon", 500, c)
		return
	}

	coupon := &Coupon{
		Reference: params.Reference,
		Recipient: params.BuyerAddress,
		AssetID:   assetID,
	}
	if !coupon.Create() && FindCouponByReference(*params.Reference) == nil {
		common.Log.Warningf("failed to record minted credential %s for reference %s", *assetID, *params.Reference)
	}

	provide.Render(map[string]interface{}{
		"status":   "success",
		"asset_id": assetID,
	}, 201, c)
}
