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
	"encoding/json"
	"sync"

	"github.com/gin-gonic/gin"
	dbconf "github.com/kthomas/go-db-config"
	provide "github.com/provideplatform/provide-go/common"

	"github.com/provideplatform/checkout/asset"
	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/ledger"
)

var (
	defaultBuilder     *Builder
	defaultBuilderOnce sync.Once
)

func requireBuilder() *Builder {
	defaultBuilderOnce.Do(func() {
		rpc := ledger.NewClient(common.LedgerRPCURL)
		locator := asset.LocatorFactory(
			asset.InitIndexClient(common.LedgerIndexURL),
			rpc,
			ledger.MustAddress(common.LoyaltyTreeAddress),
		)
		defaultBuilder = BuilderFactory(
			rpc,
			locator,
			ledger.MustAddress(common.StoreAddress),
			ledger.MustAddress(common.StablecoinMintAddress),
			ledger.MustAddress(common.LoyaltyTreeAuthority),
		)
	})
	return defaultBuilder
}

// InstallAPI registers the checkout API handlers with gin
func InstallAPI(r *gin.Engine) {
	r.GET("/api/v1/checkout", checkoutMetadataHandler)
	r.POST("/api/v1/checkout", createCheckoutTransactionHandler)

	r.POST("/api/v1/orders", createOrderHandler)
	r.GET("/api/v1/orders/:reference", orderDetailsHandler)
	r.DELETE("/api/v1/orders/:reference", cancelOrderHandler)
}

// storefront display metadata consumed by payment-aware wallets
func checkoutMetadataHandler(c *gin.Context) {
	provide.Render(map[string]interface{}{
		"label": common.CheckoutLabel,
		"icon":  common.CheckoutIconURL,
	}, 200, c)
}

// construct the unsigned checkout transaction for a buyer
func createCheckoutTransactionHandler(c *gin.Context) {
	amount := c.Query("amount")
	if amount == "" {
		provide.RenderError("no amount provided", 400, c)
		return
	}

	referenceParam := c.Query("reference")
	if referenceParam == "" {
		provide.RenderError("no reference provided", 400, c)
		return
	}

	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	var params struct {
		Account *string `json:"account"`
	}
	err = json.Unmarshal(buf, &params)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	if params.Account == nil || *params.Account == "" {
		provide.RenderError("no account provided", 400, c)
		return
	}

	payer, err := ledger.AddressFromString(*params.Account)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	reference, err := ledger.AddressFromString(referenceParam)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	built, err := requireBuilder().BuildTransaction(payer, amount, reference)
	if err != nil {
		common.Log.Warningf("failed to build checkout transaction for %s; %s", payer, err.Error())
		provide.RenderError("error creating transaction", 500, c)
		return
	}

	raw, err := built.SerializeBase64()
	if err != nil {
		common.Log.Warningf("failed to serialize checkout transaction for %s; %s", payer, err.Error())
		provide.RenderError("error creating transaction", 500, c)
		return
	}

	if order := FindOrderByReference(referenceParam); order != nil {
		order.Account = params.Account
		order.DiscountApplied = built.Discount.Applied()
		dbconf.DatabaseConnection().Save(&order)
	}

	provide.Render(map[string]interface{}{
		"transaction": raw,
		"message":     built.Message,
	}, 201, c)
}

// create a pending order with a freshly minted reference
func createOrderHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	var params struct {
		Amount *string `json:"amount"`
	}
	err = json.Unmarshal(buf, &params)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	if params.Amount == nil || *params.Amount == "" {
		provide.RenderError("no amount provided", 400, c)
		return
	}

	order, err := NewOrder(*params.Amount)
	if err != nil {
		provide.RenderError(err.Error(), 500, c)
		return
	}

	if order.Create() {
		provide.Render(order, 201, c)
	} else {
		obj := map[string]interface{}{}
		obj["errors"] = order.Errors
		provide.Render(obj, 422, c)
	}
}

// fetch order status by reference
func orderDetailsHandler(c *gin.Context) {
	order := FindOrderByReference(c.Param("reference"))
	if order == nil {
		provide.RenderError("not found", 404, c)
		return
	}
	provide.Render(order, 200, c)
}

// cancel a pending order; any in-flight payment watch observes the
// persisted status change and stops without confirming
func cancelOrderHandler(c *gin.Context) {
	order := FindOrderByReference(c.Param("reference"))
	if order == nil {
		provide.RenderError("not found", 404, c)
		return
	}

	err := order.Cancel(dbconf.DatabaseConnection())
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	provide.Render(order, 200, c)
}
