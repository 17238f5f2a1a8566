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
	dbconf "github.com/kthomas/go-db-config"
	uuid "github.com/kthomas/go.uuid"
	provide "github.com/provideplatform/provide-go/api"

	"github.com/provideplatform/checkout/common"
)

// Coupon records a loyalty credential minted for a confirmed payment; the
// unique index on reference makes issuance idempotent, so redelivered or
// republished confirmation events never mint twice
type Coupon struct {
	provide.Model

	Reference *string `json:"reference"`
	Recipient *string `json:"recipient"`
	AssetID   *string `json:"asset_id"`
}

// FindCouponByReference resolves the coupon minted for the given reference,
// or nil if no credential has been issued for it
func FindCouponByReference(reference string) *Coupon {
	db := dbconf.DatabaseConnection()
	coupon := &Coupon{}
	db.Where("coupons.reference = ?", reference).Find(&coupon)
	if coupon == nil || coupon.ID == uuid.Nil {
		return nil
	}
	return coupon
}

// Create and persist the coupon record
func (c *Coupon) Create() bool {
	if !c.validate() {
		return false
	}

	db := dbconf.DatabaseConnection()

	if db.NewRecord(c) {
		result := db.Create(&c)
		rowsAffected := result.RowsAffected
		errors := result.GetErrors()
		if len(errors) > 0 {
			for _, err := range errors {
				c.Errors = append(c.Errors, &provide.Error{
					Message: common.StringOrNil(err.Error()),
				})
			}
		}
		if !db.NewRecord(c) {
			return rowsAffected > 0
		}
	}

	return false
}

func (c *Coupon) validate() bool {
	c.Errors = make([]*provide.Error, 0)

	if c.Reference == nil || *c.Reference == "" {
		c.Errors = append(c.Errors, &provide.Error{
			Message: common.StringOrNil("no reference provided"),
		})
	}

	if c.Recipient == nil || *c.Recipient == "" {
		c.Errors = append(c.Errors, &provide.Error{
			Message: common.StringOrNil("no recipient provided"),
		})
	}

	if c.AssetID == nil || *c.AssetID == "" {
		c.Errors = append(c.Errors, &provide.Error{
			Message: common.StringOrNil("no asset id provided"),
		})
	}

	return len(c.Errors) == 0
}
