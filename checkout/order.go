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
	"fmt"

	"github.com/jinzhu/gorm"
	dbconf "github.com/kthomas/go-db-config"
	natsutil "github.com/kthomas/go-natsutil"
	uuid "github.com/kthomas/go.uuid"
	provide "github.com/provideplatform/provide-go/api"

	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/ledger"
)

// natsOrderPendingSubject is published when a pending order is created;
// the payment watcher consumes it to begin observing the order reference
const natsOrderPendingSubject = "checkout.order.pending"

const (
	orderStatusPending   = "pending"
	orderStatusConfirmed = "confirmed"
	orderStatusExpired   = "expired"
	orderStatusCancelled = "cancelled"
)

// Order is the durable record of a single checkout attempt; the reference
// is a one-time account key embedded in the payment transaction so the
// watcher can discover the payment on the ledger without knowing its
// signature in advance
type Order struct {
	provide.Model

	Reference       *string `json:"reference"`
	Amount          *string `json:"amount"`
	Account         *string `json:"account,omitempty"`
	Status          *string `json:"status"`
	DiscountApplied bool    `json:"discount_applied"`
	Signature       *string `json:"signature,omitempty"`
}

// NewOrder initializes a pending order for the given human-readable amount,
// minting a fresh, unpredictable reference; references are never reused
// across orders
func NewOrder(amount string) (*Order, error) {
	entropy, err := common.RandomBytes(ledger.AddressLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate order reference; %s", err.Error())
	}

	var reference ledger.Address
	copy(reference[:], entropy)

	return &Order{
		Reference: common.StringOrNil(reference.String()),
		Amount:    common.StringOrNil(amount),
		Status:    common.StringOrNil(orderStatusPending),
	}, nil
}

// FindOrderByReference resolves the order carrying the given reference, or
// nil if no such order exists
func FindOrderByReference(reference string) *Order {
	db := dbconf.DatabaseConnection()
	order := &Order{}
	db.Where("orders.reference = ?", reference).Find(&order)
	if order == nil || order.ID == uuid.Nil {
		return nil
	}
	return order
}

// ReferenceAddress parses the order reference into its account key form
func (o *Order) ReferenceAddress() (ledger.Address, error) {
	if o.Reference == nil {
		return ledger.Address{}, fmt.Errorf("order %s has no reference", o.ID)
	}
	return ledger.AddressFromString(*o.Reference)
}

// Pending returns true if the order is still awaiting payment
func (o *Order) Pending() bool {
	return o.Status != nil && *o.Status == orderStatusPending
}

// Cancelled returns true if the order was cancelled before payment settled
func (o *Order) Cancelled() bool {
	return o.Status != nil && *o.Status == orderStatusCancelled
}

// Create and persist the order
func (o *Order) Create() bool {
	if !o.validate() {
		return false
	}

	db := dbconf.DatabaseConnection()

	if db.NewRecord(o) {
		result := db.Create(&o)
		rowsAffected := result.RowsAffected
		errors := result.GetErrors()
		if len(errors) > 0 {
			for _, err := range errors {
				o.Errors = append(o.Errors, &provide.Error{
					Message: common.StringOrNil(err.Error()),
				})
			}
		}
		if !db.NewRecord(o) {
			success := rowsAffected > 0
			if success {
				payload, _ := json.Marshal(map[string]interface{}{
					"order_id":  o.ID.String(),
					"reference": o.Reference,
				})
				natsutil.NatsJetstreamPublish(natsOrderPendingSubject, payload)
			}

			return success
		}
	}

	return false
}

// Confirm transitions the order to confirmed, recording the transaction
// signature that settled it; only a pending order can be confirmed
func (o *Order) Confirm(db *gorm.DB, signature string) error {
	if !o.Pending() {
		return fmt.Errorf("failed to confirm order %s; status is %s", o.ID, *o.Status)
	}
	o.Signature = common.StringOrNil(signature)
	return o.updateStatus(db, orderStatusConfirmed)
}

// Expire transitions the order to expired; confirmation wins any race
func (o *Order) Expire(db *gorm.DB) error {
	if !o.Pending() {
		return nil
	}
	return o.updateStatus(db, orderStatusExpired)
}

// Cancel transitions the order to cancelled; a cancelled order is never
// confirmed even if its payment later lands
func (o *Order) Cancel(db *gorm.DB) error {
	if !o.Pending() {
		return fmt.Errorf("failed to cancel order %s; status is %s", o.ID, *o.Status)
	}
	return o.updateStatus(db, orderStatusCancelled)
}

func (o *Order) updateStatus(db *gorm.DB, status string) error {
	o.Status = common.StringOrNil(status)
	if !db.NewRecord(o) {
		result := db.Save(o)
		errors := result.GetErrors()
		if len(errors) > 0 {
			for _, err := range errors {
				o.Errors = append(o.Errors, &provide.Error{
					Message: common.StringOrNil(err.Error()),
				})
			}
			return errors[0]
		}
	}
	return nil
}

func (o *Order) validate() bool {
	o.Errors = make([]*provide.Error, 0)

	if o.Reference == nil || *o.Reference == "" {
		o.Errors = append(o.Errors, &provide.Error{
			Message: common.StringOrNil("no reference provided"),
		})
	}

	if o.Amount == nil || *o.Amount == "" {
		o.Errors = append(o.Errors, &provide.Error{
			Message: common.StringOrNil("no amount provided"),
		})
	}

	return len(o.Errors) == 0
}
