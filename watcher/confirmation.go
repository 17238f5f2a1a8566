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

package watcher

import (
	dbconf "github.com/kthomas/go-db-config"
	uuid "github.com/kthomas/go.uuid"
	provide "github.com/provideplatform/provide-go/api"

	"github.com/provideplatform/checkout/common"
)

// PaymentConfirmation is the immutable record of an observed settlement;
// exactly one confirmation can exist per reference and it is never updated
// after creation
type PaymentConfirmation struct {
	provide.Model

	Reference *string `json:"reference"`
	Signature *string `json:"signature"`
	Signer    *string `json:"signer"`
	Units     uint64  `json:"units"`
	Decimals  uint8   `json:"decimals"`
}

// FindPaymentConfirmationByReference resolves the confirmation recorded for
// the given reference, or nil if settlement has not been observed
func FindPaymentConfirmationByReference(reference string) *PaymentConfirmation {
	db := dbconf.DatabaseConnection()
	confirmation := &PaymentConfirmation{}
	db.Where("payment_confirmations.reference = ?", reference).Find(&confirmation)
	if confirmation == nil || confirmation.ID == uuid.Nil {
		return nil
	}
	return confirmation
}

// Create and persist the confirmation; the unique index on reference makes
// concurrent confirmation attempts for the same reference converge on a
// single record
func (p *PaymentConfirmation) Create() bool {
	if !p.validate() {
		return false
	}

	db := dbconf.DatabaseConnection()

	if db.NewRecord(p) {
		result := db.Create(&p)
		rowsAffected := result.RowsAffected
		errors := result.GetErrors()
		if len(errors) > 0 {
			for _, err := range errors {
				p.Errors = append(p.Errors, &provide.Error{
					Message: common.StringOrNil(err.Error()),
				})
			}
		}
		if !db.NewRecord(p) {
			return rowsAffected > 0
		}
	}

	return false
}

func (p *PaymentConfirmation) validate() bool {
	p.Errors = make([]*provide.Error, 0)

	if p.Reference == nil || *p.Reference == "" {
		p.Errors = append(p.Errors, &provide.Error{
			Message: common.StringOrNil("no reference provided"),
		})
	}

	if p.Signature == nil || *p.Signature == "" {
		p.Errors = append(p.Errors, &provide.Error{
			Message: common.StringOrNil("no signature provided"),
		})
	}

	if p.Signer == nil || *p.Signer == "" {
		p.Errors = append(p.Errors, &provide.Error{
			Message: common.StringOrNil("no signer provided"),
		})
	}

	return len(p.Errors) == 0
}
