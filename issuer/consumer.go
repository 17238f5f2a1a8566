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
	"time"

	natsutil "github.com/kthomas/go-natsutil"
	"github.com/nats-io/nats.go"

	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/ledger"
)

const defaultNatsStream = "checkout"

const natsPaymentConfirmedSubject = "checkout.payment.confirmed"
const natsPaymentConfirmedMaxInFlight = 32
const paymentConfirmedAckWait = time.Minute * 5
const paymentConfirmedMaxDeliveries = 10

const defaultCouponName = "loyalty coupon"
const defaultCouponSymbol = "COUPON"

func init() {
	if !common.ConsumeNATSStreamingSubscriptions {
		common.Log.Debug("issuer package consumer configured to skip NATS streaming subscription setup")
		return
	}

	natsutil.EstablishSharedNatsConnection(nil)
	natsutil.NatsCreateStream(defaultNatsStream, []string{
		fmt.Sprintf("%s.>", defaultNatsStream),
	})

	var waitGroup sync.WaitGroup

	createNatsPaymentConfirmedSubscriptions(&waitGroup)
}

func createNatsPaymentConfirmedSubscriptions(wg *sync.WaitGroup) {
	for i := uint64(0); i < natsutil.GetNatsConsumerConcurrency(); i++ {
		natsutil.RequireNatsJetstreamSubscription(wg,
			paymentConfirmedAckWait,
			natsPaymentConfirmedSubject,
			natsPaymentConfirmedSubject,
			natsPaymentConfirmedSubject,
			consumePaymentConfirmedMsg,
			paymentConfirmedAckWait,
			natsPaymentConfirmedMaxInFlight,
			paymentConfirmedMaxDeliveries,
			nil,
		)
	}
}

// each confirmed payment earns the buyer a loyalty credential redeemable
// against a future order
func consumePaymentConfirmedMsg(msg *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			common.Log.Warningf("recovered during confirmed payment credential issuance; %s", r)
			msg.Nak()
		}
	}()

	common.Log.Debugf("consuming %d-byte NATS confirmed payment message on subject: %s", len(msg.Data), msg.Subject)

	params := map[string]interface{}{}
	err := json.Unmarshal(msg.Data, &params)
	if err != nil {
		common.Log.Warningf("failed to unmarshal confirmed payment message; %s", err.Error())
		msg.Nak()
		return
	}

	signer, signerOk := params["signer"].(string)
	if !signerOk {
		common.Log.Warning("failed to unmarshal signer during confirmed payment message handler")
		msg.Nak()
		return
	}

	reference, referenceOk := params["reference"].(string)
	if !referenceOk {
		common.Log.Warning("failed to unmarshal reference during confirmed payment message handler")
		msg.Nak()
		return
	}

	recipient, err := ledger.AddressFromString(signer)
	if err != nil {
		common.Log.Warningf("failed to parse signer %s during confirmed payment message handler; %s", signer, err.Error())
		msg.Nak()
		return
	}

	// confirmed events arrive at least once; the coupon record keyed on
	// reference makes redelivered events converge without a second mint
	if coupon := FindCouponByReference(reference); coupon != nil {
		common.Log.Debugf("credential already minted for reference %s", reference)
		msg.Ack()
		return
	}

	assetID, err := requireIssuer().MintCompressedAsset(&MintParams{
		Tree:        ledger.MustAddress(common.LoyaltyTreeAddress),
		Collection:  ledger.MustAddress(common.LoyaltyCollectionAddress),
		Recipient:   recipient,
		Name:        defaultCouponName,
		Symbol:      defaultCouponSymbol,
		MetadataRef: common.StringOrNil(fmt.Sprintf("%s:%s", signer, reference)),
	})
	if err != nil {
		common.Log.Warningf("failed to mint credential for %s; %s", signer, err.Error())
		msg.Nak()
		return
	}

	coupon := &Coupon{
		Reference: common.StringOrNil(reference),
		Recipient: common.StringOrNil(signer),
		AssetID:   assetID,
	}
	if !coupon.Create() && FindCouponByReference(reference) == nil {
		// the credential minted but the dedupe record was lost; ack anyway
		// so a redelivery cannot mint a second credential
		common.Log.Warningf("failed to record minted credential %s for reference %s", *assetID, reference)
	}

	common.Log.Debugf("minted credential %s for %s", *assetID, signer)
	msg.Ack()
}
