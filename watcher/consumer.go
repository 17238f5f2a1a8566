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
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	dbconf "github.com/kthomas/go-db-config"
	natsutil "github.com/kthomas/go-natsutil"
	"github.com/nats-io/nats.go"

	"github.com/provideplatform/checkout/checkout"
	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/ledger"
)

const defaultNatsStream = "checkout"

const natsOrderPendingSubject = "checkout.order.pending"
const natsOrderPendingMaxInFlight = 32
const orderPendingAckWait = time.Hour * 1
const orderPendingMaxDeliveries = 5

// natsPaymentConfirmedSubject is published at least once per confirmed
// reference; the credential issuer consumes it and deduplicates minting
// by reference, so redeliveries and publish retries are harmless
const natsPaymentConfirmedSubject = "checkout.payment.confirmed"

func init() {
	if !common.ConsumeNATSStreamingSubscriptions {
		common.Log.Debug("watcher package consumer configured to skip NATS streaming subscription setup")
		return
	}

	natsutil.EstablishSharedNatsConnection(nil)
	natsutil.NatsCreateStream(defaultNatsStream, []string{
		fmt.Sprintf("%s.>", defaultNatsStream),
	})

	var waitGroup sync.WaitGroup

	createNatsOrderPendingSubscriptions(&waitGroup)
}

func createNatsOrderPendingSubscriptions(wg *sync.WaitGroup) {
	for i := uint64(0); i < natsutil.GetNatsConsumerConcurrency(); i++ {
		natsutil.RequireNatsJetstreamSubscription(wg,
			orderPendingAckWait,
			natsOrderPendingSubject,
			natsOrderPendingSubject,
			natsOrderPendingSubject,
			consumeOrderPendingMsg,
			orderPendingAckWait,
			natsOrderPendingMaxInFlight,
			orderPendingMaxDeliveries,
			nil,
		)
	}
}

func consumeOrderPendingMsg(msg *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			common.Log.Warningf("recovered during pending order watch; %s", r)
			msg.Nak()
		}
	}()

	common.Log.Debugf("consuming %d-byte NATS pending order message on subject: %s", len(msg.Data), msg.Subject)

	params := map[string]interface{}{}
	err := json.Unmarshal(msg.Data, &params)
	if err != nil {
		common.Log.Warningf("failed to unmarshal pending order message; %s", err.Error())
		msg.Nak()
		return
	}

	reference, referenceOk := params["reference"].(string)
	if !referenceOk {
		common.Log.Warning("failed to unmarshal reference during pending order message handler")
		msg.Nak()
		return
	}

	order := checkout.FindOrderByReference(reference)
	if order == nil {
		common.Log.Warningf("failed to resolve order during async watch; reference: %s", reference)
		msg.Nak()
		return
	}

	db := dbconf.DatabaseConnection()

	// repeated deliveries converge on the previously recorded confirmation;
	// the confirmed event is republished in case a prior delivery crashed
	// between persisting the confirmation and publishing
	if confirmation := FindPaymentConfirmationByReference(reference); confirmation != nil {
		if order.Pending() {
			order.Confirm(db, *confirmation.Signature)
		}
		if !order.Cancelled() {
			natsutil.NatsJetstreamPublish(natsPaymentConfirmedSubject, paymentConfirmedPayload(order, confirmation))
		}
		msg.Ack()
		return
	}

	if !order.Pending() {
		common.Log.Debugf("order %s is no longer pending; skipping watch", order.ID)
		msg.Ack()
		return
	}

	referenceAddr, err := order.ReferenceAddress()
	if err != nil {
		common.Log.Warningf("failed to parse order reference %s; %s", reference, err.Error())
		msg.Nak()
		return
	}

	timeout := common.PaymentWatchTimeout - time.Since(order.CreatedAt)
	if timeout <= 0 {
		common.Log.Debugf("order %s expired before watch began", order.ID)
		order.Expire(db)
		msg.Ack()
		return
	}

	strategy, err := StrategyFactory(common.PaymentWatchStrategy)
	if err != nil {
		common.Log.Warningf("failed to initialize watch strategy; %s", err.Error())
		msg.Nak()
		return
	}
	defer strategy.Close()

	watch := WatcherFactory(ledger.NewClient(common.LedgerRPCURL), strategy, timeout)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitorOrderCancellation(monitorCtx, watch, reference)

	result, err := watch.Watch(context.Background(), referenceAddr)
	if err != nil {
		switch err {
		case ErrWatchTimeout:
			common.Log.Debugf("order %s expired unpaid", order.ID)
			order.Expire(db)
			msg.Ack()
		case ErrWatchCancelled:
			msg.Ack()
		default:
			common.Log.Warningf("failed to watch order %s; %s", order.ID, err.Error())
			msg.Nak()
		}
		return
	}

	confirmation := &PaymentConfirmation{
		Reference: order.Reference,
		Signature: common.StringOrNil(string(result.Signature)),
		Signer:    common.StringOrNil(result.Signer.String()),
		Units:     result.Units,
		Decimals:  result.Decimals,
	}
	if !confirmation.Create() {
		// a concurrent watcher may have recorded it first; converge on
		// the stored record so both deliveries publish the same payload
		confirmation = FindPaymentConfirmationByReference(reference)
		if confirmation == nil {
			common.Log.Warningf("failed to persist confirmation for order %s", order.ID)
			msg.Nak()
			return
		}
	}

	// reload the persisted order; a cancellation landing mid-watch wins
	// over the observed settlement and suppresses credential issuance
	if current := checkout.FindOrderByReference(reference); current != nil {
		order = current
	}
	if order.Cancelled() {
		common.Log.Debugf("order %s was cancelled during watch; confirmation recorded without issuance", order.ID)
		msg.Ack()
		return
	}

	err = order.Confirm(db, *confirmation.Signature)
	if err != nil {
		common.Log.Warningf("failed to confirm order %s; %s", order.ID, err.Error())
	}

	natsutil.NatsJetstreamPublish(natsPaymentConfirmedSubject, paymentConfirmedPayload(order, confirmation))

	common.Log.Debugf("confirmed payment for order %s; signature: %s", order.ID, *confirmation.Signature)
	msg.Ack()
}

// paymentConfirmedPayload derives the confirmed event from the persisted
// confirmation so every publisher of a given reference emits the same bytes
func paymentConfirmedPayload(order *checkout.Order, confirmation *PaymentConfirmation) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"order_id":  order.ID.String(),
		"reference": confirmation.Reference,
		"signature": confirmation.Signature,
		"signer":    confirmation.Signer,
		"units":     confirmation.Units,
		"decimals":  confirmation.Decimals,
	})
	return payload
}

// monitorOrderCancellation polls the persisted order status during a watch
// and interrupts the watch when the order is cancelled out of band
func monitorOrderCancellation(ctx context.Context, watch *Watcher, reference string) {
	ticker := time.NewTicker(common.PaymentWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			order := checkout.FindOrderByReference(reference)
			if order != nil && order.Cancelled() {
				watch.Cancel()
				return
			}
		}
	}
}
