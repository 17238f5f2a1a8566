// +build unit

package watcher

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/provideplatform/checkout/checkout"
	"github.com/provideplatform/checkout/common"
)

func TestPaymentConfirmedPayloadDerivesFromStoredConfirmation(t *testing.T) {
	order, err := checkout.NewOrder("20.00")
	assert.NoError(t, err)

	confirmation := &PaymentConfirmation{
		Reference: order.Reference,
		Signature: common.StringOrNil("3yZe7d"),
		Signer:    common.StringOrNil(seedAddress("payer").String()),
		Units:     10000000,
		Decimals:  6,
	}

	payload := paymentConfirmedPayload(order, confirmation)

	params := map[string]interface{}{}
	err = json.Unmarshal(payload, &params)
	assert.NoError(t, err)
	assert.Equal(t, order.ID.String(), params["order_id"])
	assert.Equal(t, *order.Reference, params["reference"])
	assert.Equal(t, "3yZe7d", params["signature"])
	assert.Equal(t, *confirmation.Signer, params["signer"])
	assert.Equal(t, float64(10000000), params["units"])
	assert.Equal(t, float64(6), params["decimals"])

	// redeliveries and racing watchers publish from the same persisted
	// record, so every emission for a reference carries identical bytes
	assert.Equal(t, payload, paymentConfirmedPayload(order, confirmation))
}
