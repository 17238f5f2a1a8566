// +build unit

package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/provideplatform/checkout/asset"
)

func TestResolveDiscountIdentityWithoutAssets(t *testing.T) {
	decision := ResolveDiscount(nil)
	assert.Equal(t, uint64(1), decision.Numerator)
	assert.Equal(t, uint64(1), decision.Denominator)
	assert.False(t, decision.Applied())
	assert.Nil(t, decision.Redeemed())

	decision = ResolveDiscount([]*asset.VerifiedAsset{})
	assert.False(t, decision.Applied())
}

func TestResolveDiscountHalvesWithVerifiedAsset(t *testing.T) {
	decision := ResolveDiscount([]*asset.VerifiedAsset{{}})
	assert.Equal(t, uint64(1), decision.Numerator)
	assert.Equal(t, uint64(2), decision.Denominator)
	assert.True(t, decision.Applied())
	assert.NotNil(t, decision.Redeemed())
}

func TestResolveDiscountNeverStacks(t *testing.T) {
	one := ResolveDiscount([]*asset.VerifiedAsset{{}})
	many := ResolveDiscount([]*asset.VerifiedAsset{{}, {}, {}})

	// holding more credentials never lowers the price further
	assert.Equal(t, one.Numerator, many.Numerator)
	assert.Equal(t, one.Denominator, many.Denominator)
	assert.Equal(t, many.Assets[0], many.Redeemed())
}
