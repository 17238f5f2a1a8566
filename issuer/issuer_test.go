// +build unit

package issuer

import (
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/ledger"
)

func seedAddress(seed string) ledger.Address {
	return ledger.Address(sha256.Sum256([]byte(seed)))
}

func TestMintCompressedAsset(t *testing.T) {
	recipient := seedAddress("buyer")

	var received MintParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/mints", r.URL.Path)
		err := json.NewDecoder(r.Body).Decode(&received)
		assert.NoError(t, err)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"asset_id": seedAddress("minted").String()})
	}))
	defer srv.Close()

	assetID, err := InitIssuer(srv.URL).MintCompressedAsset(&MintParams{
		Tree:        seedAddress("tree"),
		Collection:  seedAddress("collection"),
		Recipient:   recipient,
		Name:        defaultCouponName,
		Symbol:      defaultCouponSymbol,
		MetadataRef: common.StringOrNil("buyer:reference"),
	})
	assert.NoError(t, err)
	assert.NotNil(t, assetID)
	assert.Equal(t, seedAddress("minted").String(), *assetID)
	assert.Equal(t, recipient, received.Recipient)
	assert.NotNil(t, received.MetadataRef)
}

func TestMintCompressedAssetIssuerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := InitIssuer(srv.URL).MintCompressedAsset(&MintParams{Recipient: seedAddress("buyer")})
	assert.Error(t, err)
}

func TestMintCompressedAssetMissingAssetID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{})
	}))
	defer srv.Close()

	_, err := InitIssuer(srv.URL).MintCompressedAsset(&MintParams{Recipient: seedAddress("buyer")})
	assert.Error(t, err)
}

func TestMintCompressedAssetUnreachableIssuer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := InitIssuer(srv.URL).MintCompressedAsset(&MintParams{Recipient: seedAddress("buyer")})
	assert.Error(t, err)
}

func TestCouponValidate(t *testing.T) {
	coupon := &Coupon{
		Reference: common.StringOrNil(seedAddress("reference").String()),
		Recipient: common.StringOrNil(seedAddress("buyer").String()),
		AssetID:   common.StringOrNil("asset-1"),
	}
	assert.True(t, coupon.validate())

	coupon.Reference = nil
	assert.False(t, coupon.validate())
	assert.NotEmpty(t, coupon.Errors)

	coupon.Reference = common.StringOrNil(seedAddress("reference").String())
	coupon.AssetID = nil
	assert.False(t, coupon.validate())
}
