// +build unit

package ledger

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
)

func rpcTestServer(t *testing.T, handlers map[string]interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		assert.NoError(t, err)

		result, ok := handlers[req.Method]
		if !ok {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"code": -32601, "message": "method not found"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
	}))
}

func TestClientLatestBlockhash(t *testing.T) {
	blockhash := testHash("blockhash")
	srv := rpcTestServer(t, map[string]interface{}{
		"getLatestBlockhash": map[string]interface{}{
			"value": map[string]interface{}{"blockhash": blockhash.String()},
		},
	})
	defer srv.Close()

	resolved, err := NewClient(srv.URL).LatestBlockhash()
	assert.NoError(t, err)
	assert.Equal(t, blockhash, resolved)
}

func TestClientTreeState(t *testing.T) {
	state := &TreeState{
		Root:          testHash("root"),
		CanopyDepth:   3,
		MaxDepth:      14,
		MaxBufferSize: 64,
	}
	srv := rpcTestServer(t, map[string]interface{}{
		"getAccountInfo": map[string]interface{}{
			"value": map[string]interface{}{
				"data": []string{base64.StdEncoding.EncodeToString(SerializeTreeAccountData(state)), "base64"},
			},
		},
	})
	defer srv.Close()

	resolved, err := NewClient(srv.URL).TreeState(testAddress("tree"))
	assert.NoError(t, err)
	assert.Equal(t, state, resolved)
}

func TestClientSignaturesForAddress(t *testing.T) {
	srv := rpcTestServer(t, map[string]interface{}{
		"getSignaturesForAddress": []map[string]interface{}{
			{"signature": "sig-newest", "slot": 20, "err": nil},
			{"signature": "sig-failed", "slot": 10, "err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
		},
	})
	defer srv.Close()

	signatures, err := NewClient(srv.URL).SignaturesForAddress(testAddress("reference"), 16)
	assert.NoError(t, err)
	assert.Len(t, signatures, 2)
	assert.Equal(t, Signature("sig-newest"), signatures[0].Signature)
	assert.False(t, signatures[0].Failed())
	assert.True(t, signatures[1].Failed())
}

func TestClientTransactionDetail(t *testing.T) {
	payer := testAddress("payer")
	source := testAddress("source")
	mint := testAddress("mint")
	destination := testAddress("destination")
	reference := testAddress("reference")

	payment := NewTokenTransferInstruction(payer, mint, source, destination, 10000000, 6)

	srv := rpcTestServer(t, map[string]interface{}{
		"getTransaction": map[string]interface{}{
			"transaction": map[string]interface{}{
				"message": map[string]interface{}{
					"accountKeys": []string{
						payer.String(),
						source.String(),
						mint.String(),
						destination.String(),
						reference.String(),
						TokenProgramID.String(),
					},
					"header": map[string]interface{}{"numRequiredSignatures": 1},
					"instructions": []map[string]interface{}{
						{
							"programIdIndex": 5,
							"accounts":       []int{1, 2, 3, 0, 4},
							"data":           base58.Encode(payment.Data),
						},
					},
				},
			},
		},
	})
	defer srv.Close()

	detail, err := NewClient(srv.URL).TransactionDetail(Signature("sig"))
	assert.NoError(t, err)
	assert.Equal(t, payer, detail.Signer)
	assert.Len(t, detail.Instructions, 1)

	ix := detail.Instructions[0]
	assert.Equal(t, TokenProgramID, ix.ProgramID)
	assert.True(t, ix.References(reference))

	amount, decimals, err := ParseTokenTransferInstruction(ix)
	assert.NoError(t, err)
	assert.Equal(t, uint64(10000000), amount)
	assert.Equal(t, uint8(6), decimals)
}

func TestClientRPCError(t *testing.T) {
	srv := rpcTestServer(t, map[string]interface{}{})
	defer srv.Close()

	_, err := NewClient(srv.URL).LatestBlockhash()
	assert.Error(t, err)

	rpcErr, ok := err.(*RPCError)
	assert.True(t, ok)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestClientTransportError(t *testing.T) {
	srv := rpcTestServer(t, nil)
	srv.Close()

	_, err := NewClient(srv.URL).LatestBlockhash()
	assert.Error(t, err)
	_, ok := err.(*RPCError)
	assert.False(t, ok)
}
