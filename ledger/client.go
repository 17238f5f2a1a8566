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

package ledger

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcutil/base58"
	redisutil "github.com/kthomas/go-redisutil"
	"github.com/provideplatform/checkout/common"
)

const defaultRPCTimeout = time.Second * 30
const mintDecimalsCacheTTL = time.Hour * 24

// Reader exposes the read-only ledger queries required to assemble
// transactions; the concrete client is safe for reuse across orders
type Reader interface {
	LatestBlockhash() (Hash, error)
	MintDecimals(mint Address) (uint8, error)
	TreeState(tree Address) (*TreeState, error)
}

// Scanner exposes the ledger history queries required to detect payments
type Scanner interface {
	SignaturesForAddress(addr Address, limit int) ([]*SignatureInfo, error)
	TransactionDetail(sig Signature) (*TransactionDetail, error)
}

// SignatureInfo summarizes one historical transaction touching an address
type SignatureInfo struct {
	Signature Signature       `json:"signature"`
	Slot      uint64          `json:"slot"`
	Err       json.RawMessage `json:"err"`
}

// Failed returns true if the ledger recorded the transaction as errored
func (s *SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// TransactionDetail is the parsed form of a confirmed ledger transaction
type TransactionDetail struct {
	Signature    Signature      `json:"signature"`
	Signer       Address        `json:"signer"`
	Instructions []*Instruction `json:"instructions"`
}

// RPCError is a structured error returned by the ledger RPC endpoint, as
// distinct from a transport failure
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger rpc error %d; %s", e.Code, e.Message)
}

// Client is a JSON-RPC ledger read client; it holds no per-order state and
// a single instance is shared process-wide
type Client struct {
	endpoint   string
	httpClient *http.Client

	requestID uint64
}

// NewClient initializes a ledger read client for the given RPC endpoint
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: defaultRPCTimeout,
		},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call invokes the given RPC method and unmarshals the result; transport
// failures and RPC errors are both returned as errors, the latter typed as
// *RPCError
func (c *Client) Call(method string, params interface{}, result interface{}) error {
	payload, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&c.requestID, 1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s rpc request; %s", method, err.Error())
	}

	resp, err := c.httpClient.Post(c.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to invoke %s on ledger rpc endpoint; %s", method, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to invoke %s on ledger rpc endpoint; status: %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to unmarshal %s rpc response; %s", method, err.Error())
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// LatestBlockhash resolves a recent, not-yet-expired blockhash suitable for
// anchoring a new transaction
func (c *Client) LatestBlockhash() (Hash, error) {
	var resp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.Call("getLatestBlockhash", []interface{}{map[string]interface{}{"commitment": "finalized"}}, &resp); err != nil {
		return Hash{}, err
	}
	return HashFromString(resp.Value.Blockhash)
}

type accountInfoResponse struct {
	Value *struct {
		Data []string `json:"data"`
	} `json:"value"`
}

func (c *Client) accountData(addr Address) ([]byte, error) {
	var resp accountInfoResponse
	err := c.Call("getAccountInfo", []interface{}{addr.String(), map[string]interface{}{"encoding": "base64"}}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Value == nil || len(resp.Value.Data) == 0 {
		return nil, fmt.Errorf("failed to resolve account %s; no account data", addr)
	}
	return base64.StdEncoding.DecodeString(resp.Value.Data[0])
}

// MintDecimals resolves the native decimal precision of the given token
// mint; mint precision is immutable so resolved values are cached
func (c *Client) MintDecimals(mint Address) (uint8, error) {
	cacheKey := fmt.Sprintf("checkout.mint.decimals.%s", mint)
	if cached, _ := redisutil.Get(cacheKey); cached != nil && len(*cached) == 1 {
		return (*cached)[0] - '0', nil
	}

	data, err := c.accountData(mint)
	if err != nil {
		return 0, err
	}
	if len(data) < 45 {
		return 0, fmt.Errorf("failed to parse mint account %s; %d-byte data too short", mint, len(data))
	}

	decimals := data[44] // mint layout: authority option+key(36) || supply u64 || decimals u8
	if decimals > 9 {
		return 0, fmt.Errorf("failed to parse mint account %s; decimals %d out of range", mint, decimals)
	}

	ttl := mintDecimalsCacheTTL
	if err := redisutil.Set(cacheKey, string([]byte{decimals + '0'}), &ttl); err != nil {
		common.Log.Debugf("failed to cache decimals for mint %s; %s", mint, err.Error())
	}

	return decimals, nil
}

// TreeState reads the current concurrent merkle tree account state directly
// from the ledger; never cached, the root advances with every accepted leaf
// mutation
func (c *Client) TreeState(tree Address) (*TreeState, error) {
	data, err := c.accountData(tree)
	if err != nil {
		return nil, err
	}
	return ParseTreeAccountData(data)
}

// SignaturesForAddress lists recent transaction signatures mentioning the
// given address, newest first
func (c *Client) SignaturesForAddress(addr Address, limit int) ([]*SignatureInfo, error) {
	var resp []*SignatureInfo
	err := c.Call("getSignaturesForAddress", []interface{}{addr.String(), map[string]interface{}{"limit": limit}}, &resp)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

type rawTransactionResponse struct {
	Transaction *struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
			Header      struct {
				NumRequiredSignatures int `json:"numRequiredSignatures"`
			} `json:"header"`
			Instructions []struct {
				ProgramIDIndex int    `json:"programIdIndex"`
				Accounts       []int  `json:"accounts"`
				Data           string `json:"data"`
			} `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

// TransactionDetail fetches and parses a confirmed transaction; instruction
// account indices are resolved against the transaction's account table
func (c *Client) TransactionDetail(sig Signature) (*TransactionDetail, error) {
	var resp rawTransactionResponse
	err := c.Call("getTransaction", []interface{}{string(sig), map[string]interface{}{"encoding": "json"}}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Transaction == nil {
		return nil, fmt.Errorf("failed to resolve transaction %s; no transaction data", sig)
	}

	msg := resp.Transaction.Message
	keys := make([]Address, 0, len(msg.AccountKeys))
	for _, key := range msg.AccountKeys {
		addr, err := AddressFromString(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transaction %s account table; %s", sig, err.Error())
		}
		keys = append(keys, addr)
	}
	if len(keys) == 0 || msg.Header.NumRequiredSignatures < 1 {
		return nil, fmt.Errorf("failed to parse transaction %s; no signer", sig)
	}

	detail := &TransactionDetail{
		Signature:    sig,
		Signer:       keys[0],
		Instructions: make([]*Instruction, 0, len(msg.Instructions)),
	}

	for _, rawIx := range msg.Instructions {
		if rawIx.ProgramIDIndex < 0 || rawIx.ProgramIDIndex >= len(keys) {
			return nil, fmt.Errorf("failed to parse transaction %s; program index out of range", sig)
		}
		ix := &Instruction{
			ProgramID: keys[rawIx.ProgramIDIndex],
			Data:      base58.Decode(rawIx.Data),
		}
		for _, idx := range rawIx.Accounts {
			if idx < 0 || idx >= len(keys) {
				return nil, fmt.Errorf("failed to parse transaction %s; account index out of range", sig)
			}
			ix.Accounts = append(ix.Accounts, &AccountMeta{Address: keys[idx]})
		}
		detail.Instructions = append(detail.Instructions, ix)
	}

	return detail, nil
}
