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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/provideplatform/checkout/ledger"
)

// MintParams carries everything the external issuer requires to mint one
// compressed loyalty credential into the configured tree and collection
type MintParams struct {
	Tree        ledger.Address `json:"tree"`
	Collection  ledger.Address `json:"collection"`
	Recipient   ledger.Address `json:"recipient"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	URI         string         `json:"uri"`
	MetadataRef *string        `json:"metadata_ref,omitempty"`
}

// Issuer mints loyalty credentials; minting authority lives entirely behind
// this boundary and this service holds no signing keys of its own
type Issuer interface {
	MintCompressedAsset(params *MintParams) (*string, error)
}

type apiIssuer struct {
	endpoint   string
	httpClient *http.Client
}

// InitIssuer initializes an issuer client for the given credential issuer
// API endpoint
func InitIssuer(endpoint string) Issuer {
	return &apiIssuer{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
}

// MintCompressedAsset requests the mint of a single credential, returning
// the asset id assigned by the issuer
func (i *apiIssuer) MintCompressedAsset(params *MintParams) (*string, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mint params; %s", err.Error())
	}

	resp, err := i.httpClient.Post(fmt.Sprintf("%s/api/v1/mints", i.endpoint), "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to reach credential issuer; %s", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to mint credential; issuer responded with status %d", resp.StatusCode)
	}

	var minted struct {
		AssetID *string `json:"asset_id"`
	}
	err = json.NewDecoder(resp.Body).Decode(&minted)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer response; %s", err.Error())
	}
	if minted.AssetID == nil {
		return nil, fmt.Errorf("failed to mint credential; issuer response contained no asset id")
	}

	return minted.AssetID, nil
}
