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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/provideplatform/checkout/common"
)

const subscribeHandshakeTimeout = time.Second * 15

// AccountSubscription is a push subscription delivering a signal whenever
// the subscribed account changes; consumers rescan ledger history on each
// signal rather than trusting the notification payload
type AccountSubscription struct {
	conn          *websocket.Conn
	notifications chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// SubscribeAccount opens a websocket subscription for change notifications
// on the given account
func SubscribeAccount(endpoint string, addr Address) (*AccountSubscription, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: subscribeHandshakeTimeout,
	}
	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger websocket endpoint; %s", err.Error())
	}

	err = conn.WriteJSON(&rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "accountSubscribe",
		Params:  []interface{}{addr.String(), map[string]interface{}{"commitment": "confirmed"}},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to account %s; %s", addr, err.Error())
	}

	sub := &AccountSubscription{
		conn:          conn,
		notifications: make(chan struct{}, 1),
		done:          make(chan struct{}),
	}

	go sub.consume(addr)
	return sub, nil
}

// Notifications returns the channel signaled on account changes;
// notifications are coalesced, not queued
func (s *AccountSubscription) Notifications() <-chan struct{} {
	return s.notifications
}

// Close releases the subscription and its underlying connection; safe to
// invoke more than once
func (s *AccountSubscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *AccountSubscription) consume(addr Address) {
	for {
		var msg struct {
			Method string          `json:"method"`
			Result json.RawMessage `json:"result"`
		}
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				common.Log.Debugf("account subscription for %s terminated; %s", addr, err.Error())
				s.Close()
			}
			return
		}

		if msg.Method != "accountNotification" {
			continue
		}

		select {
		case s.notifications <- struct{}{}:
		default:
			// coalesce; a pending signal already covers this change
		}
	}
}
