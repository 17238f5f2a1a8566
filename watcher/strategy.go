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
	"fmt"
	"time"

	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/ledger"
)

// Strategy paces the watcher's history scans; implementations decide when
// the next scan of the reference should run but never interpret history
// themselves
type Strategy interface {
	// Wait blocks until the next scan should run or the context is done
	Wait(ctx context.Context) error

	// Close releases any resources held by the strategy
	Close() error
}

// StrategyFactory initializes the configured scan pacing strategy; poll
// rescans on a fixed interval, subscribe rescans when the store token
// account changes, degrading to a slow interval if notifications stall
func StrategyFactory(name string) (Strategy, error) {
	switch name {
	case "poll":
		return PollStrategyFactory(common.PaymentWatchInterval), nil
	case "subscribe":
		store := ledger.MustAddress(common.StoreAddress)
		mint := ledger.MustAddress(common.StablecoinMintAddress)
		return SubscribeStrategyFactory(
			common.LedgerWebsocketURL,
			ledger.DeriveTokenAccount(store, mint),
			common.PaymentWatchInterval*4,
		)
	}
	return nil, fmt.Errorf("failed to initialize watch strategy; %s is not a valid strategy", name)
}

type pollStrategy struct {
	interval time.Duration
}

// PollStrategyFactory initializes a fixed-interval scan strategy
func PollStrategyFactory(interval time.Duration) Strategy {
	return &pollStrategy{
		interval: interval,
	}
}

func (s *pollStrategy) Wait(ctx context.Context) error {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *pollStrategy) Close() error {
	return nil
}

type subscribeStrategy struct {
	subscription *ledger.AccountSubscription
	fallback     time.Duration
}

// SubscribeStrategyFactory initializes a push-driven scan strategy watching
// the given account over the ledger websocket endpoint
func SubscribeStrategyFactory(endpoint string, account ledger.Address, fallback time.Duration) (Strategy, error) {
	subscription, err := ledger.SubscribeAccount(endpoint, account)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to account %s; %s", account, err.Error())
	}

	return &subscribeStrategy{
		subscription: subscription,
		fallback:     fallback,
	}, nil
}

func (s *subscribeStrategy) Wait(ctx context.Context) error {
	timer := time.NewTimer(s.fallback)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.subscription.Notifications():
		return nil
	case <-timer.C:
		return nil
	}
}

func (s *subscribeStrategy) Close() error {
	s.subscription.Close()
	return nil
}
