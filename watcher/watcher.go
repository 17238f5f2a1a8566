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
	"errors"
	"sync"
	"time"

	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/ledger"
)

const (
	watchStatusIdle      = "idle"
	watchStatusWatching  = "watching"
	watchStatusConfirmed = "confirmed"
	watchStatusTimedOut  = "timed_out"
	watchStatusCancelled = "cancelled"
)

const watchSignatureLimit = 16
const watchErrorBackoffMin = time.Second
const watchErrorBackoffMax = time.Second * 30

// ErrWatchTimeout indicates the watch horizon elapsed without settlement
var ErrWatchTimeout = errors.New("payment watch timed out")

// ErrWatchCancelled indicates the watch was cancelled before settlement
var ErrWatchCancelled = errors.New("payment watch cancelled")

// Result captures the first settlement observed for a reference; once
// latched it never changes, regardless of how many further scans run
type Result struct {
	Signature ledger.Signature `json:"signature"`
	Signer    ledger.Address   `json:"signer"`
	Units     uint64           `json:"units"`
	Decimals  uint8            `json:"decimals"`
}

// Watcher observes ledger history for the settlement of a single order
// reference. It drives scans through a pacing strategy and walks an
// idle -> watching -> confirmed | timed_out | cancelled lifecycle; the
// terminal states are mutually exclusive and cancellation wins any race
// with a concurrently detected settlement.
type Watcher struct {
	scanner  ledger.Scanner
	strategy Strategy
	timeout  time.Duration

	mutex  sync.Mutex
	status string
	result *Result
	cancel context.CancelFunc
}

// WatcherFactory initializes an idle payment watcher
func WatcherFactory(scanner ledger.Scanner, strategy Strategy, timeout time.Duration) *Watcher {
	return &Watcher{
		scanner:  scanner,
		strategy: strategy,
		timeout:  timeout,
		status:   watchStatusIdle,
	}
}

// Status returns the watcher's current lifecycle status
func (w *Watcher) Status() string {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.status
}

// Result returns the latched settlement, or nil if none was confirmed
func (w *Watcher) Result() *Result {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.result
}

// Cancel stops an in-flight watch; the cancelled state sticks even if a
// settlement is detected concurrently
func (w *Watcher) Cancel() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.status != watchStatusWatching && w.status != watchStatusIdle {
		return
	}
	w.status = watchStatusCancelled
	if w.cancel != nil {
		w.cancel()
	}
}

// Watch blocks until the given reference settles, the watch horizon
// elapses, or the watch is cancelled. Scan errors are transient and
// retried with backoff; only the configured timeout ends an unsettled
// watch. Watch runs at most once per watcher.
func (w *Watcher) Watch(ctx context.Context, reference ledger.Address) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mutex.Lock()
	if w.status != watchStatusIdle {
		status := w.status
		w.mutex.Unlock()
		return nil, errors.New("payment watch already " + status)
	}
	w.status = watchStatusWatching
	w.cancel = cancel
	w.mutex.Unlock()

	deadline := time.Now().Add(w.timeout)
	backoff := watchErrorBackoffMin

	for {
		result, err := w.scan(reference)
		if err != nil {
			common.Log.Debugf("failed to scan history for reference %s; %s", reference, err.Error())
			if !w.sleep(ctx, backoff) {
				return nil, w.finish(watchStatusCancelled, nil, ErrWatchCancelled)
			}
			backoff *= 2
			if backoff > watchErrorBackoffMax {
				backoff = watchErrorBackoffMax
			}
			continue
		}
		backoff = watchErrorBackoffMin

		if result != nil {
			return w.latch(result)
		}

		if time.Now().After(deadline) {
			return nil, w.finish(watchStatusTimedOut, nil, ErrWatchTimeout)
		}

		if err := w.strategy.Wait(ctx); err != nil {
			return nil, w.finish(watchStatusCancelled, nil, ErrWatchCancelled)
		}
	}
}

// scan reads recent history for the reference and extracts the first
// successful settlement, if any; a clean scan with no match returns
// (nil, nil)
func (w *Watcher) scan(reference ledger.Address) (*Result, error) {
	signatures, err := w.scanner.SignaturesForAddress(reference, watchSignatureLimit)
	if err != nil {
		return nil, err
	}

	for _, info := range signatures {
		if info.Failed() {
			continue
		}

		detail, err := w.scanner.TransactionDetail(info.Signature)
		if err != nil {
			return nil, err
		}

		for _, ix := range detail.Instructions {
			units, decimals, err := ledger.ParseTokenTransferInstruction(ix)
			if err != nil || !ix.References(reference) {
				continue
			}
			return &Result{
				Signature: info.Signature,
				Signer:    detail.Signer,
				Units:     units,
				Decimals:  decimals,
			}, nil
		}
	}

	return nil, nil
}

// latch commits the first observed settlement unless cancellation already
// won the race
func (w *Watcher) latch(result *Result) (*Result, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.status == watchStatusCancelled {
		return nil, ErrWatchCancelled
	}
	if w.result == nil {
		w.result = result
		w.status = watchStatusConfirmed
	}
	return w.result, nil
}

func (w *Watcher) finish(status string, result *Result, err error) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.status == watchStatusCancelled {
		return ErrWatchCancelled
	}
	w.status = status
	w.result = result
	return err
}

func (w *Watcher) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
