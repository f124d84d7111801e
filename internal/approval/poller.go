/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package approval

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Poller calls fn every interval with at most one call in flight.
type Poller struct {
	interval time.Duration
	fn       func(ctx context.Context)

	inFlight atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewPoller(interval time.Duration, fn func(ctx context.Context)) *Poller {
	return &Poller{
		interval: interval,
		fn:       fn,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins polling. Calling it again is a no-op.
func (p *Poller) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.pollLoop(ctx)
}

// Stop ends the loop and waits for it to exit. Safe to call more than once,
// and before Start.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.started.Load() {
			<-p.doneChan
		}
	})
}

// Tick runs one poll unless one is already outstanding, reporting whether it ran.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer p.inFlight.Store(false)
	p.fn(ctx)
	return true
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Tick(ctx)
			}()
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
