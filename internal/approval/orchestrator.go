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
	"errors"
	"fmt"
	"sync"
	"time"

	"ramp-quote-go/internal/metrics"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/wallet"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventSink persists flow milestones.
type EventSink interface {
	RecordFlowEvent(ctx context.Context, event models.FlowEvent) error
}

// OrchestratorConfig contains configuration for Orchestrator
type OrchestratorConfig struct {
	Registry *Registry
	Surface  Surface
	Sink     EventSink
	Recorder metrics.Recorder
	Now      func() time.Time
}

// Orchestrator starts and tracks approval flows.
type Orchestrator struct {
	registry *Registry
	surface  Surface
	sink     EventSink
	recorder metrics.Recorder
	now      func() time.Time

	mutex sync.RWMutex
	flows map[string]*Flow
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry(cfg.Recorder)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		registry: cfg.Registry,
		surface:  cfg.Surface,
		sink:     cfg.Sink,
		recorder: cfg.Recorder,
		now:      cfg.Now,
		flows:    make(map[string]*Flow),
	}
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

type startOptions struct {
	surface Surface
}

type StartOption func(*startOptions)

// WithSurface overrides the orchestrator's default surface for one flow.
func WithSurface(s Surface) StartOption {
	return func(o *startOptions) {
		if s != nil {
			o.surface = s
		}
	}
}

// Start registers the deeplink listener, launches the checkout surface and
// returns. The flow continues in its own goroutine until it reaches a
// terminal state or is closed.
func (o *Orchestrator) Start(ctx context.Context, plan Plan, w wallet.Wallet, opts ...StartOption) (*Flow, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid approval plan: %w", err)
	}
	so := startOptions{surface: o.surface}
	for _, opt := range opts {
		opt(&so)
	}
	if so.surface == nil {
		return nil, errors.New("no surface configured for approval")
	}

	flowCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &Flow{
		id:      uuid.New().String(),
		plan:    plan,
		wallet:  w,
		surface: so.surface,
		orch:    o,
		state:   StateCreated,
		orderID: plan.OrderID,
		events:  make(chan flowEvent, 8),
		ctx:     flowCtx,
		cancel:  cancel,
		release: func() {},
		done:    make(chan struct{}),
	}

	o.mutex.Lock()
	o.flows[f.id] = f
	o.mutex.Unlock()

	zap.L().Info("Starting approval flow",
		zap.String("flow_id", f.id),
		zap.String("provider", plan.Provider),
		zap.String("direction", string(plan.Direction)),
		zap.Bool("in_app", plan.InApp))

	if plan.ResolveDeeplink != nil {
		f.release = o.registry.Register(plan.Direction, plan.Provider, f.deliverDeeplink)
	}
	f.transition(StateAwaitingExternalAction, "")
	go f.run()

	var err error
	if plan.InApp {
		err = so.surface.OpenWebView(ctx, plan.URL, f.URLChanged)
	} else {
		err = so.surface.OpenExternal(ctx, plan.URL)
	}
	if err != nil {
		f.post(terminateEvent{state: StateFailed, detail: err.Error()})
		<-f.done
		return f, fmt.Errorf("unable to open %s checkout: %w", plan.Provider, err)
	}

	return f, nil
}

// Flow looks up a live flow by id.
func (o *Orchestrator) Flow(id string) (*Flow, bool) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	f, ok := o.flows[id]
	return f, ok
}

// Close cancels every live flow.
func (o *Orchestrator) Close() {
	o.mutex.RLock()
	flows := make([]*Flow, 0, len(o.flows))
	for _, f := range o.flows {
		flows = append(flows, f)
	}
	o.mutex.RUnlock()

	for _, f := range flows {
		f.Close()
	}
}

func (o *Orchestrator) forget(id string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	delete(o.flows, id)
}

var eventSuffix = map[State]string{
	StateCreated:                "Created",
	StateAwaitingExternalAction: "Started",
	StateAwaitingUserPayment:    "Payment_Requested",
	StatePaymentSubmitted:       "Payment_Submitted",
	StateCompleted:              "Success",
	StateCancelled:              "Cancelled",
	StateFailed:                 "Failed",
}

// EventName returns the audit name for reaching a state, e.g. Buy_Success.
func EventName(direction models.Direction, state State) string {
	prefix := "Buy"
	if direction == models.DirectionSell {
		prefix = "Sell"
	}
	return prefix + "_" + eventSuffix[state]
}

func (o *Orchestrator) record(f *Flow, state State, detail string) {
	o.recorder.IncCounter(metrics.FlowTransition, map[string]string{"provider": f.plan.Provider, "outcome": string(state)})
	if o.sink == nil {
		return
	}

	f.mutex.RLock()
	event := models.FlowEvent{
		FlowId:           f.id,
		Provider:         f.plan.Provider,
		Direction:        f.plan.Direction,
		Event:            EventName(f.plan.Direction, state),
		State:            string(state),
		OrderId:          f.orderID,
		FiatCurrencyCode: f.plan.FiatCode,
		FiatAmount:       f.plan.FiatAmount,
		CryptoAsset:      f.plan.Asset.String(),
		CryptoAmount:     f.plan.CryptoAmount,
		TxId:             f.txID,
		Detail:           detail,
		CreatedAt:        o.now().UTC(),
	}
	if f.payment != nil {
		event.CryptoAmount = f.payment.Amount
	}
	f.mutex.RUnlock()

	if err := o.sink.RecordFlowEvent(f.ctx, event); err != nil {
		zap.L().Warn("Failed to record flow event",
			zap.String("flow_id", f.id),
			zap.String("event", event.Event),
			zap.Error(err))
	}
}
