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

package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrQuoteClosed    = errors.New("quote is closed")
	ErrQuoteApproved  = errors.New("quote already approved")
	ErrNotApprovable  = errors.New("quote cannot be approved")
	ErrWalletRequired = errors.New("wallet is required to approve a quote")
)

// PrepareFunc creates the provider order and returns the plan that drives
// its approval.
type PrepareFunc func(ctx context.Context, w wallet.Wallet) (approval.Plan, error)

// Quote is one priced offer. Expiry is advisory; callers must discard a
// quote once ExpiresAt has passed.
type Quote struct {
	ID                  string
	Provider            string
	Direction           models.Direction
	Region              models.RegionCode
	Asset               models.CryptoAsset
	FiatCurrencyCode    string
	FiatAmount          decimal.Decimal
	DisplayCurrencyCode string
	CryptoAmount        decimal.Decimal
	PaymentType         models.PaymentType
	IsEstimate          bool
	ExpiresAt           time.Time
	SettlementRange     models.SettlementRange

	approver *approver
}

type approver struct {
	orch    *approval.Orchestrator
	prepare PrepareFunc
	wallet  wallet.Wallet

	mutex     sync.Mutex
	flow      *approval.Flow
	pending   bool
	closed    bool
	closeOnce sync.Once
}

// Bind attaches the approval path. It assigns an id when the quote has none.
func (q *Quote) Bind(orch *approval.Orchestrator, w wallet.Wallet, prepare PrepareFunc) *Quote {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	q.approver = &approver{orch: orch, prepare: prepare, wallet: w}
	return q
}

// Expired reports whether the quote is past its expiry at now.
func (q *Quote) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && !now.Before(q.ExpiresAt)
}

// Approve creates the provider order and hands off to the checkout surface.
// It returns once the surface has been launched.
func (q *Quote) Approve(ctx context.Context, w wallet.Wallet, opts ...approval.StartOption) (*approval.Flow, error) {
	a := q.approver
	if a == nil || a.orch == nil || a.prepare == nil {
		return nil, ErrNotApprovable
	}
	if w == nil {
		w = a.wallet
	}
	if w == nil {
		return nil, ErrWalletRequired
	}

	// The provider calls run unlocked so Close and Flow never wait on them.
	a.mutex.Lock()
	switch {
	case a.closed:
		a.mutex.Unlock()
		return nil, ErrQuoteClosed
	case a.pending, a.flow != nil && !a.flow.State().Terminal():
		a.mutex.Unlock()
		return nil, ErrQuoteApproved
	}
	a.pending = true
	a.mutex.Unlock()

	flow, err := q.start(ctx, a, w, opts)

	a.mutex.Lock()
	a.pending = false
	if flow != nil {
		a.flow = flow
	}
	closed := a.closed
	a.mutex.Unlock()

	if closed && flow != nil {
		flow.Close()
		return flow, ErrQuoteClosed
	}
	if err != nil {
		return flow, err
	}

	zap.L().Info("Quote approved",
		zap.String("quote_id", q.ID),
		zap.String("flow_id", flow.ID()),
		zap.String("provider", q.Provider),
		zap.String("payment_type", string(q.PaymentType)))
	return flow, nil
}

func (q *Quote) start(ctx context.Context, a *approver, w wallet.Wallet, opts []approval.StartOption) (*approval.Flow, error) {
	plan, err := a.prepare(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare %s approval: %w", q.Provider, err)
	}
	q.fillPlan(&plan)
	return a.orch.Start(ctx, plan, w, opts...)
}

func (q *Quote) fillPlan(plan *approval.Plan) {
	if plan.Provider == "" {
		plan.Provider = q.Provider
	}
	if plan.Direction == "" {
		plan.Direction = q.Direction
	}
	if plan.Asset.PluginID == "" {
		plan.Asset = q.Asset
	}
	if plan.FiatCode == "" {
		plan.FiatCode = q.FiatCurrencyCode
	}
	if plan.FiatAmount.IsZero() {
		plan.FiatAmount = q.FiatAmount
	}
	if plan.CryptoAmount.IsZero() {
		plan.CryptoAmount = q.CryptoAmount
	}
}

// Flow returns the approval flow started by Approve, if any.
func (q *Quote) Flow() *approval.Flow {
	if q.approver == nil {
		return nil
	}
	q.approver.mutex.Lock()
	defer q.approver.mutex.Unlock()
	return q.approver.flow
}

// Close releases the deeplink registration and polling of any flow started
// from this quote. Calling it more than once has no further effect.
func (q *Quote) Close() {
	a := q.approver
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		a.mutex.Lock()
		a.closed = true
		flow := a.flow
		a.mutex.Unlock()

		if flow != nil {
			flow.Close()
		}
	})
}
