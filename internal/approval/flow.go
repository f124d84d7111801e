package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ramp-quote-go/internal/wallet"

	"go.uber.org/zap"
)

type flowEvent interface{}

type deeplinkEvent struct {
	link  Link
	reply chan error
}

type urlEvent struct {
	url string
}

type pollEvent struct {
	result PollResult
	err    error
}

type walletEvent struct {
	payment Payment
	txID    string
	err     error
}

type terminateEvent struct {
	state  State
	detail string
}

// Flow is one running approval. All stimuli are queued as events and handled
// by a single goroutine.
type Flow struct {
	id      string
	plan    Plan
	wallet  wallet.Wallet
	surface Surface
	orch    *Orchestrator

	mutex   sync.RWMutex
	state   State
	orderID string
	payment *Payment
	txID    string
	detail  string

	events  chan flowEvent
	ctx     context.Context
	cancel  context.CancelFunc
	release func()

	poller     *Poller
	pollCancel context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once
}

func (f *Flow) ID() string {
	return f.id
}

func (f *Flow) Provider() string {
	return f.plan.Provider
}

func (f *Flow) State() State {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.state
}

// Detail is the reason attached to the latest transition, if any.
func (f *Flow) Detail() string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.detail
}

func (f *Flow) TxID() string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.txID
}

func (f *Flow) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the flow ends or ctx is done.
func (f *Flow) Wait(ctx context.Context) (State, error) {
	select {
	case <-f.done:
		return f.State(), nil
	case <-ctx.Done():
		return f.State(), ctx.Err()
	}
}

// Close ends the flow. A flow that has not finished ends Cancelled. Calling
// Close again has no further effect.
func (f *Flow) Close() {
	f.closeOnce.Do(func() {
		f.post(terminateEvent{state: StateCancelled, detail: "closed"})
		<-f.done
	})
}

// URLChanged reports a navigation inside an in-app surface.
func (f *Flow) URLChanged(url string) {
	f.post(urlEvent{url: url})
}

func (f *Flow) post(ev flowEvent) bool {
	select {
	case f.events <- ev:
		return true
	case <-f.done:
		return false
	}
}

func (f *Flow) deliverDeeplink(ctx context.Context, link Link) error {
	reply := make(chan error, 1)
	if !f.post(deeplinkEvent{link: link, reply: reply}) {
		return errors.New("approval flow already finished")
	}
	select {
	case err := <-reply:
		return err
	case <-f.done:
		select {
		case err := <-reply:
			return err
		default:
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Flow) run() {
	defer f.shutdown()
	for ev := range f.events {
		if f.handle(ev) {
			return
		}
	}
}

func (f *Flow) shutdown() {
	f.cancel()
	f.stopPolling()
	f.release()
	close(f.done)
	f.orch.forget(f.id)
}

// handle applies one event and reports whether the flow has ended.
func (f *Flow) handle(ev flowEvent) bool {
	switch e := ev.(type) {
	case terminateEvent:
		if f.State().Terminal() {
			return true
		}
		f.transition(e.state, e.detail)
		return true

	case deeplinkEvent:
		return f.handleDeeplink(e)

	case urlEvent:
		return f.handleURL(e.url)

	case pollEvent:
		return f.handlePoll(e)

	case walletEvent:
		return f.handleWallet(e)
	}
	return false
}

func (f *Flow) handleDeeplink(e deeplinkEvent) bool {
	outcome := f.plan.ResolveDeeplink(e.link)
	if outcome.OrderID != "" {
		f.mutex.Lock()
		f.orderID = outcome.OrderID
		f.mutex.Unlock()
	}
	state := outcome.State
	detail := outcome.Detail
	if !state.Terminal() {
		detail = fmt.Sprintf("unrecognised deeplink status: %s", e.link.URI)
		state = StateFailed
	}
	f.transition(state, detail)
	e.reply <- nil
	return true
}

func (f *Flow) handleURL(url string) bool {
	hooks := f.plan.Sell
	if hooks == nil {
		return false
	}
	state := f.State()

	switch {
	case hasAnyPrefix(url, hooks.CancelURLPrefixes):
		f.transition(StateCancelled, "cancelled at provider")
		return true
	case hasAnyPrefix(url, hooks.FailURLPrefixes):
		f.transition(StateFailed, "failed at provider")
		return true
	case hasAnyPrefix(url, hooks.SuccessURLPrefixes):
		// A send in progress finishes through the wallet result instead.
		if state == StateAwaitingUserPayment {
			return false
		}
		f.stopPolling()
		f.transition(StateCompleted, "completed at provider")
		return true
	}

	if hooks.PollTrigger != nil && hooks.Poll != nil && hooks.PollTrigger(url) {
		f.startPolling()
	}

	if hooks.DetectPayment != nil && state == StateAwaitingExternalAction {
		payment, err := hooks.DetectPayment(f.ctx, url)
		if err != nil {
			zap.L().Warn("Unable to read payment from redirect",
				zap.String("flow_id", f.id),
				zap.String("provider", f.plan.Provider),
				zap.Error(err))
			return false
		}
		if payment != nil {
			f.requestPayment(*payment)
		}
	}
	return false
}

func (f *Flow) handlePoll(e pollEvent) bool {
	if e.err != nil {
		zap.L().Warn("Order status poll failed",
			zap.String("flow_id", f.id),
			zap.String("provider", f.plan.Provider),
			zap.Error(e.err))
		return false
	}

	switch e.result.Status {
	case PollAwaitingPayment:
		if f.State() == StateAwaitingExternalAction && e.result.Payment != nil {
			f.requestPayment(*e.result.Payment)
		}
	case PollCompleted:
		f.transition(StateCompleted, e.result.Detail)
		return true
	case PollCancelled:
		f.transition(StateCancelled, e.result.Detail)
		return true
	case PollFailed:
		f.transition(StateFailed, e.result.Detail)
		return true
	}
	return false
}

func (f *Flow) handleWallet(e walletEvent) bool {
	if e.err == nil {
		f.mutex.Lock()
		f.txID = e.txID
		f.mutex.Unlock()
		f.transition(StatePaymentSubmitted, "")

		detail := ""
		if f.plan.Sell.Confirm != nil {
			if err := f.plan.Sell.Confirm(f.ctx, e.payment, e.txID); err != nil {
				zap.L().Warn("Provider did not accept transaction confirmation",
					zap.String("flow_id", f.id),
					zap.String("provider", f.plan.Provider),
					zap.String("tx_id", e.txID),
					zap.Error(err))
				detail = fmt.Sprintf("confirmation failed: %v", err)
			}
		}
		f.transition(StateCompleted, detail)
		return true
	}

	if errors.Is(e.err, wallet.ErrSendUnavailable) {
		f.transition(StateFailed, e.err.Error())
		return true
	}

	// Anything else puts the checkout back in front of the user.
	zap.L().Info("Wallet send did not complete, reopening checkout",
		zap.String("flow_id", f.id),
		zap.String("provider", f.plan.Provider),
		zap.Bool("recoverable", wallet.IsRecoverable(e.err)),
		zap.Error(e.err))
	f.mutex.Lock()
	f.payment = nil
	f.mutex.Unlock()
	f.transition(StateAwaitingExternalAction, e.err.Error())

	if err := f.surface.OpenWebView(f.ctx, f.plan.URL, f.URLChanged); err != nil {
		f.transition(StateFailed, fmt.Sprintf("unable to reopen checkout: %v", err))
		return true
	}
	return false
}

func (f *Flow) requestPayment(p Payment) {
	f.stopPolling()
	if p.OrderID != "" {
		f.mutex.Lock()
		f.orderID = p.OrderID
		f.mutex.Unlock()
	}

	f.mutex.Lock()
	f.payment = &p
	orderID := f.orderID
	f.mutex.Unlock()
	f.transition(StateAwaitingUserPayment, "")

	req := wallet.SendRequest{
		Asset:     f.plan.Asset,
		Address:   p.Address,
		Amount:    p.Amount,
		Memo:      p.Memo,
		OrderID:   orderID,
		Provider:  f.plan.Provider,
		FiatCode:  f.plan.FiatCode,
		FiatValue: f.plan.FiatAmount,
	}
	go func() {
		txID, err := f.wallet.Send(f.ctx, req)
		f.post(walletEvent{payment: p, txID: txID, err: err})
	}()
}

func (f *Flow) startPolling() {
	if f.poller != nil {
		return
	}
	hooks := f.plan.Sell
	pollCtx, cancel := context.WithCancel(f.ctx)
	f.pollCancel = cancel
	f.poller = NewPoller(hooks.PollInterval, func(ctx context.Context) {
		result, err := hooks.Poll(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case f.events <- pollEvent{result: result, err: err}:
		case <-ctx.Done():
		}
	})
	zap.L().Debug("Polling order status",
		zap.String("flow_id", f.id),
		zap.String("provider", f.plan.Provider),
		zap.Duration("interval", hooks.PollInterval))
	f.poller.Start(pollCtx)
}

func (f *Flow) stopPolling() {
	if f.poller == nil {
		return
	}
	f.pollCancel()
	f.poller.Stop()
	f.poller = nil
	f.pollCancel = nil
}

func (f *Flow) transition(state State, detail string) {
	f.mutex.Lock()
	from := f.state
	f.state = state
	f.detail = detail
	f.mutex.Unlock()

	zap.L().Info("Approval flow transition",
		zap.String("flow_id", f.id),
		zap.String("provider", f.plan.Provider),
		zap.String("from", string(from)),
		zap.String("to", string(state)),
		zap.String("detail", detail))
	f.orch.record(f, state, detail)
}
