package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ramp-quote-go/internal/metrics"
	"ramp-quote-go/internal/models"

	"go.uber.org/zap"
)

// Attempts runs one pricing attempt per payment method concurrently and
// keeps each failure isolated from its siblings.
type Attempts struct {
	provider string
	recorder metrics.Recorder

	wg      sync.WaitGroup
	mutex   sync.Mutex
	results []attemptResult
}

type attemptResult struct {
	paymentType models.PaymentType
	quotes      []*Quote
	err         error
}

func NewAttempts(provider string, recorder metrics.Recorder) *Attempts {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Attempts{provider: provider, recorder: recorder}
}

// Go launches an attempt. A panic inside fn is recorded as that attempt's failure.
func (a *Attempts) Go(ctx context.Context, paymentType models.PaymentType, fn func(ctx context.Context) ([]*Quote, error)) {
	a.mutex.Lock()
	slot := len(a.results)
	a.results = append(a.results, attemptResult{paymentType: paymentType})
	a.mutex.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		var (
			quotes []*Quote
			err    error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("quote attempt panicked: %v", r)
				}
			}()
			quotes, err = fn(ctx)
		}()

		a.mutex.Lock()
		a.results[slot].quotes = quotes
		a.results[slot].err = err
		a.mutex.Unlock()
	}()
}

// Fail records a failure without launching an attempt.
func (a *Attempts) Fail(paymentType models.PaymentType, err error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.results = append(a.results, attemptResult{paymentType: paymentType, err: err})
}

// Wait joins every attempt. Quotes keep launch order. With no quotes and at
// least one failure the failures are returned as *AggregateError; with
// nothing attempted the result is empty and nil.
func (a *Attempts) Wait() ([]*Quote, error) {
	a.wg.Wait()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	var quotes []*Quote
	var failures []Failure
	for _, r := range a.results {
		outcome := "ok"
		if r.err != nil {
			outcome = ErrorKind(r.err)
			failures = append(failures, Failure{PaymentType: r.paymentType, Err: r.err})
			a.recorder.IncCounter(metrics.QuoteFailure, map[string]string{"provider": a.provider, "outcome": outcome})
			zap.L().Debug("Quote attempt failed",
				zap.String("provider", a.provider),
				zap.String("payment_type", string(r.paymentType)),
				zap.Error(r.err))
		}
		a.recorder.IncCounter(metrics.QuoteAttempt, map[string]string{"provider": a.provider, "outcome": outcome})
		quotes = append(quotes, r.quotes...)
	}

	if len(quotes) > 0 {
		if len(failures) > 0 {
			zap.L().Info("Partial quote results",
				zap.String("provider", a.provider),
				zap.Int("quotes", len(quotes)),
				zap.Int("failures", len(failures)))
		}
		return quotes, nil
	}
	if len(failures) > 0 {
		return nil, &AggregateError{Provider: a.provider, Failures: failures}
	}
	return nil, nil
}

// FailAll records err as the failure of every payment type, for checks that
// reject the whole request before any method is priced. A limit violation is
// copied per type so each failure names its method.
func FailAll(provider string, recorder metrics.Recorder, types []models.PaymentType, err error) ([]*Quote, error) {
	attempts := NewAttempts(provider, recorder)
	if len(types) == 0 {
		attempts.Fail("", err)
		return attempts.Wait()
	}
	for _, pt := range types {
		attempts.Fail(pt, forPaymentType(err, pt))
	}
	return attempts.Wait()
}

func forPaymentType(err error, pt models.PaymentType) error {
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.PaymentType != "" {
		return err
	}
	copied := *limitErr
	copied.PaymentType = pt
	return &copied
}
