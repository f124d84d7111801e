package providers

import (
	"errors"
	"fmt"
	"strings"

	"ramp-quote-go/internal/httpclient"
	"ramp-quote-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// TransportError is returned when a provider is unreachable or answers with
// a non-2xx status.
type TransportError = httpclient.TransportError

type LimitKind string

const (
	OverLimit  LimitKind = "over"
	UnderLimit LimitKind = "under"
)

// LimitError names the bound a requested or quoted amount violated.
type LimitError struct {
	Provider    string
	Kind        LimitKind
	Bound       decimal.Decimal
	Currency    string
	PaymentType models.PaymentType
}

func (e *LimitError) Error() string {
	word := "maximum"
	if e.Kind == UnderLimit {
		word = "minimum"
	}
	msg := fmt.Sprintf("%s: amount %s limit, %s is %s %s", e.Provider, e.Kind, word, e.Bound.String(), e.Currency)
	if e.PaymentType != "" {
		msg += fmt.Sprintf(" (%s)", e.PaymentType)
	}
	return msg
}

// ParseError is a provider response that did not match the expected schema.
type ParseError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s %s: unexpected response: %v", e.Provider, e.Operation, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConfigError is a construction-time misconfiguration and is fatal at startup.
type ConfigError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid configuration for %s: %s", e.Provider, e.Field, e.Reason)
}

// RejectedError is a payment method the provider declined to price, with
// the provider's own reason.
type RejectedError struct {
	Provider    string
	PaymentType models.PaymentType
	Reason      string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s rejected: %s", e.Provider, e.PaymentType, e.Reason)
}

// Failure is one payment-method attempt that did not produce a quote.
type Failure struct {
	PaymentType models.PaymentType
	Err         error
}

// AggregateError is returned when every attempt of a fetch failed.
type AggregateError struct {
	Provider string
	Failures []Failure
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.PaymentType == "" {
			parts = append(parts, f.Err.Error())
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", f.PaymentType, f.Err))
	}
	return fmt.Sprintf("%s: all %d quote attempts failed: %s", e.Provider, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual causes to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return multierr.Errors(e.Cause())
}

// Cause combines the failures into a single error.
func (e *AggregateError) Cause() error {
	var err error
	for _, f := range e.Failures {
		err = multierr.Append(err, f.Err)
	}
	return err
}

// LimitErrors returns every limit violation among the failures.
func (e *AggregateError) LimitErrors() []*LimitError {
	var out []*LimitError
	for _, f := range e.Failures {
		var limitErr *LimitError
		if errors.As(f.Err, &limitErr) {
			out = append(out, limitErr)
		}
	}
	return out
}

// ErrorKind classifies an error for API responses and metrics.
func ErrorKind(err error) string {
	var (
		limitErr     *LimitError
		parseErr     *ParseError
		transportErr *TransportError
		aggregateErr *AggregateError
		configErr    *ConfigError
		rejectedErr  *RejectedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &aggregateErr):
		return "aggregate"
	case errors.As(err, &limitErr):
		return "limit"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &configErr):
		return "config"
	case errors.As(err, &rejectedErr):
		return "rejected"
	}
	return "internal"
}
