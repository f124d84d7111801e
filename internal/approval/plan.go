package approval

import (
	"context"
	"errors"
	"strings"
	"time"

	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/wallet"

	"github.com/shopspring/decimal"
)

// Outcome is a provider's reading of a deeplink.
type Outcome struct {
	State   State
	OrderID string
	Detail  string
}

// Payment is the deposit a sell flow asks the wallet to make.
type Payment struct {
	OrderID string
	Address string
	Amount  decimal.Decimal
	Memo    *wallet.Memo
}

type PollStatus int

const (
	PollPending PollStatus = iota
	PollAwaitingPayment
	PollCompleted
	PollCancelled
	PollFailed
)

type PollResult struct {
	Status  PollStatus
	Payment *Payment
	Detail  string
}

// SellHooks drive the in-app sell surface. Every hook is optional except
// that a plan must have some way to learn the deposit (DetectPayment or Poll).
type SellHooks struct {
	SuccessURLPrefixes []string
	CancelURLPrefixes  []string
	FailURLPrefixes    []string

	// DetectPayment inspects a URL the surface navigated to and returns the
	// deposit when the URL carries it.
	DetectPayment func(ctx context.Context, rawURL string) (*Payment, error)

	// PollTrigger reports whether a URL means the order exists and its
	// status endpoint should be polled.
	PollTrigger  func(rawURL string) bool
	PollInterval time.Duration
	Poll         func(ctx context.Context) (PollResult, error)

	// Confirm tells the provider which transaction paid the order.
	Confirm func(ctx context.Context, payment Payment, txID string) error
}

// Plan is everything an adapter prepares for one approval.
type Plan struct {
	Provider  string
	Direction models.Direction
	OrderID   string
	URL       string

	// InApp opens the surface as a webview whose URL changes are observed.
	InApp bool

	// ResolveDeeplink interprets the provider's return link. A nil resolver
	// means the flow does not register for deeplinks.
	ResolveDeeplink func(link Link) Outcome

	Sell *SellHooks

	Asset        models.CryptoAsset
	FiatCode     string
	FiatAmount   decimal.Decimal
	CryptoAmount decimal.Decimal
}

func (p Plan) Validate() error {
	if p.Provider == "" {
		return errors.New("plan missing provider")
	}
	if p.URL == "" {
		return errors.New("plan missing surface url")
	}
	if p.Direction == models.DirectionBuy && p.ResolveDeeplink == nil {
		return errors.New("buy plan missing deeplink resolver")
	}
	if p.Direction == models.DirectionSell {
		if p.Sell == nil {
			return errors.New("sell plan missing hooks")
		}
		if p.Sell.DetectPayment == nil && p.Sell.Poll == nil {
			return errors.New("sell plan has no way to learn the deposit")
		}
		if p.Sell.Poll != nil && p.Sell.PollInterval <= 0 {
			return errors.New("sell plan poll interval must be positive")
		}
	}
	return nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
