package constraints

import (
	"sync"

	"ramp-quote-go/internal/models"
)

// Params is the candidate combination being checked. PaymentType is empty
// when the engine is used as a pre-filter before any method is chosen.
type Params struct {
	Provider    string
	Direction   models.Direction
	Region      models.RegionCode
	Fiat        string
	Asset       models.CryptoAsset
	PaymentType models.PaymentType
	Platform    models.Platform
}

type Verdict int

const (
	Skip Verdict = iota
	Allow
	Deny
)

type Rule struct {
	Name string
	Eval func(Params) Verdict
}

// Predicate is an externally supplied veto evaluated before the static rules.
type Predicate interface {
	Allow(Params) bool
}

type PredicateFunc func(Params) bool

func (f PredicateFunc) Allow(p Params) bool {
	return f(p)
}

type Engine struct {
	rules []Rule

	mu        sync.RWMutex
	predicate Predicate
}

// NewEngine builds an engine over the given rules; with no rules the static
// rule table is used.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = StaticRules()
	}
	return &Engine{rules: rules}
}

// SetPredicate installs or clears (nil) the remote veto.
func (e *Engine) SetPredicate(p Predicate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.predicate = p
}

func (e *Engine) Allow(p Params) bool {
	p.Fiat = models.NormalizeFiat(p.Fiat)

	e.mu.RLock()
	predicate := e.predicate
	e.mu.RUnlock()
	if predicate != nil && !predicate.Allow(p) {
		return false
	}

	for _, rule := range e.rules {
		if rule.Eval(p) == Deny {
			return false
		}
	}
	return true
}

// Filter returns the payment types that pass for the given combination,
// preserving order.
func (e *Engine) Filter(p Params, paymentTypes []models.PaymentType) []models.PaymentType {
	allowed := make([]models.PaymentType, 0, len(paymentTypes))
	for _, pt := range paymentTypes {
		p.PaymentType = pt
		if e.Allow(p) {
			allowed = append(allowed, pt)
		}
	}
	return allowed
}

// AllowAny is the pre-filter: the combination is worth asking a provider about
// when it passes without a payment method and at least one candidate method
// passes too. An empty candidate list only runs the method-independent check.
func (e *Engine) AllowAny(p Params, paymentTypes []models.PaymentType) bool {
	p.PaymentType = ""
	if !e.Allow(p) {
		return false
	}
	if len(paymentTypes) == 0 {
		return true
	}
	return len(e.Filter(p, paymentTypes)) > 0
}
