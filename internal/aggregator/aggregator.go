package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ramp-quote-go/internal/constraints"
	"ramp-quote-go/internal/metrics"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout = 20 * time.Second
	warmParallel   = 4
)

// Warmer is implemented by providers whose discovery data can be loaded ahead
// of the first request.
type Warmer interface {
	Warm(ctx context.Context) error
}

// Config contains configuration for Aggregator
type Config struct {
	Providers   []providers.Provider
	Constraints *constraints.Engine
	Timeout     time.Duration
	Recorder    metrics.Recorder
}

// Aggregator fans a request out to every provider. It never ranks; quotes
// come back in provider registration order.
type Aggregator struct {
	providers []providers.Provider
	index     map[string]int
	engine    *constraints.Engine
	timeout   time.Duration
	recorder  metrics.Recorder
}

// Failure is one provider's error, exactly as the provider returned it.
type Failure struct {
	Provider string
	Err      error
}

type Result struct {
	Quotes   []*providers.Quote
	Failures []Failure
}

// Support is one provider's answer to a support check.
type Support struct {
	Provider string
	Result   providers.SupportResult
	Err      error
}

func New(cfg Config) *Aggregator {
	if cfg.Constraints == nil {
		cfg.Constraints = constraints.NewEngine()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	a := &Aggregator{
		providers: cfg.Providers,
		index:     make(map[string]int, len(cfg.Providers)),
		engine:    cfg.Constraints,
		timeout:   cfg.Timeout,
		recorder:  cfg.Recorder,
	}
	for i, p := range cfg.Providers {
		a.index[p.Info().ID] = i
	}
	return a
}

func (a *Aggregator) Providers() []providers.Info {
	out := make([]providers.Info, len(a.providers))
	for i, p := range a.providers {
		out[i] = p.Info()
	}
	return out
}

// Provider looks up a provider by id.
func (a *Aggregator) Provider(id string) (providers.Provider, bool) {
	i, ok := a.index[id]
	if !ok {
		return nil, false
	}
	return a.providers[i], true
}

// eligible is the pre-filter applied before a provider is contacted.
func (a *Aggregator) eligible(p providers.Provider, req providers.SupportRequest) bool {
	info := p.Info()
	if !info.Handles(req.Direction) {
		return false
	}
	return a.engine.AllowAny(req.Params(info.ID), nil)
}

// CheckSupport asks every eligible provider. Providers filtered out by the
// pre-filter answer unsupported without being contacted.
func (a *Aggregator) CheckSupport(ctx context.Context, req providers.SupportRequest) []Support {
	out := make([]Support, len(a.providers))
	var wg sync.WaitGroup
	for i, p := range a.providers {
		out[i].Provider = p.Info().ID
		if !a.eligible(p, req) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			out[i].Result, out[i].Err = a.checkSupport(ctx, p, req)
		}()
	}
	wg.Wait()
	return out
}

// FetchQuotes collects quotes from every provider that supports the request.
// Unsupported providers contribute nothing. A provider error, including an
// aggregate of failed attempts, lands in Failures untouched.
func (a *Aggregator) FetchQuotes(ctx context.Context, req providers.QuoteRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	supportReq := req.SupportRequest()

	type outcome struct {
		quotes []*providers.Quote
		err    error
	}
	outcomes := make([]outcome, len(a.providers))

	var wg sync.WaitGroup
	for i, p := range a.providers {
		if !a.eligible(p, supportReq) {
			zap.L().Debug("Provider filtered before support check",
				zap.String("provider", p.Info().ID),
				zap.String("region", req.Region.String()),
				zap.String("asset", req.Asset.String()))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			outcomes[i].quotes, outcomes[i].err = a.fetch(ctx, p, req)
		}()
	}
	wg.Wait()

	result := &Result{}
	for i, o := range outcomes {
		if o.err != nil {
			id := a.providers[i].Info().ID
			a.recorder.IncCounter(metrics.ProviderError, map[string]string{"provider": id, "outcome": providers.ErrorKind(o.err)})
			zap.L().Warn("Provider returned no quotes",
				zap.String("provider", id),
				zap.String("kind", providers.ErrorKind(o.err)),
				zap.Error(o.err))
			result.Failures = append(result.Failures, Failure{Provider: id, Err: o.err})
		}
		result.Quotes = append(result.Quotes, o.quotes...)
	}
	a.sortQuotes(result.Quotes)

	zap.L().Info("Quotes fetched",
		zap.String("direction", string(req.Direction)),
		zap.String("region", req.Region.String()),
		zap.String("asset", req.Asset.String()),
		zap.Int("quotes", len(result.Quotes)),
		zap.Int("failures", len(result.Failures)))
	return result, nil
}

func (a *Aggregator) fetch(ctx context.Context, p providers.Provider, req providers.QuoteRequest) ([]*providers.Quote, error) {
	support, err := a.checkSupport(ctx, p, req.SupportRequest())
	if err != nil {
		return nil, err
	}
	if !support.Supported || !hasAmountType(support.AmountTypes, req.AmountType) {
		return nil, nil
	}
	return a.guard(p.Info().ID, func() ([]*providers.Quote, error) {
		return p.FetchQuotes(ctx, req)
	})
}

func (a *Aggregator) checkSupport(ctx context.Context, p providers.Provider, req providers.SupportRequest) (providers.SupportResult, error) {
	var result providers.SupportResult
	_, err := a.guard(p.Info().ID, func() ([]*providers.Quote, error) {
		var err error
		result, err = p.CheckSupport(ctx, req)
		return nil, err
	})
	return result, err
}

// guard turns a provider panic into an error so one adapter cannot take the
// whole fan-out down.
func (a *Aggregator) guard(provider string, fn func() ([]*providers.Quote, error)) (quotes []*providers.Quote, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Provider panicked", zap.String("provider", provider), zap.Any("panic", r))
			quotes, err = nil, fmt.Errorf("%s: provider panicked: %v", provider, r)
		}
	}()
	return fn()
}

func (a *Aggregator) sortQuotes(quotes []*providers.Quote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		pi, pj := a.index[quotes[i].Provider], a.index[quotes[j].Provider]
		if pi != pj {
			return pi < pj
		}
		return quotes[i].PaymentType < quotes[j].PaymentType
	})
}

// Warm loads discovery data for every provider that supports it. Failures are
// logged and joined; a provider that fails keeps serving whatever it had.
func (a *Aggregator) Warm(ctx context.Context) error {
	var (
		mutex sync.Mutex
		errs  []error
	)
	var g errgroup.Group
	g.SetLimit(warmParallel)
	for _, p := range a.providers {
		w, ok := p.(Warmer)
		if !ok {
			continue
		}
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			start := time.Now()
			if err := w.Warm(ctx); err != nil {
				zap.L().Warn("Unable to warm provider support data",
					zap.String("provider", p.Info().ID),
					zap.Error(err))
				mutex.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", p.Info().ID, err))
				mutex.Unlock()
				return nil
			}
			zap.L().Debug("Provider support data warm",
				zap.String("provider", p.Info().ID),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}

func hasAmountType(types []models.AmountType, t models.AmountType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
