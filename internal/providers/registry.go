package providers

import (
	"fmt"
	"net/http"
	"time"

	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/constraints"
	"ramp-quote-go/internal/httpclient"
	"ramp-quote-go/internal/metrics"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/store"
)

// Deps carries the shared collaborators an adapter is built from.
type Deps struct {
	Config       models.ProviderConfig
	HTTP         *http.Client
	Store        store.KeyValueStore
	Assets       *models.AssetCatalog
	Constraints  *constraints.Engine
	Orchestrator *approval.Orchestrator
	Recorder     metrics.Recorder
	Now          func() time.Time
	Platform     models.Platform

	// ReturnURL is the base of the deeplinks checkout surfaces redirect to.
	ReturnURL string
	RateLimit float64
	RateBurst int
}

// Client returns an HTTP client for the provider API, using the configured
// URL when set and fallback otherwise.
func (d Deps) Client(fallback string) *httpclient.Client {
	return d.ClientFor(d.Config.ID, d.Config.APIURL, fallback)
}

// ClientFor builds a client for a secondary host of the same provider.
func (d Deps) ClientFor(name, baseURL, fallback string) *httpclient.Client {
	if baseURL == "" {
		baseURL = fallback
	}
	return httpclient.New(name, baseURL, d.HTTP,
		httpclient.WithRateLimit(d.RateLimit, d.RateBurst),
		httpclient.WithRecorder(d.Recorder))
}

// KV returns the provider's namespace in the key-value store.
func (d Deps) KV() store.KeyValueStore {
	if d.Store == nil {
		return store.NewScoped(store.NewMemory(), d.Config.ID)
	}
	return store.NewScoped(d.Store, d.Config.ID)
}

// Catalog returns the asset catalog, the built-in one when none is configured.
func (d Deps) Catalog() *models.AssetCatalog {
	if d.Assets == nil {
		return models.NewAssetCatalog(models.DefaultAssetEntries())
	}
	return d.Assets
}

func (d Deps) Clock() func() time.Time {
	if d.Now == nil {
		return time.Now
	}
	return d.Now
}

func (d Deps) Engine() *constraints.Engine {
	if d.Constraints == nil {
		return constraints.NewEngine()
	}
	return d.Constraints
}

func (d Deps) Metrics() metrics.Recorder {
	if d.Recorder == nil {
		return metrics.NoopRecorder{}
	}
	return d.Recorder
}

// DeeplinkURL is the return URL a checkout redirects to for direction.
func (d Deps) DeeplinkURL(direction models.Direction) string {
	return fmt.Sprintf("%s/ramp/%s/%s", d.ReturnURL, direction, d.Config.ID)
}

type Factory func(Deps) (Provider, error)

// Registry maps provider ids to factories and keeps registration order.
type Registry struct {
	order     []string
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(id string, factory Factory) {
	if _, exists := r.factories[id]; !exists {
		r.order = append(r.order, id)
	}
	r.factories[id] = factory
}

func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Build constructs the provider registered under id.
func (r *Registry) Build(id string, deps Deps) (Provider, error) {
	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}
	deps.Config.ID = id
	return factory(deps)
}

// ReturnURLs are the fixed pages an in-app sell checkout lands on.
type ReturnURLs struct {
	Success string
	Cancel  string
	Fail    string
	Payment string
}

func (d Deps) SellReturnURLs() ReturnURLs {
	base := d.ReturnURL + "/redirect"
	return ReturnURLs{
		Success: base + "/success",
		Cancel:  base + "/cancel",
		Fail:    base + "/fail",
		Payment: base + "/payment",
	}
}

// Adapt turns a typed constructor into a Factory without leaking a typed nil
// provider on error.
func Adapt[P Provider](build func(Deps) (P, error)) Factory {
	return func(d Deps) (Provider, error) {
		p, err := build(d)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
