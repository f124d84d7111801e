package approval

import (
	"context"
	"fmt"
	"sync"

	"ramp-quote-go/internal/metrics"
	"ramp-quote-go/internal/models"

	"go.uber.org/zap"
)

type Handler func(ctx context.Context, link Link) error

// RoutingError is an inbound link that no active registration accepts.
type RoutingError struct {
	Link               Link
	RegisteredProvider string
	RegisteredDir      models.Direction
}

func (e *RoutingError) Error() string {
	if e.RegisteredProvider == "" {
		return fmt.Sprintf("no deeplink registration for %s/%s", e.Link.Direction, e.Link.ProviderID)
	}
	return fmt.Sprintf("deeplink %s/%s does not match registration %s/%s",
		e.Link.Direction, e.Link.ProviderID, e.RegisteredDir, e.RegisteredProvider)
}

type registration struct {
	id        uint64
	direction models.Direction
	provider  string
	handler   Handler
}

// Registry holds at most one deeplink listener at a time. Each engine owns
// its own registry.
type Registry struct {
	mu       sync.Mutex
	slot     *registration
	seq      uint64
	recorder metrics.Recorder
}

func NewRegistry(recorder metrics.Recorder) *Registry {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Registry{recorder: recorder}
}

// Register replaces any current listener. The returned release func clears
// the slot only while it still holds this registration.
func (r *Registry) Register(direction models.Direction, provider string, handler Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slot != nil {
		zap.L().Info("Replacing deeplink registration",
			zap.String("previous_provider", r.slot.provider),
			zap.String("provider", provider))
	}
	r.seq++
	id := r.seq
	r.slot = &registration{id: id, direction: direction, provider: provider, handler: handler}

	return func() {
		r.clear(id)
	}
}

func (r *Registry) clear(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slot != nil && r.slot.id == id {
		r.slot = nil
	}
}

func (r *Registry) Unregister() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slot = nil
}

// Active reports the current registration, if any.
func (r *Registry) Active() (models.Direction, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slot == nil {
		return "", "", false
	}
	return r.slot.direction, r.slot.provider, true
}

// Dispatch routes a link to the matching listener. A missing or mismatched
// registration is a *RoutingError and leaves the slot untouched. A matching
// registration is cleared after the handler returns, whatever it returns.
func (r *Registry) Dispatch(ctx context.Context, link Link) error {
	r.mu.Lock()
	slot := r.slot
	r.mu.Unlock()

	if slot == nil || slot.direction != link.Direction || slot.provider != link.ProviderID {
		routingErr := &RoutingError{Link: link}
		if slot != nil {
			routingErr.RegisteredProvider = slot.provider
			routingErr.RegisteredDir = slot.direction
		}
		r.recorder.IncCounter(metrics.DeeplinkRejected, map[string]string{"provider": link.ProviderID})
		zap.L().Warn("Rejected deeplink", zap.Error(routingErr))
		return routingErr
	}

	defer r.clear(slot.id)
	if err := slot.handler(ctx, link); err != nil {
		return fmt.Errorf("deeplink handler for %s failed: %w", link.ProviderID, err)
	}
	return nil
}
