package approval

import (
	"context"
	"sync"
)

// Surface is where the provider's checkout is shown to the user.
type Surface interface {
	// OpenExternal hands the URL to a browser; the result comes back as a deeplink.
	OpenExternal(ctx context.Context, url string) error
	// OpenWebView shows the URL in-app and reports every navigation.
	OpenWebView(ctx context.Context, url string, onURLChange func(string)) error
}

// Handoff is a Surface for headless callers: it records the checkout URL so
// it can be returned to an API client, which then opens it itself.
type Handoff struct {
	mu       sync.Mutex
	url      string
	observer func(string)
}

func (h *Handoff) OpenExternal(_ context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.url = url
	return nil
}

func (h *Handoff) OpenWebView(_ context.Context, url string, onURLChange func(string)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.url = url
	h.observer = onURLChange
	return nil
}

// URL returns the last URL handed off.
func (h *Handoff) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// Navigate forwards a navigation reported by the client to the flow.
func (h *Handoff) Navigate(url string) bool {
	h.mu.Lock()
	observer := h.observer
	h.mu.Unlock()
	if observer == nil {
		return false
	}
	observer(url)
	return true
}
