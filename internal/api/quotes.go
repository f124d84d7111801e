package api

import (
	"context"

	"ramp-quote-go/internal/aggregator"
	"ramp-quote-go/internal/providers"

	"go.uber.org/zap"
)

func (s *RampService) CheckSupport(ctx context.Context, req providers.SupportRequest) []aggregator.Support {
	return s.agg.CheckSupport(ctx, req)
}

// FetchQuotes prices the request across providers and keeps every returned
// quote in the book until it is closed or swept.
func (s *RampService) FetchQuotes(ctx context.Context, req providers.QuoteRequest) (*aggregator.Result, error) {
	result, err := s.agg.FetchQuotes(ctx, req)
	if err != nil {
		return nil, err
	}

	s.mutex.Lock()
	for _, q := range result.Quotes {
		s.quotes[q.ID] = q
	}
	size := len(s.quotes)
	s.mutex.Unlock()

	zap.L().Debug("Quotes added to book",
		zap.Int("added", len(result.Quotes)),
		zap.Int("book_size", size))
	return result, nil
}

func (s *RampService) Quote(id string) (*providers.Quote, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	q, ok := s.quotes[id]
	if !ok {
		return nil, ErrQuoteNotFound
	}
	return q, nil
}

// CloseQuote releases the quote and any flow started from it.
func (s *RampService) CloseQuote(id string) error {
	s.mutex.Lock()
	q, ok := s.quotes[id]
	delete(s.quotes, id)
	s.mutex.Unlock()
	if !ok {
		return ErrQuoteNotFound
	}

	q.Close()
	zap.L().Info("Quote closed",
		zap.String("quote_id", id),
		zap.String("provider", q.Provider))
	return nil
}

// Sweep drops expired quotes that have no live approval flow and returns how
// many were removed.
func (s *RampService) Sweep() int {
	now := s.now()

	s.mutex.Lock()
	var stale []*providers.Quote
	for id, q := range s.quotes {
		if !q.Expired(now) {
			continue
		}
		if flow := q.Flow(); flow != nil && !flow.State().Terminal() {
			continue
		}
		stale = append(stale, q)
		delete(s.quotes, id)
	}
	remaining := len(s.quotes)
	s.mutex.Unlock()

	for _, q := range stale {
		q.Close()
	}
	if len(stale) > 0 {
		zap.L().Debug("Swept expired quotes",
			zap.Int("removed", len(stale)),
			zap.Int("remaining", remaining))
	}
	return len(stale)
}
