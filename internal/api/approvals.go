package api

import (
	"context"
	"fmt"

	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/wallet"

	"go.uber.org/zap"
)

// ApproveQuote starts the approval of a booked quote. It returns once the
// checkout surface has been launched; the flow continues in the background.
func (s *RampService) ApproveQuote(ctx context.Context, id string, w wallet.Wallet, opts ...approval.StartOption) (*approval.Flow, error) {
	q, err := s.Quote(id)
	if err != nil {
		return nil, err
	}
	if q.Expired(s.now()) {
		return nil, ErrQuoteExpired
	}

	flow, err := q.Approve(ctx, w, opts...)
	if err != nil {
		zap.L().Warn("Quote approval failed",
			zap.String("quote_id", id),
			zap.String("provider", q.Provider),
			zap.Error(err))
		return flow, err
	}
	return flow, nil
}

// HandleDeeplink routes an inbound return link to the flow waiting for it.
func (s *RampService) HandleDeeplink(ctx context.Context, link approval.Link) error {
	zap.L().Info("Deeplink received",
		zap.String("direction", string(link.Direction)),
		zap.String("provider", link.ProviderID))
	return s.orch.Registry().Dispatch(ctx, link)
}

// FlowStatus is a snapshot of an approval flow.
type FlowStatus struct {
	ID       string
	Provider string
	State    approval.State
	Detail   string
	TxID     string
	Live     bool
	Events   []models.FlowEvent
}

// Flow reports a flow's state. Finished flows are answered from the event
// log when one is configured.
func (s *RampService) Flow(ctx context.Context, id string) (*FlowStatus, error) {
	status := &FlowStatus{ID: id}
	if flow, ok := s.orch.Flow(id); ok {
		status.Provider = flow.Provider()
		status.State = flow.State()
		status.Detail = flow.Detail()
		status.TxID = flow.TxID()
		status.Live = true
	}

	if s.events != nil {
		events, err := s.events.GetFlowEvents(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("unable to read flow events: %w", err)
		}
		status.Events = events
		if !status.Live && len(events) > 0 {
			last := events[len(events)-1]
			status.Provider = last.Provider
			status.State = approval.State(last.State)
			status.Detail = last.Detail
			status.TxID = last.TxId
		}
	}

	if !status.Live && len(status.Events) == 0 {
		return nil, ErrFlowNotFound
	}
	return status, nil
}
