package approval

import (
	"fmt"
	"net/url"

	"ramp-quote-go/internal/models"
)

type State string

const (
	StateCreated                State = "Created"
	StateAwaitingExternalAction State = "AwaitingExternalAction"
	StateAwaitingUserPayment    State = "AwaitingUserPayment"
	StatePaymentSubmitted       State = "PaymentSubmitted"
	StateCompleted              State = "Completed"
	StateCancelled              State = "Cancelled"
	StateFailed                 State = "Failed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Link is an inbound deeplink or redirect carrying the outcome of an external
// payment surface.
type Link struct {
	Direction  models.Direction
	ProviderID string
	Query      url.Values
	URI        string
}

// ParseLink reads /ramp/{direction}/{provider}?... style callbacks.
func ParseLink(direction, provider string, u *url.URL) (Link, error) {
	dir, err := models.ParseDirection(direction)
	if err != nil {
		return Link{}, err
	}
	if provider == "" {
		return Link{}, fmt.Errorf("missing provider in deeplink")
	}
	return Link{Direction: dir, ProviderID: provider, Query: u.Query(), URI: u.String()}, nil
}

// StatusOutcome maps the common success|cancelled|failure status tag to a
// terminal state. Unrecognised values fail the flow.
func StatusOutcome(status string) State {
	switch status {
	case "success":
		return StateCompleted
	case "cancelled", "canceled", "cancel":
		return StateCancelled
	default:
		return StateFailed
	}
}
