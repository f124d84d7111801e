package revolut

import (
	"context"
	"fmt"
	"net/url"

	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"
	"ramp-quote-go/internal/store"
	"ramp-quote-go/internal/wallet"

	"github.com/google/uuid"
)

func (p *Provider) prepareApproval(q *providers.Quote, f fiat, currencyID string) providers.PrepareFunc {
	return func(ctx context.Context, w wallet.Wallet) (approval.Plan, error) {
		address, err := w.ReceiveAddress(ctx, q.Asset)
		if err != nil {
			return approval.Plan{}, fmt.Errorf("unable to get receive address: %w", err)
		}
		if err := wallet.ValidateAddress(q.Asset, address); err != nil {
			return approval.Plan{}, err
		}
		reference, err := store.IdentityToken(ctx, p.kv, identityKey)
		if err != nil {
			return approval.Plan{}, err
		}

		orderID := uuid.New().String()
		var resp redirectResponse
		err = p.get(ctx, "partners/api/2.0/buy", url.Values{
			"fiat":                           {f.Currency},
			"amount":                         {q.FiatAmount.String()},
			"crypto":                         {currencyID},
			"payment":                        {paymentMethod},
			"region":                         {q.Region.CountryCode},
			"wallet":                         {address},
			"orderId":                        {orderID},
			"partnerRedirectUrl":             {p.deps.DeeplinkURL(models.DirectionBuy) + "?transactionStatus=success"},
			"additionalProperties.reference": {reference},
		}, "buy", &resp)
		if err != nil {
			return approval.Plan{}, err
		}

		return approval.Plan{
			Provider:        ProviderID,
			Direction:       models.DirectionBuy,
			OrderID:         orderID,
			URL:             resp.RampRedirectURL,
			ResolveDeeplink: resolveDeeplink,
		}, nil
	}
}

// resolveDeeplink completes the flow on success. Revolut only redirects back
// on success, so anything else fails it.
func resolveDeeplink(link approval.Link) approval.Outcome {
	status := link.Query.Get("transactionStatus")
	if status == "success" {
		return approval.Outcome{State: approval.StateCompleted, Detail: status}
	}
	return approval.Outcome{State: approval.StateFailed, Detail: fmt.Sprintf("unexpected return link status: %q", status)}
}
