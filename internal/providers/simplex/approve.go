package simplex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"
	"ramp-quote-go/internal/wallet"

	"github.com/golang-jwt/jwt/v5"
)

func (p *Provider) prepareApproval(q *providers.Quote, userID, cryptoCode, fiatCode string) providers.PrepareFunc {
	return func(ctx context.Context, w wallet.Wallet) (approval.Plan, error) {
		address, err := w.ReceiveAddress(ctx, q.Asset)
		if err != nil {
			return approval.Plan{}, fmt.Errorf("unable to get receive address: %w", err)
		}
		if err := wallet.ValidateAddress(q.Asset, address); err != nil {
			return approval.Plan{}, err
		}

		token, err := p.sign(jwt.MapClaims{
			"ts":   p.now().Unix(),
			"euid": userID,
			"crad": address,
			"crcn": cryptoCode,
			"ficn": fiatCode,
			"fiam": json.Number(q.FiatAmount.String()),
		})
		if err != nil {
			return approval.Plan{}, err
		}
		query := url.Values{"partner": {p.partner}, "t": {token}}

		return approval.Plan{
			Provider:        ProviderID,
			Direction:       models.DirectionBuy,
			URL:             p.widget + "/?" + query.Encode(),
			ResolveDeeplink: resolveDeeplink,
		}, nil
	}
}

// resolveDeeplink reads the order status Simplex returns with. The status may
// carry a stray query separator.
func resolveDeeplink(link approval.Link) approval.Outcome {
	status, _, _ := strings.Cut(link.Query.Get("status"), "?")
	orderID := link.Query.Get("orderId")
	if orderID == "" {
		orderID = "unknown"
	}
	return approval.Outcome{State: approval.StatusOutcome(status), OrderID: orderID, Detail: status}
}
