package paybis

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"
	"ramp-quote-go/internal/wallet"
)

const (
	flowBuy  = "buyCrypto"
	flowSell = "sellCrypto"

	partnerControlled = "partner_controlled_with_redirect"
)

func (p *Provider) prepareApproval(q *providers.Quote, qc quoteContext, quoteID string) providers.PrepareFunc {
	return func(ctx context.Context, w wallet.Wallet) (approval.Plan, error) {
		req := publicRequest{
			PartnerUserID: qc.userID,
			Locale:        "en",
			Passwordless:  true,
			TrustedKyc:    false,
			QuoteID:       quoteID,
			PaymentMethod: qc.method,
		}
		returns := p.deps.SellReturnURLs()

		if q.Direction == models.DirectionBuy {
			address, err := w.ReceiveAddress(ctx, q.Asset)
			if err != nil {
				return approval.Plan{}, fmt.Errorf("unable to get receive address: %w", err)
			}
			if err := wallet.ValidateAddress(q.Asset, address); err != nil {
				return approval.Plan{}, err
			}
			req.CryptoWalletAddress = &walletAddress{CurrencyCode: qc.cryptoCode, Address: address}
			req.Flow = flowBuy
		} else {
			req.CryptoPaymentMethod = partnerControlled
			req.Flow = flowSell
			req.DepositCallbackURL = returns.Payment
		}

		var resp publicRequestResponse
		if err := p.post(ctx, "v2/public/request", qc.promoCode, req, true, "request", &resp); err != nil {
			return approval.Plan{}, err
		}

		widget, err := url.Parse(p.widgetFor(q.Asset))
		if err != nil {
			return approval.Plan{}, &providers.ConfigError{Provider: ProviderID, Field: "widget_url", Reason: err.Error()}
		}
		query := url.Values{"requestId": {resp.RequestID}}
		if resp.OneTimeToken != "" {
			query.Set("oneTimeToken", resp.OneTimeToken)
		}
		if qc.promoCode != "" {
			query.Set("promoCode", qc.promoCode)
		}

		if q.Direction == models.DirectionBuy {
			deeplink := p.deps.DeeplinkURL(models.DirectionBuy)
			query.Set("successReturnURL", deeplink+"?transactionStatus=success")
			query.Set("failureReturnURL", deeplink+"?transactionStatus=failure")
			widget.RawQuery = query.Encode()
			return approval.Plan{
				Provider:  ProviderID,
				Direction: models.DirectionBuy,
				OrderID:   resp.RequestID,
				URL:       widget.String(),
				ResolveDeeplink: func(link approval.Link) approval.Outcome {
					status := link.Query.Get("transactionStatus")
					return approval.Outcome{State: approval.StatusOutcome(status), OrderID: resp.RequestID, Detail: status}
				},
			}, nil
		}

		query.Set("successReturnURL", returns.Success)
		query.Set("failureReturnURL", returns.Fail)
		widget.RawQuery = query.Encode()
		requestID := resp.RequestID
		return approval.Plan{
			Provider:  ProviderID,
			Direction: models.DirectionSell,
			OrderID:   requestID,
			URL:       widget.String(),
			InApp:     true,
			Sell: &approval.SellHooks{
				SuccessURLPrefixes: []string{returns.Success},
				FailURLPrefixes:    []string{returns.Fail},
				DetectPayment: func(ctx context.Context, raw string) (*approval.Payment, error) {
					if !strings.HasPrefix(raw, returns.Payment) {
						return nil, nil
					}
					return p.payment(ctx, requestID)
				},
			},
		}, nil
	}
}

// widgetFor picks the sandbox widget for testnet assets.
func (p *Provider) widgetFor(asset models.CryptoAsset) string {
	if testnetPlugins[asset.PluginID] {
		return sandboxWidgetURL
	}
	return p.widgetURL
}

// payment fetches the deposit Paybis expects once the user confirms a sale.
func (p *Provider) payment(ctx context.Context, requestID string) (*approval.Payment, error) {
	var details paymentDetails
	if err := p.get(ctx, "v2/request/"+url.PathEscape(requestID)+"/payment-details", "payment_details", &details); err != nil {
		return nil, err
	}
	asset, ok := currencies[details.AssetID]
	if !ok {
		return nil, &providers.ParseError{
			Provider:  ProviderID,
			Operation: "payment_details",
			Err:       fmt.Errorf("unknown deposit asset %q", details.AssetID),
		}
	}
	if !details.Amount.IsPositive() {
		return nil, &providers.ParseError{
			Provider:  ProviderID,
			Operation: "payment_details",
			Err:       fmt.Errorf("invalid deposit amount %s", details.Amount),
		}
	}
	return &approval.Payment{
		OrderID: requestID,
		Address: details.DepositAddress,
		Amount:  details.Amount,
		Memo:    wallet.DepositMemo(asset.PluginID, details.DestinationTag),
	}, nil
}
