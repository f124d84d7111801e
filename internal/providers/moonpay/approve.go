package moonpay

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"
	"ramp-quote-go/internal/wallet"

	"github.com/shopspring/decimal"
)

func (p *Provider) prepareApproval(q *providers.Quote, amountType models.AmountType, qc quoteContext, resp quoteResponse) providers.PrepareFunc {
	return func(ctx context.Context, w wallet.Wallet) (approval.Plan, error) {
		address, err := w.ReceiveAddress(ctx, q.Asset)
		if err != nil {
			return approval.Plan{}, fmt.Errorf("unable to get receive address: %w", err)
		}
		if err := wallet.ValidateAddress(q.Asset, address); err != nil {
			return approval.Plan{}, err
		}

		if q.Direction == models.DirectionBuy {
			return p.buyPlan(amountType, qc, resp, address)
		}
		return p.sellPlan(q, amountType, qc, resp, address)
	}
}

func (p *Provider) buyPlan(amountType models.AmountType, qc quoteContext, resp quoteResponse, address string) (approval.Plan, error) {
	widget, err := url.Parse(p.buyWidgetURL)
	if err != nil {
		return approval.Plan{}, &providers.ConfigError{Provider: ProviderID, Field: "buy_widget_url", Reason: err.Error()}
	}
	query := url.Values{
		"apiKey":              {p.apiKey},
		"walletAddress":       {address},
		"currencyCode":        {qc.crypto.Code},
		"paymentMethod":       {qc.method},
		"baseCurrencyCode":    {qc.fiat.Code},
		"lockAmount":          {"true"},
		"showAllCurrencies":   {"false"},
		"enableRecurringBuys": {"false"},
		"redirectURL":         {p.deps.DeeplinkURL(models.DirectionBuy)},
		"externalCustomerId":  {qc.customerID},
	}
	if amountType == models.AmountTypeCrypto {
		query.Set("quoteCurrencyAmount", resp.QuoteCurrencyAmount.String())
	} else {
		query.Set("baseCurrencyAmount", resp.TotalAmount.Decimal.String())
	}
	widget.RawQuery = query.Encode()

	return approval.Plan{
		Provider:        ProviderID,
		Direction:       models.DirectionBuy,
		URL:             widget.String(),
		ResolveDeeplink: resolveBuyDeeplink,
	}, nil
}

// resolveBuyDeeplink completes the flow once Moonpay reports a transaction.
// Moonpay redirects while the transaction is still pending.
func resolveBuyDeeplink(link approval.Link) approval.Outcome {
	id := link.Query.Get("transactionId")
	status := link.Query.Get("transactionStatus")
	switch {
	case id == "" || status == "":
		return approval.Outcome{State: approval.StateFailed, Detail: "missing transaction"}
	case status == "pending" || status == "completed":
		return approval.Outcome{State: approval.StateCompleted, OrderID: id, Detail: status}
	}
	return approval.Outcome{State: approval.StatusOutcome(status), OrderID: id, Detail: status}
}

func (p *Provider) sellPlan(q *providers.Quote, amountType models.AmountType, qc quoteContext, resp quoteResponse, refundAddress string) (approval.Plan, error) {
	widget, err := url.Parse(p.sellWidgetURL)
	if err != nil {
		return approval.Plan{}, &providers.ConfigError{Provider: ProviderID, Field: "sell_widget_url", Reason: err.Error()}
	}
	returns := p.deps.SellReturnURLs()
	query := url.Values{
		"apiKey":              {p.apiKey},
		"refundWalletAddress": {refundAddress},
		"quoteCurrencyCode":   {qc.fiat.Code},
		"paymentMethod":       {qc.method},
		"baseCurrencyCode":    {qc.crypto.Code},
		"lockAmount":          {"true"},
		"showAllCurrencies":   {"false"},
		"redirectURL":         {returns.Payment},
		"externalCustomerId":  {qc.customerID},
	}
	if amountType == models.AmountTypeCrypto {
		query.Set("baseCurrencyAmount", resp.BaseCurrencyAmount.String())
	} else {
		query.Set("quoteCurrencyAmount", resp.QuoteCurrencyAmount.String())
	}
	widget.RawQuery = query.Encode()

	return approval.Plan{
		Provider:  ProviderID,
		Direction: models.DirectionSell,
		URL:       widget.String(),
		InApp:     true,
		Sell: &approval.SellHooks{
			DetectPayment: func(_ context.Context, raw string) (*approval.Payment, error) {
				if !strings.HasPrefix(raw, returns.Payment) {
					return nil, nil
				}
				return paymentFromRedirect(q.Asset, raw)
			},
		},
	}, nil
}

// paymentFromRedirect reads the deposit Moonpay appends to the payment
// redirect URL.
func paymentFromRedirect(asset models.CryptoAsset, raw string) (*approval.Payment, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid payment redirect: %w", err)
	}
	query := u.Query()
	amount := query.Get("baseCurrencyAmount")
	address := query.Get("depositWalletAddress")
	id := query.Get("transactionId")
	if amount == "" || query.Get("baseCurrencyCode") == "" || address == "" || id == "" {
		return nil, &providers.ParseError{
			Provider:  ProviderID,
			Operation: "payment_redirect",
			Err:       fmt.Errorf("redirect missing deposit parameters: %s", u.RawQuery),
		}
	}
	value, err := decimal.NewFromString(amount)
	if err != nil || !value.IsPositive() {
		return nil, &providers.ParseError{
			Provider:  ProviderID,
			Operation: "payment_redirect",
			Err:       fmt.Errorf("invalid deposit amount %q", amount),
		}
	}
	return &approval.Payment{
		OrderID: id,
		Address: address,
		Amount:  value,
		Memo:    wallet.DepositMemo(asset.PluginID, query.Get("depositWalletAddressTag")),
	}, nil
}
