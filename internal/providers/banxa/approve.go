package banxa

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"
	"ramp-quote-go/internal/wallet"

	"go.uber.org/zap"
)

// orderParams carries the priced request into order creation.
type orderParams struct {
	methodID  int64
	username  string
	source    string
	target    string
	chain     string
	amountKey string
	amount    string
}

func (p *Provider) prepareApproval(q *providers.Quote, op orderParams) providers.PrepareFunc {
	return func(ctx context.Context, w wallet.Wallet) (approval.Plan, error) {
		address, err := w.ReceiveAddress(ctx, q.Asset)
		if err != nil {
			return approval.Plan{}, fmt.Errorf("unable to get receive address: %w", err)
		}
		if p.testnet && op.chain == "BTC" {
			address = testnetAddress
		} else if err := wallet.ValidateAddress(q.Asset, address); err != nil {
			return approval.Plan{}, err
		}

		created, err := p.createOrder(ctx, q.Direction, op, address)
		if err != nil {
			return approval.Plan{}, err
		}

		zap.L().Info("Banxa order created",
			zap.String("order_id", created.ID),
			zap.String("direction", string(q.Direction)),
			zap.String("payment_type", string(q.PaymentType)))

		if q.Direction == models.DirectionBuy {
			return p.buyPlan(created), nil
		}
		return p.sellPlan(q, created, address)
	}
}

func (p *Provider) createOrder(ctx context.Context, direction models.Direction, op orderParams, address string) (orderCreated, error) {
	body := map[string]any{
		"payment_method_id": op.methodID,
		"account_reference": op.username,
		"source":            op.source,
		"target":            op.target,
		"blockchain":        op.chain,
		op.amountKey:        op.amount,
	}
	if direction == models.DirectionBuy {
		deeplink := p.deps.DeeplinkURL(models.DirectionBuy)
		body["return_url_on_success"] = deeplink + "?status=success"
		body["return_url_on_cancelled"] = deeplink + "?status=cancelled"
		body["return_url_on_failure"] = deeplink + "?status=failure"
		body["wallet_address"] = address
	} else {
		returns := p.deps.SellReturnURLs()
		body["return_url_on_success"] = returns.Success
		body["return_url_on_cancelled"] = returns.Cancel
		body["return_url_on_failure"] = returns.Fail
		body["refund_address"] = address
	}

	var resp createOrderResponse
	if err := p.call(ctx, http.MethodPost, "api/orders", nil, body, "create_order", &resp); err != nil {
		return orderCreated{}, err
	}
	return resp.Data.Order, nil
}

// buyPlan hands off to the browser. Banxa appends its own "?orderId=" to the
// return URL, so a stray "?" can end up inside the status value.
func (p *Provider) buyPlan(created orderCreated) approval.Plan {
	return approval.Plan{
		Provider:  ProviderID,
		Direction: models.DirectionBuy,
		OrderID:   created.ID,
		URL:       created.CheckoutURL,
		ResolveDeeplink: func(link approval.Link) approval.Outcome {
			status := link.Query.Get("status")
			if i := strings.Index(status, "?"); i >= 0 {
				status = status[:i]
			}
			return approval.Outcome{State: approval.StatusOutcome(status), OrderID: created.ID, Detail: status}
		},
	}
}

// sellPlan opens the checkout in-app. Once the checkout reaches its status
// page the order is polled until Banxa waits for the deposit.
func (p *Provider) sellPlan(q *providers.Quote, created orderCreated, refundAddress string) (approval.Plan, error) {
	checkout, err := url.Parse(created.CheckoutURL)
	if err != nil {
		return approval.Plan{}, fmt.Errorf("invalid checkout url: %w", err)
	}
	statusPrefix := checkout.Scheme + "://" + checkout.Host + "/status/"
	returns := p.deps.SellReturnURLs()

	return approval.Plan{
		Provider:  ProviderID,
		Direction: models.DirectionSell,
		OrderID:   created.ID,
		URL:       created.CheckoutURL,
		InApp:     true,
		Sell: &approval.SellHooks{
			SuccessURLPrefixes: []string{returns.Success},
			CancelURLPrefixes:  []string{returns.Cancel},
			FailURLPrefixes:    []string{returns.Fail},
			PollTrigger: func(raw string) bool {
				return strings.HasPrefix(raw, statusPrefix)
			},
			PollInterval: p.pollInterval,
			Poll: func(ctx context.Context) (approval.PollResult, error) {
				return p.pollOrder(ctx, q.Asset, created.ID)
			},
			Confirm: func(ctx context.Context, payment approval.Payment, txID string) error {
				return p.confirmOrder(ctx, created.ID, txID, refundAddress, payment.Address)
			},
		},
	}, nil
}

func (p *Provider) getOrder(ctx context.Context, id string) (order, error) {
	var resp orderResponse
	if err := p.call(ctx, http.MethodGet, "api/orders/"+url.PathEscape(id), nil, nil, "get_order", &resp); err != nil {
		return order{}, err
	}
	return resp.Data.Order, nil
}

func (p *Provider) pollOrder(ctx context.Context, asset models.CryptoAsset, id string) (approval.PollResult, error) {
	o, err := p.getOrder(ctx, id)
	if err != nil {
		return approval.PollResult{}, err
	}

	switch o.Status {
	case "waitingPayment":
		if o.WalletAddress == "" {
			return approval.PollResult{}, &providers.ParseError{
				Provider:  ProviderID,
				Operation: "get_order",
				Err:       fmt.Errorf("order %s waiting for payment without a deposit address", id),
			}
		}
		return approval.PollResult{
			Status: approval.PollAwaitingPayment,
			Payment: &approval.Payment{
				OrderID: o.ID,
				Address: o.WalletAddress,
				Amount:  o.CoinAmount,
				Memo:    wallet.DepositMemo(asset.PluginID, o.WalletAddressTag),
			},
		}, nil
	case "complete":
		return approval.PollResult{Status: approval.PollCompleted, Detail: o.Status}, nil
	case "cancelled":
		return approval.PollResult{Status: approval.PollCancelled, Detail: o.Status}, nil
	case "declined", "expired", "refunded":
		return approval.PollResult{Status: approval.PollFailed, Detail: o.Status}, nil
	}
	return approval.PollResult{Status: approval.PollPending, Detail: o.Status}, nil
}

func (p *Provider) confirmOrder(ctx context.Context, id, txID, sourceAddress, destinationAddress string) error {
	body := map[string]string{
		"tx_hash":             txID,
		"source_address":      sourceAddress,
		"destination_address": destinationAddress,
	}
	if err := p.call(ctx, http.MethodPost, "api/orders/"+url.PathEscape(id)+"/confirm", nil, body, "confirm_order", nil); err != nil {
		return fmt.Errorf("unable to confirm banxa order %s: %w", id, err)
	}
	return nil
}
