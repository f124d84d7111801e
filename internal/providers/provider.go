package providers

import (
	"context"
	"errors"
	"fmt"

	"ramp-quote-go/internal/constraints"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/wallet"
)

// Info describes an adapter.
type Info struct {
	ID          string
	DisplayName string
	Directions  []models.Direction
}

func (i Info) Handles(direction models.Direction) bool {
	for _, d := range i.Directions {
		if d == direction {
			return true
		}
	}
	return false
}

// Provider is implemented by every ramp adapter.
type Provider interface {
	Info() Info

	// CheckSupport answers from cached discovery data, refreshing it at most
	// once. Unsupported combinations are a false result, never an error.
	CheckSupport(ctx context.Context, req SupportRequest) (SupportResult, error)

	// FetchQuotes prices every allowed payment method independently.
	FetchQuotes(ctx context.Context, req QuoteRequest) ([]*Quote, error)
}

type SupportRequest struct {
	Direction models.Direction
	Region    models.RegionCode
	Fiat      string
	Asset     models.CryptoAsset
	Platform  models.Platform
}

// Params converts the request into constraint parameters for provider.
func (r SupportRequest) Params(provider string) constraints.Params {
	return constraints.Params{
		Provider:  provider,
		Direction: r.Direction,
		Region:    r.Region,
		Fiat:      models.NormalizeFiat(r.Fiat),
		Asset:     r.Asset,
		Platform:  r.Platform,
	}
}

type SupportResult struct {
	Supported   bool
	AmountTypes []models.AmountType
}

func Unsupported() SupportResult {
	return SupportResult{}
}

// Supported reports support for the given amount types, both when none are given.
func Supported(amountTypes ...models.AmountType) SupportResult {
	if len(amountTypes) == 0 {
		amountTypes = []models.AmountType{models.AmountTypeFiat, models.AmountTypeCrypto}
	}
	return SupportResult{Supported: true, AmountTypes: amountTypes}
}

type QuoteRequest struct {
	Direction           models.Direction
	Region              models.RegionCode
	Asset               models.CryptoAsset
	Fiat                string
	DisplayCurrencyCode string
	AmountType          models.AmountType
	Amount              models.Amount

	// Wallet is used when the quote is approved without an explicit wallet.
	Wallet    wallet.Wallet
	PromoCode string
	Platform  models.Platform
}

func (r QuoteRequest) Validate() error {
	if r.Direction != models.DirectionBuy && r.Direction != models.DirectionSell {
		return fmt.Errorf("invalid direction %q", r.Direction)
	}
	if r.Region.CountryCode == "" {
		return errors.New("region is required")
	}
	if r.Asset.PluginID == "" {
		return errors.New("crypto asset is required")
	}
	if models.NormalizeFiat(r.Fiat) == "" {
		return errors.New("fiat currency is required")
	}
	if r.AmountType != models.AmountTypeFiat && r.AmountType != models.AmountTypeCrypto {
		return fmt.Errorf("invalid amount type %q", r.AmountType)
	}
	if err := r.Amount.Validate(); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	return nil
}

func (r QuoteRequest) SupportRequest() SupportRequest {
	return SupportRequest{
		Direction: r.Direction,
		Region:    r.Region,
		Fiat:      models.NormalizeFiat(r.Fiat),
		Asset:     r.Asset,
		Platform:  r.Platform,
	}
}

// Params returns constraint parameters scoped to one payment method.
func (r QuoteRequest) Params(provider string, paymentType models.PaymentType) constraints.Params {
	p := r.SupportRequest().Params(provider)
	p.PaymentType = paymentType
	return p
}

// DisplayCode returns the requested display currency, falling back to the fiat code.
func (r QuoteRequest) DisplayCode() string {
	if code := models.NormalizeFiat(r.DisplayCurrencyCode); code != "" {
		return code
	}
	return models.NormalizeFiat(r.Fiat)
}

// AmountCurrency returns the currency the requested amount is denominated in.
func (r QuoteRequest) AmountCurrency(cryptoCode string) string {
	if r.AmountType == models.AmountTypeFiat {
		return models.NormalizeFiat(r.Fiat)
	}
	return cryptoCode
}
