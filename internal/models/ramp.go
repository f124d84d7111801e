package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a ramp: buy converts fiat to crypto, sell the reverse.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionBuy:
		return DirectionBuy, nil
	case DirectionSell:
		return DirectionSell, nil
	}
	return "", fmt.Errorf("invalid direction %q", s)
}

// AmountType says which side of the pair the requested amount is denominated in.
type AmountType string

const (
	AmountTypeFiat   AmountType = "fiat"
	AmountTypeCrypto AmountType = "crypto"
)

func ParseAmountType(s string) (AmountType, error) {
	switch AmountType(strings.ToLower(strings.TrimSpace(s))) {
	case AmountTypeFiat:
		return AmountTypeFiat, nil
	case AmountTypeCrypto:
		return AmountTypeCrypto, nil
	}
	return "", fmt.Errorf("invalid amount type %q", s)
}

// PaymentType is the provider-neutral name of a payment or payout method.
type PaymentType string

const (
	PaymentTypeACH            PaymentType = "ach"
	PaymentTypeApplePay       PaymentType = "applepay"
	PaymentTypeColombiaBank   PaymentType = "colombiabank"
	PaymentTypeCredit         PaymentType = "credit"
	PaymentTypeDirectToBank   PaymentType = "directtobank"
	PaymentTypeFasterPayments PaymentType = "fasterpayments"
	PaymentTypeGooglePay      PaymentType = "googlepay"
	PaymentTypeIACH           PaymentType = "iach"
	PaymentTypeIdeal          PaymentType = "ideal"
	PaymentTypeInterac        PaymentType = "interac"
	PaymentTypeIOBank         PaymentType = "iobank"
	PaymentTypeMexicoBank     PaymentType = "mexicobank"
	PaymentTypePayID          PaymentType = "payid"
	PaymentTypePaypal         PaymentType = "paypal"
	PaymentTypePix            PaymentType = "pix"
	PaymentTypePSE            PaymentType = "pse"
	PaymentTypeRevolut        PaymentType = "revolut"
	PaymentTypeSepa           PaymentType = "sepa"
	PaymentTypeSpei           PaymentType = "spei"
	PaymentTypeTurkishBank    PaymentType = "turkishbank"
	PaymentTypeVenmo          PaymentType = "venmo"
	PaymentTypeWire           PaymentType = "wire"
)

// Platform identifies the client surface; wallet-pay methods depend on it.
type Platform string

const (
	PlatformUnknown Platform = ""
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// CryptoAsset identifies a chain's native asset (empty TokenID) or a token on it.
type CryptoAsset struct {
	PluginID string `json:"pluginId"`
	TokenID  string `json:"tokenId,omitempty"`
}

func (a CryptoAsset) IsNative() bool {
	return a.TokenID == ""
}

// Key returns the composite map key pluginId:tokenId.
func (a CryptoAsset) Key() string {
	return a.PluginID + ":" + a.TokenID
}

func (a CryptoAsset) String() string {
	if a.IsNative() {
		return a.PluginID
	}
	return a.Key()
}

// ParseCryptoAsset accepts "ethereum" or "ethereum:<tokenId>".
func ParseCryptoAsset(s string) (CryptoAsset, error) {
	s = strings.TrimSpace(s)
	pluginID, tokenID, _ := strings.Cut(s, ":")
	if pluginID == "" {
		return CryptoAsset{}, fmt.Errorf("invalid crypto asset %q", s)
	}
	if tokenID == "null" {
		tokenID = ""
	}
	return CryptoAsset{PluginID: pluginID, TokenID: tokenID}, nil
}

// RegionCode is a country with an optional state or province.
type RegionCode struct {
	CountryCode       string `json:"countryCode"`
	StateProvinceCode string `json:"stateProvinceCode,omitempty"`
}

func (r RegionCode) String() string {
	if r.StateProvinceCode == "" {
		return r.CountryCode
	}
	return r.CountryCode + ":" + r.StateProvinceCode
}

// ParseRegionCode accepts "US", "US:NY" or "US-NY".
func ParseRegionCode(s string) (RegionCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	country, state, found := strings.Cut(s, ":")
	if !found {
		country, state, _ = strings.Cut(s, "-")
	}
	if len(country) != 2 {
		return RegionCode{}, fmt.Errorf("invalid region code %q", s)
	}
	return RegionCode{CountryCode: country, StateProvinceCode: state}, nil
}

// NormalizeFiat upper-cases an ISO currency code and strips any "iso:" prefix.
func NormalizeFiat(code string) string {
	code = strings.TrimSpace(code)
	if len(code) > 4 && strings.EqualFold(code[:4], "iso:") {
		code = code[4:]
	}
	return strings.ToUpper(code)
}

// Amount is either an exact decimal or a request for the provider maximum.
// Cap optionally bounds a resolved maximum (e.g. the wallet balance on sell).
type Amount struct {
	Exact decimal.Decimal
	Max   bool
	Cap   decimal.NullDecimal
}

func ExactAmount(d decimal.Decimal) Amount {
	return Amount{Exact: d}
}

func MaxAmount() Amount {
	return Amount{Max: true}
}

func (a Amount) Validate() error {
	if a.Max {
		if !a.Exact.IsZero() {
			return fmt.Errorf("amount cannot be both exact and max")
		}
		if a.Cap.Valid && !a.Cap.Decimal.IsPositive() {
			return fmt.Errorf("max amount cap must be positive, got %s", a.Cap.Decimal)
		}
		return nil
	}
	if !a.Exact.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", a.Exact)
	}
	return nil
}

func (a Amount) String() string {
	if a.Max {
		return "max"
	}
	return a.Exact.String()
}

// SettlementRange is the expected time for funds to arrive once approved.
type SettlementRange struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

func (r SettlementRange) String() string {
	return fmt.Sprintf("%s-%s", formatSettlement(r.Min), formatSettlement(r.Max))
}

func formatSettlement(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	default:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
}

// PaymentLimit bounds the fiat amount of one payment method for a (fiat, crypto) pair.
type PaymentLimit struct {
	PaymentMethodID string
	Min             decimal.Decimal
	Max             decimal.Decimal
}

// Contains reports whether amount lies inside [Min, Max].
func (l PaymentLimit) Contains(amount decimal.Decimal) bool {
	return !amount.LessThan(l.Min) && !amount.GreaterThan(l.Max)
}
