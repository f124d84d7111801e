package moonpay

import (
	"ramp-quote-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type currencyMetadata struct {
	ContractAddress *string `json:"contractAddress"`
	NetworkCode     string  `json:"networkCode"`
}

type currency struct {
	Type            string              `json:"type" validate:"oneof=crypto fiat"`
	Code            string              `json:"code" validate:"required"`
	Name            string              `json:"name"`
	MinAmount       decimal.NullDecimal `json:"minAmount"`
	MaxAmount       decimal.NullDecimal `json:"maxAmount"`
	MinBuyAmount    decimal.NullDecimal `json:"minBuyAmount"`
	MaxBuyAmount    decimal.NullDecimal `json:"maxBuyAmount"`
	MinSellAmount   decimal.NullDecimal `json:"minSellAmount"`
	MaxSellAmount   decimal.NullDecimal `json:"maxSellAmount"`
	IsSuspended     bool                `json:"isSuspended"`
	IsSupportedInUS *bool               `json:"isSupportedInUS"`
	IsSellSupported bool                `json:"isSellSupported"`
	Metadata        *currencyMetadata   `json:"metadata"`
}

// limit returns the direction's bounds, falling back to the generic ones.
// A missing minimum is zero and a missing maximum is unbounded.
func (c currency) limit(direction models.Direction) models.PaymentLimit {
	minimum, maximum := c.MinBuyAmount, c.MaxBuyAmount
	if direction == models.DirectionSell {
		minimum, maximum = c.MinSellAmount, c.MaxSellAmount
	}
	if !minimum.Valid {
		minimum = c.MinAmount
	}
	if !maximum.Valid {
		maximum = c.MaxAmount
	}
	return models.PaymentLimit{Min: minimum.Decimal, Max: maximum.Decimal}
}

// tokenID converts the contract to a token id. The zero address is how
// Moonpay marks some native assets.
func (m currencyMetadata) tokenID() string {
	if m.ContractAddress == nil || *m.ContractAddress == "" {
		return ""
	}
	contract := *m.ContractAddress
	if common.IsHexAddress(contract) && common.HexToAddress(contract) == (common.Address{}) {
		return ""
	}
	return models.NormalizeContract(contract)
}

type state struct {
	Code          string `json:"code" validate:"required"`
	IsAllowed     bool   `json:"isAllowed"`
	IsBuyAllowed  bool   `json:"isBuyAllowed"`
	IsSellAllowed bool   `json:"isSellAllowed"`
}

type country struct {
	Alpha2        string  `json:"alpha2" validate:"required,len=2"`
	IsAllowed     bool    `json:"isAllowed"`
	IsBuyAllowed  bool    `json:"isBuyAllowed"`
	IsSellAllowed bool    `json:"isSellAllowed"`
	States        []state `json:"states" validate:"dive"`
}

type quoteResponse struct {
	BaseCurrencyCode    string              `json:"baseCurrencyCode" validate:"required"`
	BaseCurrencyAmount  decimal.Decimal     `json:"baseCurrencyAmount"`
	QuoteCurrencyCode   string              `json:"quoteCurrencyCode" validate:"required"`
	QuoteCurrencyAmount decimal.Decimal     `json:"quoteCurrencyAmount"`
	FeeAmount           decimal.NullDecimal `json:"feeAmount"`
	NetworkFeeAmount    decimal.NullDecimal `json:"networkFeeAmount"`
	TotalAmount         decimal.NullDecimal `json:"totalAmount"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// paymentMethods maps payment types to Moonpay payment and payout methods.
var paymentMethods = map[models.PaymentType]string{
	models.PaymentTypeApplePay:  "credit_debit_card",
	models.PaymentTypeCredit:    "credit_debit_card",
	models.PaymentTypeGooglePay: "credit_debit_card",
	models.PaymentTypeACH:       "ach_bank_transfer",
	models.PaymentTypePaypal:    "paypal",
	models.PaymentTypeVenmo:     "venmo",
}

var allowedPaymentTypes = map[models.Direction][]models.PaymentType{
	models.DirectionBuy: {
		models.PaymentTypeCredit,
		models.PaymentTypePaypal,
		models.PaymentTypeVenmo,
	},
	models.DirectionSell: {
		models.PaymentTypeACH,
		models.PaymentTypeCredit,
		models.PaymentTypePaypal,
		models.PaymentTypeVenmo,
	},
}

var networkPlugins = map[string]string{
	"algorand":            "algorand",
	"arbitrum":            "arbitrum",
	"avalanche_c_chain":   "avalanche",
	"base":                "base",
	"binance_smart_chain": "binancesmartchain",
	"bitcoin":             "bitcoin",
	"bitcoin_cash":        "bitcoincash",
	"cardano":             "cardano",
	"cosmos":              "cosmoshub",
	"dogecoin":            "dogecoin",
	"ethereum":            "ethereum",
	"hedera":              "hedera",
	"litecoin":            "litecoin",
	"optimism":            "optimism",
	"osmosis":             "osmosis",
	"polygon":             "polygon",
	"ripple":              "ripple",
	"solana":              "solana",
	"s_sonic":             "sonic",
	"stellar":             "stellar",
	"sui":                 "sui",
	"tezos":               "tezos",
	"tron":                "tron",
	"ton":                 "ton",
	"zksync":              "zksync",
}
