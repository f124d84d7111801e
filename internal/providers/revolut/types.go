package revolut

import (
	"strings"

	"ramp-quote-go/internal/models"

	"github.com/shopspring/decimal"
)

type fiat struct {
	Currency string          `json:"currency" validate:"required"`
	MinLimit decimal.Decimal `json:"min_limit"`
	MaxLimit decimal.Decimal `json:"max_limit"`
}

type crypto struct {
	ID                   string  `json:"id" validate:"required"`
	Currency             string  `json:"currency" validate:"required"`
	Blockchain           string  `json:"blockchain" validate:"required"`
	SmartContractAddress *string `json:"smartContractAddress"`
}

type config struct {
	Version        string   `json:"version" validate:"required"`
	Countries      []string `json:"countries"`
	Fiat           []fiat   `json:"fiat" validate:"dive"`
	Crypto         []crypto `json:"crypto" validate:"dive"`
	PaymentMethods []string `json:"payment_methods"`
}

type fee struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type quoteResponse struct {
	ServiceFee fee `json:"service_fee"`
	NetworkFee fee `json:"network_fee"`
	PartnerFee fee `json:"partner_fee"`
	Crypto     struct {
		Amount     decimal.Decimal `json:"amount"`
		CurrencyID string          `json:"currencyId" validate:"required"`
	} `json:"crypto"`
}

type redirectResponse struct {
	RampRedirectURL string `json:"ramp_redirect_url" validate:"required,url"`
}

// paymentMethod is the only Revolut payment option offered. Card and wallet
// payments are left to other providers.
const paymentMethod = "revolut"

var blockchains = map[string]string{
	"ALGORAND":    "algorand",
	"AVALANCHE":   "avalanche",
	"BITCOIN":     "bitcoin",
	"BITCOINCASH": "bitcoincash",
	"CARDANO":     "cardano",
	"DOGECOIN":    "dogecoin",
	"ETHEREUM":    "ethereum",
	"LITECOIN":    "litecoin",
	"OPTIMISM":    "optimism",
	"POLKADOT":    "polkadot",
	"POLYGON":     "polygon",
	"RIPPLE":      "ripple",
	"SOLANA":      "solana",
	"STELLAR":     "stellar",
	"TEZOS":       "tezos",
	"TRON":        "tron",
}

var nativeCurrencies = map[string]bool{
	"ADA":  true,
	"ALGO": true,
	"AVAX": true,
	"BCH":  true,
	"BTC":  true,
	"DOGE": true,
	"DOT":  true,
	"ETH":  true,
	"LTC":  true,
	"POL":  true,
	"SOL":  true,
	"XLM":  true,
	"XRP":  true,
	"XTZ":  true,
}

// asset maps a Revolut crypto to an asset. Tokens are identified by contract;
// native currencies must be known.
func (c crypto) asset() (models.CryptoAsset, bool) {
	pluginID, ok := blockchains[strings.ToUpper(c.Blockchain)]
	if !ok {
		return models.CryptoAsset{}, false
	}
	if c.SmartContractAddress != nil && *c.SmartContractAddress != "" {
		return models.CryptoAsset{PluginID: pluginID, TokenID: models.NormalizeContract(*c.SmartContractAddress)}, true
	}
	if !nativeCurrencies[c.Currency] {
		return models.CryptoAsset{}, false
	}
	return models.CryptoAsset{PluginID: pluginID}, true
}
