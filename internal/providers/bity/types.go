package bity

import (
	"ramp-quote-go/internal/models"

	"github.com/shopspring/decimal"
)

type currency struct {
	Tags          []string `json:"tags"`
	Code          string   `json:"code" validate:"required"`
	DecimalDigits int32    `json:"max_digits_in_decimal_part"`
}

type currenciesResponse struct {
	Currencies []currency `json:"currencies" validate:"dive"`
}

func (c currency) has(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// isFiat is true only for currencies tagged fiat and nothing else.
func (c currency) isFiat() bool {
	return len(c.Tags) == 1 && c.Tags[0] == "fiat"
}

func (c currency) isToken() bool {
	return c.has("erc20")
}

// pluginID maps a Bity crypto to its chain. Bity tags ERC-20 tokens with
// both "erc20" and "ethereum".
func (c currency) pluginID() (string, bool) {
	if c.isToken() && c.has("ethereum") {
		return "ethereum", true
	}
	pluginID, ok := chains[c.Code]
	return pluginID, ok
}

var chains = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"LTC":  "litecoin",
	"USDC": "ethereum",
	"USDT": "ethereum",
}

// noKYC lists the assets Bity trades without identity checks. Nothing else
// is offered since no verification step exists for it here.
var noKYC = map[models.Direction]map[models.CryptoAsset]bool{
	models.DirectionBuy: {
		{PluginID: "bitcoin"}:  true,
		{PluginID: "ethereum"}: true,
		{PluginID: "litecoin"}: true,
	},
	models.DirectionSell: {
		{PluginID: "bitcoin"}:  true,
		{PluginID: "ethereum"}: true,
		{PluginID: "ethereum", TokenID: "dac17f958d2ee523a2206206994597c13d831ec7"}: true,
		{PluginID: "ethereum", TokenID: "a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"}: true,
	},
}

var countries = []string{
	"AT", "BE", "BG", "CH", "CZ", "DK", "EE", "FI", "FR", "DE",
	"GR", "HU", "IE", "IT", "LV", "LT", "LU", "NL", "PL", "PT",
	"RO", "SK", "SI", "ES", "SE", "HR", "LI", "NO", "SM", "GB",
}

// side is one leg of an estimate. Exactly one of the two legs carries an
// amount; Bity prices the other.
type side struct {
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency"`
}

type estimateRequest struct {
	Input  side `json:"input"`
	Output side `json:"output"`
}

type estimateLeg struct {
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency" validate:"required"`
	MinimumAmount decimal.NullDecimal `json:"minimum_amount"`
}

type estimate struct {
	Input  estimateLeg `json:"input"`
	Output estimateLeg `json:"output"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Errors []apiError `json:"errors"`
}
