package simplex

import (
	"github.com/shopspring/decimal"
)

type fiatCurrency struct {
	TickerSymbol string          `json:"ticker_symbol" validate:"required"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
}

type money struct {
	Currency string          `json:"currency" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

// quoteResponse is either a priced quote or an error with its type.
type quoteResponse struct {
	DigitalMoney *money `json:"digital_money"`
	FiatMoney    *money `json:"fiat_money"`
	Error        string `json:"error"`
	Type         string `json:"type"`
}

// Quote error types.
const (
	errInvalidAmountLimit  = "invalidAmountLimit"
	errAmountLimitExceeded = "amount_Limit_exceeded"
	errQuote               = "quote_error"
)

// currencyCodes maps chains to the Simplex code of their native asset.
// Simplex has no way to name a token contract, so tokens are never offered.
var currencyCodes = map[string]string{
	"algorand":          "ALGO",
	"avalanche":         "AVAX-C",
	"binance":           "BNB",
	"binancesmartchain": "BNB",
	"bitcoin":           "BTC",
	"bitcoincash":       "BCH",
	"bitcoinsv":         "BSV",
	"cardano":           "ADA",
	"celo":              "CELO",
	"digibyte":          "DGB",
	"dogecoin":          "DOGE",
	"eos":               "EOS",
	"ethereum":          "ETH",
	"fantom":            "FTM",
	"filecoin":          "FIL",
	"hedera":            "HBAR",
	"litecoin":          "LTC",
	"one":               "ONE",
	"optimism":          "ETH-OPTIMISM",
	"polkadot":          "DOT",
	"polygon":           "POL",
	"qtum":              "QTUM",
	"ravencoin":         "RVN",
	"ripple":            "XRP",
	"solana":            "SOL",
	"stellar":           "XLM",
	"sui":               "SUI",
	"tezos":             "XTZ",
	"ton":               "TON",
	"tron":              "TRX",
	"wax":               "WAXP",
}
