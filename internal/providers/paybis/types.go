package paybis

import (
	"ramp-quote-go/internal/models"

	"github.com/shopspring/decimal"
)

type currencyAndCode struct {
	Currency     string `json:"currency"`
	CurrencyCode string `json:"currencyCode" validate:"required"`
}

type buyPair struct {
	From string            `json:"from" validate:"required"`
	To   []currencyAndCode `json:"to" validate:"dive"`
}

type buyMethodPairs struct {
	Name  string    `json:"name"`
	Pairs []buyPair `json:"pairs" validate:"dive"`
}

type buyPairsResponse struct {
	Data []buyMethodPairs `json:"data" validate:"dive"`
}

type sellPair struct {
	FromAssetID string   `json:"fromAssetId" validate:"required"`
	To          []string `json:"to"`
}

type sellMethodPairs struct {
	Name  string     `json:"name"`
	Pairs []sellPair `json:"pairs" validate:"dive"`
}

type sellPairsResponse struct {
	Data []sellMethodPairs `json:"data" validate:"dive"`
}

type amountCurrency struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode" validate:"required"`
}

type quotedMethod struct {
	ID         string         `json:"id" validate:"required"`
	AmountTo   amountCurrency `json:"amountTo"`
	AmountFrom amountCurrency `json:"amountFrom"`
}

type methodError struct {
	PaymentMethod string `json:"paymentMethod"`
	PayoutMethod  string `json:"payoutMethod"`
	Error         struct {
		Message string `json:"message"`
	} `json:"error"`
}

type quoteResponse struct {
	ID                  string         `json:"id" validate:"required"`
	CurrencyCodeTo      string         `json:"currencyCodeTo"`
	CurrencyCodeFrom    string         `json:"currencyCodeFrom"`
	RequestedAmountType string         `json:"requestedAmountType" validate:"omitempty,oneof=from to"`
	PaymentMethods      []quotedMethod `json:"paymentMethods" validate:"dive"`
	PayoutMethods       []quotedMethod `json:"payoutMethods" validate:"dive"`
	PaymentMethodErrors []methodError  `json:"paymentMethodErrors"`
	PayoutMethodErrors  []methodError  `json:"payoutMethodErrors"`
}

type quoteRequest struct {
	CurrencyCodeFrom string `json:"currencyCodeFrom"`
	Amount           string `json:"amount"`
	CurrencyCodeTo   string `json:"currencyCodeTo"`
	DirectionChange  string `json:"directionChange"`
	IsReceivedAmount bool   `json:"isReceivedAmount"`
	PaymentMethod    string `json:"paymentMethod,omitempty"`
	PayoutMethod     string `json:"payoutMethod,omitempty"`
}

type walletAddress struct {
	CurrencyCode string `json:"currencyCode"`
	Address      string `json:"address"`
}

type publicRequest struct {
	CryptoWalletAddress *walletAddress `json:"cryptoWalletAddress,omitempty"`
	CryptoPaymentMethod string         `json:"cryptoPaymentMethod,omitempty"`
	PartnerUserID       string         `json:"partnerUserId"`
	Locale              string         `json:"locale"`
	Passwordless        bool           `json:"passwordless"`
	TrustedKyc          bool           `json:"trustedKyc"`
	QuoteID             string         `json:"quoteId"`
	Flow                string         `json:"flow"`
	DepositCallbackURL  string         `json:"depositCallbackUrl,omitempty"`
	PaymentMethod       string         `json:"paymentMethod"`
}

type publicRequestResponse struct {
	RequestID    string `json:"requestId" validate:"required"`
	OneTimeToken string `json:"oneTimeToken"`
}

type paymentDetails struct {
	AssetID        string          `json:"assetId" validate:"required"`
	Blockchain     string          `json:"blockchain"`
	Network        string          `json:"network"`
	DepositAddress string          `json:"depositAddress" validate:"required"`
	DestinationTag string          `json:"destinationTag"`
	CurrencyCode   string          `json:"currencyCode"`
	Amount         decimal.Decimal `json:"amount"`
}

type userStatus struct {
	HasTransactions bool `json:"hasTransactions"`
}

// paymentTypes maps Paybis method ids to payment types.
var paymentTypes = map[string]models.PaymentType{
	"method-id-trustly":                              models.PaymentTypeIACH,
	"method-id-credit-card":                          models.PaymentTypeCredit,
	"method-id-credit-card-out":                      models.PaymentTypeCredit,
	"method-id_bridgerpay_revolutpay":                models.PaymentTypeRevolut,
	"fake-id-googlepay":                              models.PaymentTypeGooglePay,
	"fake-id-applepay":                               models.PaymentTypeApplePay,
	"method-id_bridgerpay_directa24_pse":             models.PaymentTypePSE,
	"method-id_bridgerpay_directa24_colombia_payout": models.PaymentTypeColombiaBank,
	"method-id_bridgerpay_directa24_spei":            models.PaymentTypeSpei,
	"method-id_bridgerpay_directa24_mexico_payout":   models.PaymentTypeMexicoBank,
	"method-id_bridgerpay_directa24_pix":             models.PaymentTypePix,
	"method-id_bridgerpay_directa24_pix_payout":      models.PaymentTypePix,
}

// quoteMethods is the method id quoted for each payment type. Wallet-pay
// types are quoted as card payments.
var quoteMethods = map[models.Direction]map[models.PaymentType]string{
	models.DirectionBuy: {
		models.PaymentTypeIACH:      "method-id-trustly",
		models.PaymentTypeApplePay:  "method-id-credit-card",
		models.PaymentTypeCredit:    "method-id-credit-card",
		models.PaymentTypeGooglePay: "method-id-credit-card",
		models.PaymentTypePix:       "method-id_bridgerpay_directa24_pix",
		models.PaymentTypePSE:       "method-id_bridgerpay_directa24_pse",
		models.PaymentTypeRevolut:   "method-id_bridgerpay_revolutpay",
		models.PaymentTypeSpei:      "method-id_bridgerpay_directa24_spei",
	},
	models.DirectionSell: {
		models.PaymentTypeCredit:       "method-id-credit-card-out",
		models.PaymentTypeColombiaBank: "method-id_bridgerpay_directa24_colombia_payout",
		models.PaymentTypeMexicoBank:   "method-id_bridgerpay_directa24_mexico_payout",
		models.PaymentTypePix:          "method-id_bridgerpay_directa24_pix_payout",
	},
}

var allowedPaymentTypes = map[models.Direction][]models.PaymentType{
	models.DirectionBuy: {
		models.PaymentTypeIACH,
		models.PaymentTypeApplePay,
		models.PaymentTypeCredit,
		models.PaymentTypeGooglePay,
		models.PaymentTypePix,
		models.PaymentTypePSE,
		models.PaymentTypeRevolut,
		models.PaymentTypeSpei,
	},
	models.DirectionSell: {
		models.PaymentTypeIACH,
		models.PaymentTypeColombiaBank,
		models.PaymentTypeCredit,
		models.PaymentTypeMexicoBank,
		models.PaymentTypePix,
	},
}

// currencies maps Paybis currency codes to assets.
var currencies = map[string]models.CryptoAsset{
	"AAVE":        {PluginID: "ethereum", TokenID: "7fc66500c84a76ad7e9c93437bfc5ac33e2ddae9"},
	"ADA":         {PluginID: "cardano"},
	"BAT":         {PluginID: "ethereum", TokenID: "0d8775f648430679a709e98d2b0cb6250d2887ef"},
	"BCH":         {PluginID: "bitcoincash"},
	"BNB":         {PluginID: "binancechain"},
	"BTC":         {PluginID: "bitcoin"},
	"BTC-TESTNET": {PluginID: "bitcointestnet"},
	"BUSD":        {PluginID: "binancesmartchain", TokenID: "e9e7cea3dedca5984780bafc599bd69add087d56"},
	"COMP":        {PluginID: "ethereum", TokenID: "c00e94cb662c3520282e6f5717214004a7f26888"},
	"CRV":         {PluginID: "ethereum", TokenID: "d533a949740bb3306d119cc777fa900ba034cd52"},
	"DAI":         {PluginID: "ethereum", TokenID: "6b175474e89094c44da98b954eedeac495271d0f"},
	"DOGE":        {PluginID: "dogecoin"},
	"DOT":         {PluginID: "polkadot"},
	"ETH":         {PluginID: "ethereum"},
	"KNC":         {PluginID: "ethereum", TokenID: "defa4e8a7bcba345f687a2f1456f5edd9ce97202"},
	"LINK":        {PluginID: "ethereum", TokenID: "514910771af9ca656af840dff83e8264ecf986ca"},
	"LTC":         {PluginID: "litecoin"},
	"MKR":         {PluginID: "ethereum", TokenID: "9f8f72aa9304c8b593d555f12ef6589cc3a579a2"},
	"POL":         {PluginID: "polygon"},
	"SHIB":        {PluginID: "ethereum", TokenID: "95ad61b0a150d79219dcf64e1e6cc01f0b64c4ce"},
	"SOL":         {PluginID: "solana"},
	"SUSHI":       {PluginID: "ethereum", TokenID: "6b3595068778dd592e39a122f4f5a5cf09c90fe2"},
	"TON":         {PluginID: "ton"},
	"TRX":         {PluginID: "tron"},
	"USDC":        {PluginID: "ethereum", TokenID: "a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
	"USDT":        {PluginID: "ethereum", TokenID: "dac17f958d2ee523a2206206994597c13d831ec7"},
	"USDT-TRC20":  {PluginID: "tron", TokenID: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"},
	"WBTC":        {PluginID: "ethereum", TokenID: "2260fac5e5542a773aa44fbcfedf7c193bc2c599"},
	"XLM":         {PluginID: "stellar"},
	"XRP":         {PluginID: "ripple"},
	"XTZ":         {PluginID: "tezos"},
	"YFI":         {PluginID: "ethereum", TokenID: "0bc529c00c6401aef6d220be8c6ea1667f6ad93e"},
}

var currencyCodes = func() map[models.CryptoAsset]string {
	m := make(map[models.CryptoAsset]string, len(currencies))
	for code, asset := range currencies {
		m[asset] = code
	}
	return m
}()
