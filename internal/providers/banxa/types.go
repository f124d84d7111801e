package banxa

import (
	"ramp-quote-go/internal/models"

	"github.com/shopspring/decimal"
)

type chainEntry struct {
	Code string `json:"code" validate:"required"`
}

type coin struct {
	CoinCode    string       `json:"coin_code" validate:"required"`
	Blockchains []chainEntry `json:"blockchains" validate:"dive"`
}

func (c coin) chainCodes() []string {
	codes := make([]string, len(c.Blockchains))
	for i, chain := range c.Blockchains {
		codes[i] = chain.Code
	}
	return codes
}

type coinsResponse struct {
	Data struct {
		Coins []coin `json:"coins" validate:"dive"`
	} `json:"data"`
}

type fiatsResponse struct {
	Data struct {
		Fiats []struct {
			FiatCode string `json:"fiat_code" validate:"required"`
		} `json:"fiats" validate:"dive"`
	} `json:"data"`
}

type countriesResponse struct {
	Data struct {
		Countries []struct {
			CountryCode string `json:"country_code" validate:"required"`
		} `json:"countries" validate:"dive"`
	} `json:"data"`
}

type statesResponse struct {
	Data struct {
		States []struct {
			StateCode string `json:"state_code" validate:"required"`
		} `json:"states" validate:"dive"`
	} `json:"data"`
}

type txLimit struct {
	FiatCode string          `json:"fiat_code" validate:"required"`
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
}

type paymentMethod struct {
	ID                int64     `json:"id" validate:"required"`
	PaymentType       string    `json:"paymentType"`
	Name              string    `json:"name"`
	Status            string    `json:"status" validate:"oneof=ACTIVE INACTIVE"`
	Type              string    `json:"type"`
	SupportedFiat     []string  `json:"supported_fiat"`
	SupportedCoin     []string  `json:"supported_coin"`
	TransactionLimits []txLimit `json:"transaction_limits" validate:"dive"`
}

type paymentMethodsResponse struct {
	Data struct {
		PaymentMethods []paymentMethod `json:"payment_methods" validate:"dive"`
	} `json:"data"`
}

type priceRow struct {
	PaymentMethodID int64           `json:"payment_method_id" validate:"required"`
	Type            string          `json:"type"`
	SpotPriceFee    string          `json:"spot_price_fee"`
	CoinAmount      decimal.Decimal `json:"coin_amount"`
	CoinCode        string          `json:"coin_code" validate:"required"`
	FiatAmount      decimal.Decimal `json:"fiat_amount"`
	FiatCode        string          `json:"fiat_code" validate:"required"`
	FeeAmount       string          `json:"fee_amount"`
	NetworkFee      string          `json:"network_fee"`
}

type pricesResponse struct {
	Data struct {
		SpotPrice string     `json:"spot_price"`
		Prices    []priceRow `json:"prices" validate:"dive"`
	} `json:"data"`
}

type orderCreated struct {
	ID          string `json:"id" validate:"required"`
	CheckoutURL string `json:"checkout_url" validate:"required,url"`
}

type createOrderResponse struct {
	Data struct {
		Order orderCreated `json:"order"`
	} `json:"data"`
}

type errorResponse struct {
	Errors struct {
		Title string `json:"title"`
	} `json:"errors"`
}

type order struct {
	ID               string          `json:"id" validate:"required"`
	CoinAmount       decimal.Decimal `json:"coin_amount"`
	WalletAddress    string          `json:"wallet_address"`
	WalletAddressTag string          `json:"wallet_address_tag"`
	Status           string          `json:"status" validate:"oneof=pendingPayment waitingPayment paymentReceived inProgress coinTransferred cancelled declined expired complete refunded"`
}

type orderResponse struct {
	Data struct {
		Order order `json:"order"`
	} `json:"data"`
}

// paymentTypes maps Banxa payment method codes to payment types.
var paymentTypes = map[string]models.PaymentType{
	"CLEARJCNSELLFP":   models.PaymentTypeFasterPayments,
	"CLEARJCNSELLSEPA": models.PaymentTypeSepa,
	"CLEARJUNCTION":    models.PaymentTypeSepa,
	"CLEARJUNCTIONFP":  models.PaymentTypeFasterPayments,
	"DCINTERAC":        models.PaymentTypeInterac,
	"DCINTERACSELL":    models.PaymentTypeInterac,
	"DIRECTCREDIT":     models.PaymentTypeDirectToBank,
	"DLOCALPIX":        models.PaymentTypePix,
	"DLOCALZAIO":       models.PaymentTypeIOBank,
	"IDEAL":            models.PaymentTypeIdeal,
	"MANUALPAYMENT":    models.PaymentTypeTurkishBank,
	"MONOOVAPAYID":     models.PaymentTypePayID,
	"PRIMERAP":         models.PaymentTypeApplePay,
	"PRIMERCC":         models.PaymentTypeCredit,
	"WORLDPAYGOOGLE":   models.PaymentTypeGooglePay,
	"ZHACHSELL":        models.PaymentTypeACH,
}

// allowedPaymentTypes leaves SEPA to other providers.
var allowedPaymentTypes = map[models.Direction][]models.PaymentType{
	models.DirectionBuy: {
		models.PaymentTypeApplePay,
		models.PaymentTypeCredit,
		models.PaymentTypeGooglePay,
		models.PaymentTypeIdeal,
		models.PaymentTypeInterac,
		models.PaymentTypeIOBank,
		models.PaymentTypePayID,
		models.PaymentTypeTurkishBank,
	},
	models.DirectionSell: {
		models.PaymentTypeACH,
		models.PaymentTypeDirectToBank,
		models.PaymentTypeFasterPayments,
		models.PaymentTypeInterac,
		models.PaymentTypeIOBank,
		models.PaymentTypePayID,
		models.PaymentTypeTurkishBank,
	},
}

// chainPlugins maps Banxa blockchain codes to plugin ids.
func chainPlugins(testnet bool) map[string]string {
	m := map[string]string{
		"AVAX-C": "avalanche",
		"BCH":    "bitcoincash",
		"BNB":    "binancechain",
		"BSC":    "binancesmartchain",
		"BTC":    "bitcoin",
		"CELO":   "celo",
		"DASH":   "dash",
		"DGB":    "digibyte",
		"DOGE":   "dogecoin",
		"DOT":    "polkadot",
		"EOS":    "eos",
		"ETC":    "ethereumclassic",
		"ETH":    "ethereum",
		"FIL":    "filecoin",
		"HBAR":   "hedera",
		"LTC":    "litecoin",
		"MATIC":  "polygon",
		"QTUM":   "qtum",
		"RVN":    "ravencoin",
		"SOL":    "solana",
		"SUI":    "sui",
		"TON":    "ton",
		"XLM":    "stellar",
		"XRP":    "ripple",
		"XTZ":    "tezos",
		"ZEC":    "zcash",
	}
	if testnet {
		m["BTC"] = "bitcointestnet"
	}
	return m
}

// coinSymbol maps a Banxa coin code to the catalog symbol.
func coinSymbol(coinCode string, testnet bool) string {
	if testnet && coinCode == "BTC" {
		return "TESTBTC"
	}
	return coinCode
}
