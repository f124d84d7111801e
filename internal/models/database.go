package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StoredItem is one provider-scoped key/value entry (identity tokens and similar)
type StoredItem struct {
	Provider  string    `db:"provider"`
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FlowEvent is an immutable record of an approval flow reaching a milestone
type FlowEvent struct {
	Id               string          `db:"id" json:"id"`
	FlowId           string          `db:"flow_id" json:"flow_id"`
	Provider         string          `db:"provider" json:"provider"`
	Direction        Direction       `db:"direction" json:"direction"`
	Event            string          `db:"event" json:"event"` // Buy_Success, Sell_Success, Flow_Failed, ...
	State            string          `db:"state" json:"state"`
	OrderId          string          `db:"order_id" json:"order_id"`
	FiatCurrencyCode string          `db:"fiat_currency_code" json:"fiat_currency_code"`
	FiatAmount       decimal.Decimal `db:"fiat_amount" json:"fiat_amount"`
	CryptoAsset      string          `db:"crypto_asset" json:"crypto_asset"`
	CryptoAmount     decimal.Decimal `db:"crypto_amount" json:"crypto_amount"`
	TxId             string          `db:"tx_id" json:"tx_id"`
	Detail           string          `db:"detail" json:"detail"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
