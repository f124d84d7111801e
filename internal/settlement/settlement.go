package settlement

import (
	"time"

	"ramp-quote-go/internal/models"
)

// Class groups payment types that settle on similar rails.
type Class int

const (
	ClassUnknown Class = iota
	ClassCard
	ClassInstantBank
	ClassBatchBank
)

func (c Class) String() string {
	switch c {
	case ClassCard:
		return "card"
	case ClassInstantBank:
		return "instant-bank"
	case ClassBatchBank:
		return "batch-bank"
	default:
		return "unknown"
	}
}

const (
	day = 24 * time.Hour

	CardBuyMin         = 5 * time.Minute
	CardBuyMax         = time.Hour
	CardSellMin        = time.Hour
	CardSellMax        = 3 * day
	InstantBankBuyMin  = 5 * time.Minute
	InstantBankBuyMax  = 2 * time.Hour
	InstantBankSellMin = 5 * time.Minute
	InstantBankSellMax = day
	BatchBankBuyMin    = day
	BatchBankBuyMax    = 5 * day
	BatchBankSellMin   = day
	BatchBankSellMax   = 5 * day
	UnknownMin         = time.Hour
	UnknownMax         = 7 * day
)

// Fixed ranges published by providers that do not vary by payment type.
var (
	BityRange    = models.SettlementRange{Min: 15 * time.Minute, Max: 2 * time.Hour}
	MoonpayRange = models.SettlementRange{Min: time.Hour, Max: time.Hour}
	PaybisRange  = models.SettlementRange{Min: 5 * time.Minute, Max: day}
	RevolutRange = models.SettlementRange{Min: 5 * time.Minute, Max: time.Hour}
)

var classes = map[models.PaymentType]Class{
	models.PaymentTypeApplePay:       ClassCard,
	models.PaymentTypeCredit:         ClassCard,
	models.PaymentTypeGooglePay:      ClassCard,
	models.PaymentTypePaypal:         ClassCard,
	models.PaymentTypeVenmo:          ClassCard,
	models.PaymentTypeRevolut:        ClassCard,
	models.PaymentTypeColombiaBank:   ClassInstantBank,
	models.PaymentTypeFasterPayments: ClassInstantBank,
	models.PaymentTypeIACH:           ClassInstantBank,
	models.PaymentTypeIdeal:          ClassInstantBank,
	models.PaymentTypeInterac:        ClassInstantBank,
	models.PaymentTypeIOBank:         ClassInstantBank,
	models.PaymentTypeMexicoBank:     ClassInstantBank,
	models.PaymentTypePayID:          ClassInstantBank,
	models.PaymentTypePix:            ClassInstantBank,
	models.PaymentTypePSE:            ClassInstantBank,
	models.PaymentTypeSpei:           ClassInstantBank,
	models.PaymentTypeTurkishBank:    ClassInstantBank,
	models.PaymentTypeACH:            ClassBatchBank,
	models.PaymentTypeDirectToBank:   ClassBatchBank,
	models.PaymentTypeSepa:           ClassBatchBank,
	models.PaymentTypeWire:           ClassBatchBank,
}

func ClassOf(paymentType models.PaymentType) Class {
	return classes[paymentType]
}

// Estimate returns the expected time for funds to arrive after approval.
func Estimate(paymentType models.PaymentType, direction models.Direction) models.SettlementRange {
	sell := direction == models.DirectionSell
	switch ClassOf(paymentType) {
	case ClassCard:
		if sell {
			return models.SettlementRange{Min: CardSellMin, Max: CardSellMax}
		}
		return models.SettlementRange{Min: CardBuyMin, Max: CardBuyMax}
	case ClassInstantBank:
		if sell {
			return models.SettlementRange{Min: InstantBankSellMin, Max: InstantBankSellMax}
		}
		return models.SettlementRange{Min: InstantBankBuyMin, Max: InstantBankBuyMax}
	case ClassBatchBank:
		if sell {
			return models.SettlementRange{Min: BatchBankSellMin, Max: BatchBankSellMax}
		}
		return models.SettlementRange{Min: BatchBankBuyMin, Max: BatchBankBuyMax}
	default:
		return models.SettlementRange{Min: UnknownMin, Max: UnknownMax}
	}
}
