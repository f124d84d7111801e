package constraints

import "ramp-quote-go/internal/models"

func StaticRules() []Rule {
	return []Rule{
		{Name: "wallet-pay-platform", Eval: walletPayPlatform},
		{Name: "pix-brazil", Eval: requireRegion(models.PaymentTypePix, "BR", "BRL")},
		{Name: "us-bank-rails", Eval: usBankRails},
		{Name: "sepa-euro", Eval: requireRegion(models.PaymentTypeSepa, "", "EUR")},
		{Name: "interac-canada", Eval: requireRegion(models.PaymentTypeInterac, "CA", "CAD")},
		{Name: "payid-australia", Eval: requireRegion(models.PaymentTypePayID, "AU", "AUD")},
		{Name: "paypal-venmo-us", Eval: paypalVenmoUS},
		{Name: "paybis-no-card-sell-us", Eval: paybisNoCardSellUS},
	}
}

func verdict(ok bool) Verdict {
	if ok {
		return Allow
	}
	return Deny
}

func walletPayPlatform(p Params) Verdict {
	if p.Platform == models.PlatformUnknown {
		return Skip
	}
	switch p.PaymentType {
	case models.PaymentTypeApplePay:
		return verdict(p.Platform == models.PlatformIOS)
	case models.PaymentTypeGooglePay:
		return verdict(p.Platform == models.PlatformAndroid)
	}
	return Skip
}

// requireRegion pins a payment type to a country and fiat; an empty country
// only checks the fiat.
func requireRegion(pt models.PaymentType, country, fiat string) func(Params) Verdict {
	return func(p Params) Verdict {
		if p.PaymentType != pt {
			return Skip
		}
		if country != "" && p.Region.CountryCode != country {
			return Deny
		}
		return verdict(p.Fiat == fiat)
	}
}

func usBankRails(p Params) Verdict {
	if p.PaymentType != models.PaymentTypeACH && p.PaymentType != models.PaymentTypeIACH {
		return Skip
	}
	return verdict(p.Region.CountryCode == "US" && p.Fiat == "USD")
}

func paypalVenmoUS(p Params) Verdict {
	switch p.PaymentType {
	case models.PaymentTypePaypal:
		return verdict(p.Region.CountryCode == "US")
	case models.PaymentTypeVenmo:
		return verdict(p.Region.CountryCode == "US" && p.Fiat == "USD")
	}
	return Skip
}

func paybisNoCardSellUS(p Params) Verdict {
	if p.Provider != "paybis" || p.Direction != models.DirectionSell || p.PaymentType != models.PaymentTypeCredit {
		return Skip
	}
	return verdict(p.Region.CountryCode != "US")
}
