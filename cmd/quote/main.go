package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"ramp-quote-go/internal/aggregator"
	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/common"
	"ramp-quote-go/internal/config"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type quoteFlags struct {
	direction  string
	region     string
	fiat       string
	asset      string
	amount     string
	amountType string
	max        bool
	maxCap     string
	platform   string
	promo      string
}

func parseRequest(f quoteFlags, defaultPlatform models.Platform) (providers.QuoteRequest, error) {
	direction, err := models.ParseDirection(f.direction)
	if err != nil {
		return providers.QuoteRequest{}, err
	}
	region, err := models.ParseRegionCode(f.region)
	if err != nil {
		return providers.QuoteRequest{}, err
	}
	asset, err := models.ParseCryptoAsset(f.asset)
	if err != nil {
		return providers.QuoteRequest{}, err
	}
	amountType, err := models.ParseAmountType(f.amountType)
	if err != nil {
		return providers.QuoteRequest{}, err
	}

	amount := models.MaxAmount()
	if !f.max {
		exact, err := decimal.NewFromString(f.amount)
		if err != nil {
			return providers.QuoteRequest{}, fmt.Errorf("invalid amount %q", f.amount)
		}
		amount = models.ExactAmount(exact)
	} else if f.maxCap != "" {
		limit, err := decimal.NewFromString(f.maxCap)
		if err != nil {
			return providers.QuoteRequest{}, fmt.Errorf("invalid cap %q", f.maxCap)
		}
		amount.Cap = decimal.NewNullDecimal(limit)
	}

	platform := defaultPlatform
	if f.platform != "" {
		platform = models.Platform(strings.ToLower(f.platform))
	}

	req := providers.QuoteRequest{
		Direction:  direction,
		Region:     region,
		Asset:      asset,
		Fiat:       models.NormalizeFiat(f.fiat),
		AmountType: amountType,
		Amount:     amount,
		PromoCode:  f.promo,
		Platform:   platform,
	}
	return req, req.Validate()
}

func printSupport(w io.Writer, results []aggregator.Support) {
	common.Header(w, "PROVIDER SUPPORT", common.DefaultWidth)
	for i, s := range results {
		prefix := common.BoxPrefix(i == len(results)-1)
		switch {
		case s.Err != nil:
			fmt.Fprintf(w, "%s %-10s: error (%v)\n", prefix, s.Provider, s.Err)
		case !s.Result.Supported:
			fmt.Fprintf(w, "%s %-10s: not supported\n", prefix, s.Provider)
		default:
			types := make([]string, 0, len(s.Result.AmountTypes))
			for _, t := range s.Result.AmountTypes {
				types = append(types, string(t))
			}
			fmt.Fprintf(w, "%s %-10s: supported (%s)\n", prefix, s.Provider, strings.Join(types, ", "))
		}
	}
}

func printQuotes(w io.Writer, result *aggregator.Result) {
	common.Header(w, "QUOTES", common.WideWidth)
	if len(result.Quotes) == 0 {
		fmt.Fprintln(w, "No quotes returned")
	}
	for i, q := range result.Quotes {
		isLast := i == len(result.Quotes)-1
		estimate := ""
		if q.IsEstimate {
			estimate = " (estimate)"
		}
		fmt.Fprintf(w, "%s %-10s %-14s: %s %s for %s %s%s\n",
			common.BoxPrefix(isLast),
			q.Provider,
			q.PaymentType,
			q.FiatAmount.String(),
			q.FiatCurrencyCode,
			q.CryptoAmount.String(),
			q.Asset.String(),
			estimate)
		fmt.Fprintf(w, "%s   id: %s, settles in %s, expires %s\n",
			common.BoxDetailPrefix(isLast),
			common.Abbreviate(q.ID, 8),
			q.SettlementRange.String(),
			q.ExpiresAt.Format("15:04:05"))
	}

	if len(result.Failures) == 0 {
		return
	}
	common.Header(w, "PROVIDER ERRORS", common.WideWidth)
	for i, f := range result.Failures {
		fmt.Fprintf(w, "%s %-10s [%s]: %v\n", common.BoxPrefix(i == len(result.Failures)-1), f.Provider, providers.ErrorKind(f.Err), f.Err)
	}
}

func main() {
	var f quoteFlags
	flag.StringVar(&f.direction, "direction", "buy", "buy or sell")
	flag.StringVar(&f.region, "region", "US", "Country code, optionally with state (US:NY)")
	flag.StringVar(&f.fiat, "fiat", "USD", "Fiat currency code")
	flag.StringVar(&f.asset, "asset", "bitcoin", "Crypto asset as plugin or plugin:tokenId")
	flag.StringVar(&f.amount, "amount", "", "Amount to quote")
	flag.StringVar(&f.amountType, "amount-type", "fiat", "Denomination of the amount: fiat or crypto")
	flag.BoolVar(&f.max, "max", false, "Quote the provider maximum instead of an exact amount")
	flag.StringVar(&f.maxCap, "cap", "", "Upper bound applied to a maximum quote (optional)")
	flag.StringVar(&f.platform, "platform", "", "Client platform: ios, android or web (optional)")
	flag.StringVar(&f.promo, "promo", "", "Promo code (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	req, err := parseRequest(f, cfg.Engine.Platform)
	if err != nil {
		logger.Fatal("Invalid quote request", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg, &approval.Handoff{})
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	printSupport(os.Stdout, services.RampService.CheckSupport(ctx, req.SupportRequest()))

	result, err := services.RampService.FetchQuotes(ctx, req)
	if err != nil {
		logger.Fatal("Failed to fetch quotes", zap.Error(err))
	}
	printQuotes(os.Stdout, result)

	common.Footer(os.Stdout, fmt.Sprintf("%d quotes, %d provider errors", len(result.Quotes), len(result.Failures)), common.WideWidth)
}
