package banxa

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/support"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// methodLimit is one Banxa payment method usable for a fiat/coin pair.
type methodLimit struct {
	ID   int64
	Type models.PaymentType
	Min  decimal.Decimal
	Max  decimal.Decimal
}

func (m methodLimit) limit() models.PaymentLimit {
	return models.PaymentLimit{PaymentMethodID: strconvID(m.ID), Min: m.Min, Max: m.Max}
}

// paymentsMap is fiat -> coin -> method id -> limit.
type paymentsMap map[string]map[string]map[int64]methodLimit

type supportData struct {
	regions  support.ExactRegions
	matrices map[models.Direction]*support.Matrix[coin]

	mutex    sync.RWMutex
	payments map[models.Direction]paymentsMap
}

func newSupportData() *supportData {
	return &supportData{
		matrices: map[models.Direction]*support.Matrix[coin]{
			models.DirectionBuy:  support.NewMatrix[coin](),
			models.DirectionSell: support.NewMatrix[coin](),
		},
		payments: map[models.Direction]paymentsMap{
			models.DirectionBuy:  {},
			models.DirectionSell: {},
		},
	}
}

// addPaymentMethods merges ACTIVE methods with a known payment type. A method
// already present with different limits keeps its first value.
func (d *supportData) addPaymentMethods(direction models.Direction, methods []paymentMethod) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	payments := d.payments[direction]
	for _, pm := range methods {
		pt, ok := paymentTypes[pm.PaymentType]
		if !ok || pm.Status != "ACTIVE" {
			continue
		}
		for _, fiat := range pm.SupportedFiat {
			if payments[fiat] == nil {
				payments[fiat] = make(map[string]map[int64]methodLimit)
			}
			limit, found := findLimit(fiat, pm.TransactionLimits)
			for _, coinCode := range pm.SupportedCoin {
				if payments[fiat][coinCode] == nil {
					payments[fiat][coinCode] = make(map[int64]methodLimit)
				}
				if !found {
					zap.L().Warn("Banxa payment method missing limits",
						zap.Int64("method_id", pm.ID),
						zap.String("payment_type", pm.PaymentType),
						zap.String("fiat", fiat))
					continue
				}
				entry := methodLimit{ID: pm.ID, Type: pt, Min: limit.Min, Max: limit.Max}
				if existing, ok := payments[fiat][coinCode][pm.ID]; ok {
					if existing.Type != entry.Type || !existing.Min.Equal(entry.Min) || !existing.Max.Equal(entry.Max) {
						zap.L().Warn("Banxa payment method listed twice with different limits",
							zap.String("fiat", fiat),
							zap.String("coin", coinCode),
							zap.String("payment_type", string(pt)))
					}
					continue
				}
				payments[fiat][coinCode][pm.ID] = entry
			}
		}
	}
}

// lookup finds the method of the given type for a fiat/coin pair. When
// several match, the lowest id wins so results are stable.
func (d *supportData) lookup(direction models.Direction, fiat, coinCode string, pt models.PaymentType) (methodLimit, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	methods := d.payments[direction][fiat][coinCode]
	ids := make([]int64, 0, len(methods))
	for id, m := range methods {
		if m.Type == pt {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return methodLimit{}, false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return methods[ids[0]], true
}

func findLimit(fiat string, limits []txLimit) (txLimit, bool) {
	for _, l := range limits {
		if l.FiatCode == fiat {
			return l, true
		}
	}
	return txLimit{}, false
}

// fetchSupport loads countries, states, coins, fiats and payment methods in
// parallel. US support is only ever granted per state.
func (p *Provider) fetchSupport(ctx context.Context) (*supportData, error) {
	data := newSupportData()
	var regionsMutex, matrixMutex sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var resp countriesResponse
		if err := p.call(gctx, http.MethodGet, "api/countries", nil, nil, "countries", &resp); err != nil {
			return err
		}
		regionsMutex.Lock()
		defer regionsMutex.Unlock()
		for _, c := range resp.Data.Countries {
			if c.CountryCode != "US" {
				data.regions.AllowCountry(c.CountryCode)
			}
		}
		return nil
	})

	g.Go(func() error {
		var resp statesResponse
		if err := p.call(gctx, http.MethodGet, "api/countries/us/states", nil, nil, "states", &resp); err != nil {
			return err
		}
		regionsMutex.Lock()
		defer regionsMutex.Unlock()
		for _, s := range resp.Data.States {
			data.regions.AllowState("US", s.StateCode)
		}
		return nil
	})

	for _, direction := range []models.Direction{models.DirectionBuy, models.DirectionSell} {
		matrix := data.matrices[direction]

		g.Go(func() error {
			var resp coinsResponse
			if err := p.call(gctx, http.MethodGet, "api/coins/"+string(direction), nil, nil, "coins", &resp); err != nil {
				return err
			}
			matrixMutex.Lock()
			defer matrixMutex.Unlock()
			for _, c := range resp.Data.Coins {
				p.addCoin(matrix, c)
			}
			return nil
		})

		g.Go(func() error {
			var resp fiatsResponse
			if err := p.call(gctx, http.MethodGet, "api/fiats/"+string(direction), nil, nil, "fiats", &resp); err != nil {
				return err
			}
			matrixMutex.Lock()
			defer matrixMutex.Unlock()
			for _, f := range resp.Data.Fiats {
				matrix.AddFiat(f.FiatCode)
			}
			return nil
		})

		g.Go(func() error {
			// Sell methods are listed per source coin; BTC covers most of them.
			var query url.Values
			if direction == models.DirectionSell {
				query = url.Values{"source": {"BTC"}}
			}
			methods, err := p.fetchPaymentMethods(gctx, query)
			if err != nil {
				return err
			}
			data.addPaymentMethods(direction, methods)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("Banxa support data loaded",
		zap.Int("countries", data.regions.Countries()),
		zap.Int("buy_chains", len(data.matrices[models.DirectionBuy].Crypto)),
		zap.Int("sell_chains", len(data.matrices[models.DirectionSell].Crypto)))
	return data, nil
}

func (p *Provider) fetchPaymentMethods(ctx context.Context, query url.Values) ([]paymentMethod, error) {
	var resp paymentMethodsResponse
	if err := p.call(ctx, http.MethodGet, "api/payment-methods", query, nil, "payment_methods", &resp); err != nil {
		return nil, err
	}
	return resp.Data.PaymentMethods, nil
}

// addCoin records the coin under every chain it maps to, provided the
// catalog knows the symbol on that chain.
func (p *Provider) addCoin(matrix *support.Matrix[coin], c coin) {
	symbol := coinSymbol(c.CoinCode, p.testnet)
	for _, chain := range c.Blockchains {
		pluginID, ok := p.chainToPlugin[chain.Code]
		if !ok {
			continue
		}
		asset, ok := p.catalog.Resolve(pluginID, symbol)
		if !ok {
			continue
		}
		matrix.AddCryptoForChains(asset, c, c.chainCodes(), p.chainToPlugin)
	}
}

// chainFor returns the Banxa chain code for an asset.
func (p *Provider) chainFor(c coin, asset models.CryptoAsset) (string, bool) {
	for _, chain := range c.Blockchains {
		if p.chainToPlugin[chain.Code] == asset.PluginID {
			return chain.Code, true
		}
	}
	return "", false
}
