package support

import (
	"strings"

	"ramp-quote-go/internal/models"
)

// Token is a supported asset plus the provider's own metadata for it
// (currency code, chain code, contract).
type Token[T any] struct {
	Asset models.CryptoAsset
	Meta  T
}

// Matrix is one provider's declared support for a direction.
type Matrix[T any] struct {
	Fiat    map[string]bool
	Crypto  map[string][]Token[T]
	Regions ExactRegions
}

func NewMatrix[T any]() *Matrix[T] {
	return &Matrix[T]{
		Fiat:   make(map[string]bool),
		Crypto: make(map[string][]Token[T]),
	}
}

func (m *Matrix[T]) AddFiat(code string) {
	m.Fiat[models.NormalizeFiat(code)] = true
}

func (m *Matrix[T]) HasFiat(code string) bool {
	return m.Fiat[models.NormalizeFiat(code)]
}

// AddCrypto records an asset, replacing the metadata if already present.
func (m *Matrix[T]) AddCrypto(asset models.CryptoAsset, meta T) {
	list := m.Crypto[asset.PluginID]
	for i := range list {
		if list[i].Asset == asset {
			list[i].Meta = meta
			return
		}
	}
	m.Crypto[asset.PluginID] = append(list, Token[T]{Asset: asset, Meta: meta})
}

// AddCryptoForChains records the asset only when one of the provider's chain
// codes maps back to the asset's plugin, so a token listed on an unrelated
// chain is never attributed to this one.
func (m *Matrix[T]) AddCryptoForChains(asset models.CryptoAsset, meta T, chainCodes []string, chainToPlugin map[string]string) bool {
	for _, code := range chainCodes {
		pluginID, ok := chainToPlugin[code]
		if !ok {
			pluginID, ok = chainToPlugin[strings.ToUpper(code)]
		}
		if ok && pluginID == asset.PluginID {
			m.AddCrypto(asset, meta)
			return true
		}
	}
	return false
}

func (m *Matrix[T]) FindCrypto(asset models.CryptoAsset) (T, bool) {
	for _, token := range m.Crypto[asset.PluginID] {
		if token.Asset == asset {
			return token.Meta, true
		}
	}
	var zero T
	return zero, false
}

// Supports reports region, fiat and asset support together.
func (m *Matrix[T]) Supports(region models.RegionCode, fiat string, asset models.CryptoAsset) bool {
	if !m.Regions.Supports(region) || !m.HasFiat(fiat) {
		return false
	}
	_, ok := m.FindCrypto(asset)
	return ok
}
