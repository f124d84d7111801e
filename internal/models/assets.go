package models

import "strings"

// AssetEntry ties a currency symbol used by providers to a crypto asset.
type AssetEntry struct {
	PluginID string `yaml:"plugin"`
	Symbol   string `yaml:"symbol"`
	TokenID  string `yaml:"token"`
}

// AssetCatalog resolves provider currency symbols to assets and back.
type AssetCatalog struct {
	bySymbol map[string]CryptoAsset
	byAsset  map[CryptoAsset]string
}

func NewAssetCatalog(entries []AssetEntry) *AssetCatalog {
	c := &AssetCatalog{
		bySymbol: make(map[string]CryptoAsset, len(entries)),
		byAsset:  make(map[CryptoAsset]string, len(entries)),
	}
	for _, e := range entries {
		asset := CryptoAsset{PluginID: e.PluginID, TokenID: e.TokenID}
		symbol := strings.ToUpper(e.Symbol)
		c.bySymbol[e.PluginID+":"+symbol] = asset
		if _, exists := c.byAsset[asset]; !exists {
			c.byAsset[asset] = symbol
		}
	}
	return c
}

// Resolve finds the asset a symbol names on the given chain.
func (c *AssetCatalog) Resolve(pluginID, symbol string) (CryptoAsset, bool) {
	asset, ok := c.bySymbol[pluginID+":"+strings.ToUpper(symbol)]
	return asset, ok
}

// Symbol returns the upper-case currency symbol of an asset.
func (c *AssetCatalog) Symbol(asset CryptoAsset) (string, bool) {
	symbol, ok := c.byAsset[asset]
	return symbol, ok
}

func (c *AssetCatalog) Len() int {
	return len(c.byAsset)
}

// DefaultAssetEntries covers the native assets of the supported chains and
// the common stablecoins.
func DefaultAssetEntries() []AssetEntry {
	natives := [][2]string{
		{"algorand", "ALGO"},
		{"arbitrum", "ETH"},
		{"avalanche", "AVAX"},
		{"base", "ETH"},
		{"binancechain", "BNB"},
		{"binancesmartchain", "BNB"},
		{"bitcoin", "BTC"},
		{"bitcoincash", "BCH"},
		{"bitcointestnet", "TESTBTC"},
		{"cardano", "ADA"},
		{"celo", "CELO"},
		{"cosmoshub", "ATOM"},
		{"dash", "DASH"},
		{"digibyte", "DGB"},
		{"dogecoin", "DOGE"},
		{"eos", "EOS"},
		{"ethereum", "ETH"},
		{"ethereumclassic", "ETC"},
		{"fantom", "FTM"},
		{"filecoin", "FIL"},
		{"hedera", "HBAR"},
		{"litecoin", "LTC"},
		{"optimism", "ETH"},
		{"polkadot", "DOT"},
		{"polygon", "POL"},
		{"qtum", "QTUM"},
		{"ravencoin", "RVN"},
		{"ripple", "XRP"},
		{"solana", "SOL"},
		{"sonic", "S"},
		{"stellar", "XLM"},
		{"sui", "SUI"},
		{"tezos", "XTZ"},
		{"ton", "TON"},
		{"tron", "TRX"},
		{"zcash", "ZEC"},
		{"zksync", "ETH"},
	}
	entries := make([]AssetEntry, 0, len(natives)+8)
	for _, n := range natives {
		entries = append(entries, AssetEntry{PluginID: n[0], Symbol: n[1]})
	}
	return append(entries,
		AssetEntry{PluginID: "ethereum", Symbol: "USDC", TokenID: "a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
		AssetEntry{PluginID: "ethereum", Symbol: "USDT", TokenID: "dac17f958d2ee523a2206206994597c13d831ec7"},
		AssetEntry{PluginID: "ethereum", Symbol: "DAI", TokenID: "6b175474e89094c44da98b954eedeac495271d0f"},
		AssetEntry{PluginID: "polygon", Symbol: "USDC", TokenID: "3c499c542cef5e3811e1192ce70d8cc03d5c3359"},
		AssetEntry{PluginID: "polygon", Symbol: "MATIC", TokenID: ""},
		AssetEntry{PluginID: "solana", Symbol: "USDC", TokenID: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		AssetEntry{PluginID: "tron", Symbol: "USDT", TokenID: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"},
		AssetEntry{PluginID: "avalanche", Symbol: "USDC", TokenID: "b97ef9ef8734c71904d8002f8b6bc66dd9c48a6e"},
	)
}

// NormalizeContract turns an EVM contract address into a token id.
func NormalizeContract(contract string) string {
	contract = strings.TrimSpace(contract)
	if strings.HasPrefix(contract, "0x") || strings.HasPrefix(contract, "0X") {
		return strings.ToLower(contract[2:])
	}
	return contract
}
