package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ramp-quote-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	// ErrSendCancelled means the user declined the transaction in the wallet.
	ErrSendCancelled = errors.New("send cancelled by user")
	// ErrNoTransaction means the wallet returned without broadcasting anything.
	ErrNoTransaction = errors.New("no transaction submitted")
	// ErrSendUnavailable means the wallet cannot send (receive-only wallets).
	ErrSendUnavailable = errors.New("wallet cannot send")
)

type MemoType string

const (
	MemoText   MemoType = "text"
	MemoNumber MemoType = "number"
)

type Memo struct {
	Type  MemoType
	Value string
	Label string
}

// SendRequest asks the wallet to build, sign and broadcast a payment.
type SendRequest struct {
	Asset     models.CryptoAsset
	Address   string
	Amount    decimal.Decimal
	Memo      *Memo
	OrderID   string
	Provider  string
	FiatCode  string
	FiatValue decimal.Decimal
}

// Wallet is the account collaborator. The engine never signs directly.
type Wallet interface {
	ReceiveAddress(ctx context.Context, asset models.CryptoAsset) (string, error)
	Balance(ctx context.Context, asset models.CryptoAsset) (decimal.Decimal, error)
	Send(ctx context.Context, req SendRequest) (string, error)
}

// IsRecoverable reports whether a send failure should put the flow back in
// front of the user rather than fail it.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrSendCancelled) || errors.Is(err, ErrNoTransaction)
}

var evmPlugins = map[string]bool{
	"arbitrum":          true,
	"avalanche":         true,
	"base":              true,
	"binancesmartchain": true,
	"celo":              true,
	"ethereum":          true,
	"ethereumclassic":   true,
	"optimism":          true,
	"polygon":           true,
	"sonic":             true,
	"zksync":            true,
}

func IsEVM(pluginID string) bool {
	return evmPlugins[pluginID]
}

// ValidateAddress performs the checks that can be done locally before an
// address is handed to a provider checkout.
func ValidateAddress(asset models.CryptoAsset, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("empty %s address", asset.PluginID)
	}
	if IsEVM(asset.PluginID) && !common.IsHexAddress(address) {
		return fmt.Errorf("invalid %s address %q", asset.PluginID, address)
	}
	return nil
}

// AddressOnly is a receive-only wallet for buy flows driven over HTTP, where
// the caller supplies the destination address up front.
type AddressOnly struct {
	Address string
}

var _ Wallet = AddressOnly{}

func (w AddressOnly) ReceiveAddress(_ context.Context, asset models.CryptoAsset) (string, error) {
	if err := ValidateAddress(asset, w.Address); err != nil {
		return "", err
	}
	if IsEVM(asset.PluginID) {
		return common.HexToAddress(w.Address).Hex(), nil
	}
	return w.Address, nil
}

func (w AddressOnly) Balance(context.Context, models.CryptoAsset) (decimal.Decimal, error) {
	return decimal.Zero, ErrSendUnavailable
}

func (w AddressOnly) Send(context.Context, SendRequest) (string, error) {
	return "", ErrSendUnavailable
}

// DepositMemo builds the memo a deposit needs on the given chain. Ripple
// destination tags are numeric; every other chain takes free text. An empty
// value yields nil.
func DepositMemo(pluginID, value string) *Memo {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if pluginID == "ripple" {
		return &Memo{Type: MemoNumber, Value: value, Label: "Destination Tag"}
	}
	return &Memo{Type: MemoText, Value: value, Label: "Memo"}
}
