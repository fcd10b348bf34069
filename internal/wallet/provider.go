// Package wallet implements the wallet-provider boundary: JSON-RPC
// request/response providers (remote over WebSocket, or a local signing key
// against an RPC node), deterministic provider selection, and the identity
// guard that pins every mutating call to the configured target chain.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// Provider notification events.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
)

// Well-known EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// Provider is a JSON-RPC wallet provider. Implementations must be safe for
// concurrent use; Request blocks until the provider responds or ctx is done.
type Provider interface {
	// Name is the provider's self-identification, used for selection when
	// several providers are configured.
	Name() string

	// Request performs one JSON-RPC call and returns the raw result.
	// Provider-level failures are returned as *RPCError.
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)

	// Subscribe registers a handler for a provider notification event and
	// returns the matching unsubscribe function.
	Subscribe(event string, handler func(json.RawMessage)) (unsubscribe func())

	Close() error
}

// RPCError is a JSON-RPC error returned by a wallet provider.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// IsUserRejected reports whether err is a wallet-side user rejection.
func IsUserRejected(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == CodeUserRejected
}

// IsUnrecognizedChain reports whether err signals that the wallet does not
// know the requested chain.
func IsUnrecognizedChain(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == CodeUnrecognizedChain
}

// TxRequest is the transaction object passed to eth_sendTransaction.
type TxRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Gas   string `json:"gas,omitempty"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data"`
}

// ChainDescriptor is the fixed descriptor of the single target chain. It is
// sent verbatim with wallet_addEthereumChain when the wallet does not know
// the chain yet.
type ChainDescriptor struct {
	ID               uint64
	Name             string
	CurrencyName     string
	CurrencySymbol   string
	CurrencyDecimals int
	RPCURL           string
	ExplorerURL      string
}

// HexID returns the chain id in the 0x-prefixed form wallets expect.
func (d ChainDescriptor) HexID() string {
	return hexutil.EncodeUint64(d.ID)
}

// addChainParam builds the wallet_addEthereumChain parameter object.
func (d ChainDescriptor) addChainParam() map[string]any {
	return map[string]any{
		"chainId":   d.HexID(),
		"chainName": d.Name,
		"nativeCurrency": map[string]any{
			"name":     d.CurrencyName,
			"symbol":   d.CurrencySymbol,
			"decimals": d.CurrencyDecimals,
		},
		"rpcUrls":           []string{d.RPCURL},
		"blockExplorerUrls": []string{d.ExplorerURL},
	}
}

// SelectionStrategy picks one provider out of the configured set.
type SelectionStrategy interface {
	Select(providers []Provider) (Provider, error)
}

// PreferNamed selects the provider self-identifying as the primary target
// wallet. When none matches and exactly one provider is available, that sole
// provider is used; anything else is an error rather than a guess.
type PreferNamed struct {
	Primary string
}

// Select implements SelectionStrategy.
func (s PreferNamed) Select(providers []Provider) (Provider, error) {
	for _, p := range providers {
		if strings.EqualFold(p.Name(), s.Primary) {
			return p, nil
		}
	}
	switch len(providers) {
	case 0:
		return nil, domain.ErrNoProvider
	case 1:
		return providers[0], nil
	default:
		return nil, fmt.Errorf("wallet: %d providers available and none is %q: %w",
			len(providers), s.Primary, domain.ErrNoProvider)
	}
}
