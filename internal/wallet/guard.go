package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// Identity is the caller's current network identity.
type Identity struct {
	Address common.Address
	ChainID uint64
}

// Guard establishes the caller's identity and enforces that all mutating
// calls target the configured chain. The chain check is re-evaluated on
// every call (the wallet can switch chains between calls), so only the
// account address is cached, and that cache is kept fresh through the
// provider's accountsChanged notifications.
type Guard struct {
	provider Provider
	chain    ChainDescriptor
	logger   *slog.Logger

	mu      sync.Mutex
	address *common.Address
	unsubs  []func()
}

// NewGuard creates a Guard bound to the given provider and target chain. It
// subscribes to account and chain change notifications for its lifetime;
// call Close to release the subscriptions.
func NewGuard(provider Provider, chain ChainDescriptor, logger *slog.Logger) *Guard {
	g := &Guard{
		provider: provider,
		chain:    chain,
		logger:   logger.With(slog.String("component", "identity_guard")),
	}
	g.unsubs = append(g.unsubs,
		provider.Subscribe(EventAccountsChanged, g.onAccountsChanged),
		provider.Subscribe(EventChainChanged, g.onChainChanged),
	)
	return g
}

// Close releases the provider subscriptions.
func (g *Guard) Close() {
	for _, unsub := range g.unsubs {
		unsub()
	}
	g.unsubs = nil
}

// TargetChain returns the configured chain descriptor.
func (g *Guard) TargetChain() ChainDescriptor {
	return g.chain
}

func (g *Guard) onAccountsChanged(raw json.RawMessage) {
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		g.logger.Warn("malformed accountsChanged payload", slog.String("error", err.Error()))
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(accounts) == 0 {
		g.address = nil
		g.logger.Info("wallet disconnected")
		return
	}
	addr := common.HexToAddress(accounts[0])
	g.address = &addr
	g.logger.Info("active account changed", slog.String("address", addr.Hex()))
}

func (g *Guard) onChainChanged(raw json.RawMessage) {
	var chainHex string
	_ = json.Unmarshal(raw, &chainHex)
	g.logger.Info("active chain changed", slog.String("chain_id", chainHex))
}

// CurrentIdentity returns the active account address and chain identity.
// The address may come from the notification-maintained cache; the chain id
// is always queried fresh.
func (g *Guard) CurrentIdentity(ctx context.Context) (Identity, error) {
	addr, err := g.currentAddress(ctx)
	if err != nil {
		return Identity{}, err
	}

	chainID, err := g.currentChainID(ctx)
	if err != nil {
		return Identity{}, err
	}

	return Identity{Address: addr, ChainID: chainID}, nil
}

// EnsureTargetChain verifies the active chain matches the configured target
// chain, requesting a wallet-side switch when it does not. If the wallet
// reports the chain as unrecognized, exactly one registration attempt with
// the fixed descriptor is made before the switch is retried once. The result
// is never cached: the next mutating call re-evaluates from scratch.
func (g *Guard) EnsureTargetChain(ctx context.Context) error {
	if _, err := g.currentAddress(ctx); err != nil {
		return err
	}

	chainID, err := g.currentChainID(ctx)
	if err != nil {
		return err
	}
	if chainID == g.chain.ID {
		return nil
	}

	g.logger.Info("active chain differs from target, requesting switch",
		slog.Uint64("active", chainID),
		slog.Uint64("target", g.chain.ID),
	)

	err = g.switchChain(ctx)
	switch {
	case err == nil:
		return nil
	case IsUserRejected(err):
		return fmt.Errorf("identity_guard: chain switch: %w", domain.ErrUserRejected)
	case !IsUnrecognizedChain(err):
		return fmt.Errorf("identity_guard: chain switch: %w", err)
	}

	// The wallet does not know the target chain: register it once, then
	// retry the switch once. A second unrecognized-chain response is
	// terminal.
	if _, err := g.provider.Request(ctx, "wallet_addEthereumChain", g.chain.addChainParam()); err != nil {
		return fmt.Errorf("identity_guard: chain registration failed: %w (%w)", err, domain.ErrChainUnavailable)
	}

	err = g.switchChain(ctx)
	switch {
	case err == nil:
		return nil
	case IsUserRejected(err):
		return fmt.Errorf("identity_guard: chain switch after registration: %w", domain.ErrUserRejected)
	default:
		return fmt.Errorf("identity_guard: chain switch after registration: %w (%w)", err, domain.ErrChainUnavailable)
	}
}

func (g *Guard) switchChain(ctx context.Context) error {
	_, err := g.provider.Request(ctx, "wallet_switchEthereumChain",
		map[string]string{"chainId": g.chain.HexID()})
	return err
}

func (g *Guard) currentAddress(ctx context.Context) (common.Address, error) {
	g.mu.Lock()
	cached := g.address
	g.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	raw, err := g.provider.Request(ctx, "eth_accounts")
	if err != nil {
		return common.Address{}, fmt.Errorf("identity_guard: eth_accounts: %w", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return common.Address{}, fmt.Errorf("identity_guard: decode accounts: %w", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, domain.ErrNotConnected
	}

	addr := common.HexToAddress(accounts[0])
	g.mu.Lock()
	g.address = &addr
	g.mu.Unlock()
	return addr, nil
}

func (g *Guard) currentChainID(ctx context.Context) (uint64, error) {
	raw, err := g.provider.Request(ctx, "eth_chainId")
	if err != nil {
		return 0, fmt.Errorf("identity_guard: eth_chainId: %w", err)
	}
	var chainHex string
	if err := json.Unmarshal(raw, &chainHex); err != nil {
		return 0, fmt.Errorf("identity_guard: decode chain id: %w", err)
	}
	chainID, err := hexutil.DecodeUint64(chainHex)
	if err != nil {
		return 0, fmt.Errorf("identity_guard: parse chain id %q: %w", chainHex, err)
	}
	return chainID, nil
}
