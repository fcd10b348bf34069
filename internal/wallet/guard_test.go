package wallet_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/wallet"
	"github.com/pricepoolhq/poolbot/internal/wallet/wallettest"
)

const testAccount = "0x1111111111111111111111111111111111111111"

var testChain = wallet.ChainDescriptor{
	ID:               84532,
	Name:             "Base Sepolia",
	CurrencyName:     "Ether",
	CurrencySymbol:   "ETH",
	CurrencyDecimals: 18,
	RPCURL:           "https://sepolia.base.org",
	ExplorerURL:      "https://sepolia.basescan.org",
}

func newGuard(t *testing.T, p *wallettest.Provider) *wallet.Guard {
	t.Helper()
	g := wallet.NewGuard(p, testChain, slog.New(slog.DiscardHandler))
	t.Cleanup(g.Close)
	return g
}

func TestEnsureTargetChainAlreadyOnTarget(t *testing.T) {
	p := wallettest.New().
		Stub("eth_accounts", []string{testAccount}).
		Stub("eth_chainId", "0x14a34") // 84532

	g := newGuard(t, p)
	require.NoError(t, g.EnsureTargetChain(context.Background()))
	assert.Zero(t, p.Calls("wallet_switchEthereumChain"))
}

func TestEnsureTargetChainSwitches(t *testing.T) {
	p := wallettest.New().
		Stub("eth_accounts", []string{testAccount}).
		Stub("eth_chainId", "0x1"). // mainnet, needs a switch
		Stub("wallet_switchEthereumChain", nil)

	g := newGuard(t, p)
	require.NoError(t, g.EnsureTargetChain(context.Background()))
	assert.Equal(t, 1, p.Calls("wallet_switchEthereumChain"))
	assert.Zero(t, p.Calls("wallet_addEthereumChain"))
}

func TestEnsureTargetChainRegistersUnknownChainOnce(t *testing.T) {
	p := wallettest.New().
		Stub("eth_accounts", []string{testAccount}).
		Stub("eth_chainId", "0x1").
		StubError("wallet_switchEthereumChain", &wallet.RPCError{Code: wallet.CodeUnrecognizedChain, Message: "unknown chain"}).
		Stub("wallet_switchEthereumChain", nil).
		Stub("wallet_addEthereumChain", nil)

	g := newGuard(t, p)
	require.NoError(t, g.EnsureTargetChain(context.Background()))
	assert.Equal(t, 1, p.Calls("wallet_addEthereumChain"))
	assert.Equal(t, 2, p.Calls("wallet_switchEthereumChain"))
}

func TestEnsureTargetChainUnavailableAfterRegistration(t *testing.T) {
	// The retry after registration fails with unrecognized chain again.
	// Registration must not be re-attempted.
	p := wallettest.New().
		Stub("eth_accounts", []string{testAccount}).
		Stub("eth_chainId", "0x1").
		StubError("wallet_switchEthereumChain", &wallet.RPCError{Code: wallet.CodeUnrecognizedChain, Message: "unknown chain"}).
		Stub("wallet_addEthereumChain", nil)

	g := newGuard(t, p)
	err := g.EnsureTargetChain(context.Background())
	assert.ErrorIs(t, err, domain.ErrChainUnavailable)
	assert.Equal(t, 1, p.Calls("wallet_addEthereumChain"))
	assert.Equal(t, 2, p.Calls("wallet_switchEthereumChain"))
}

func TestEnsureTargetChainRegistrationFailure(t *testing.T) {
	p := wallettest.New().
		Stub("eth_accounts", []string{testAccount}).
		Stub("eth_chainId", "0x1").
		StubError("wallet_switchEthereumChain", &wallet.RPCError{Code: wallet.CodeUnrecognizedChain, Message: "unknown chain"}).
		StubError("wallet_addEthereumChain", &wallet.RPCError{Code: -32000, Message: "rpc probe failed"})

	g := newGuard(t, p)
	err := g.EnsureTargetChain(context.Background())
	assert.ErrorIs(t, err, domain.ErrChainUnavailable)
	assert.Equal(t, 1, p.Calls("wallet_switchEthereumChain"))
}

func TestEnsureTargetChainUserRejection(t *testing.T) {
	p := wallettest.New().
		Stub("eth_accounts", []string{testAccount}).
		Stub("eth_chainId", "0x1").
		StubError("wallet_switchEthereumChain", &wallet.RPCError{Code: wallet.CodeUserRejected, Message: "user rejected"})

	g := newGuard(t, p)
	err := g.EnsureTargetChain(context.Background())
	assert.ErrorIs(t, err, domain.ErrUserRejected)
	// A rejection is final. No registration, no retry.
	assert.Zero(t, p.Calls("wallet_addEthereumChain"))
	assert.Equal(t, 1, p.Calls("wallet_switchEthereumChain"))
}

func TestEnsureTargetChainNoAccounts(t *testing.T) {
	p := wallettest.New().Stub("eth_accounts", []string{})

	g := newGuard(t, p)
	err := g.EnsureTargetChain(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Zero(t, p.Calls("eth_chainId"))
}

func TestCurrentIdentity(t *testing.T) {
	p := wallettest.New().
		Stub("eth_accounts", []string{testAccount}).
		Stub("eth_chainId", "0x14a34")

	g := newGuard(t, p)
	id, err := g.CurrentIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testAccount, id.Address.Hex())
	assert.Equal(t, uint64(84532), id.ChainID)

	// The address is cached; only the chain id is re-queried.
	_, err = g.CurrentIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Calls("eth_accounts"))
	assert.Equal(t, 2, p.Calls("eth_chainId"))
}

func TestAccountsChangedInvalidatesCache(t *testing.T) {
	p := wallettest.New().
		Stub("eth_accounts", []string{testAccount}).
		Stub("eth_chainId", "0x14a34")

	g := newGuard(t, p)
	_, err := g.CurrentIdentity(context.Background())
	require.NoError(t, err)

	// Wallet disconnects: the cached address must be dropped and the next
	// lookup must fail rather than serve the stale account.
	p.Emit(wallet.EventAccountsChanged, []string{})
	p.Stub("eth_accounts", []string{})

	_, err = g.CurrentIdentity(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	// A new account arrives by notification and is served from cache.
	other := "0x2222222222222222222222222222222222222222"
	p.Emit(wallet.EventAccountsChanged, []string{other})
	id, err := g.CurrentIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, other, id.Address.Hex())
}

func TestPreferNamedSelection(t *testing.T) {
	metamask := wallettest.New()
	metamask.ProviderName = "MetaMask"
	phantom := wallettest.New()
	phantom.ProviderName = "Phantom"

	strategy := wallet.PreferNamed{Primary: "metamask"}

	picked, err := strategy.Select([]wallet.Provider{phantom, metamask})
	require.NoError(t, err)
	assert.Equal(t, "MetaMask", picked.Name())

	// Sole provider is used even without a name match.
	picked, err = strategy.Select([]wallet.Provider{phantom})
	require.NoError(t, err)
	assert.Equal(t, "Phantom", picked.Name())

	// Several providers and no match is an error, not a guess.
	other := wallettest.New()
	other.ProviderName = "Rabby"
	_, err = strategy.Select([]wallet.Provider{phantom, other})
	assert.ErrorIs(t, err, domain.ErrNoProvider)

	_, err = strategy.Select(nil)
	assert.ErrorIs(t, err, domain.ErrNoProvider)
}
