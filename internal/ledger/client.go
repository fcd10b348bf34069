package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/wallet"
)

// Options configures a contract client.
type Options struct {
	// Contract is the prediction market contract address.
	Contract common.Address

	// Tokens maps each supported token to its ERC-20 contract address.
	Tokens map[domain.Token]common.Address

	// GasLimit is the fixed gas ceiling attached to every mutating call.
	GasLimit uint64

	// ConfirmInterval is the receipt polling interval; ConfirmTimeout bounds
	// the total wait for inclusion.
	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration
}

// Client performs reads and writes against the prediction market contract
// through a wallet provider. Reads go through eth_call; writes are signed by
// the provider via eth_sendTransaction and confirmed by receipt polling.
type Client struct {
	provider wallet.Provider
	opts     Options
	logger   *slog.Logger
}

// NewClient creates a contract client bound to one wallet provider.
func NewClient(provider wallet.Provider, opts Options, logger *slog.Logger) *Client {
	if opts.GasLimit == 0 {
		opts.GasLimit = 500_000
	}
	if opts.ConfirmInterval <= 0 {
		opts.ConfirmInterval = 2 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	return &Client{
		provider: provider,
		opts:     opts,
		logger:   logger.With(slog.String("component", "ledger_client")),
	}
}

// TokenAddress resolves a token's ERC-20 contract address.
func (c *Client) TokenAddress(token domain.Token) (common.Address, error) {
	addr, ok := c.opts.Tokens[token]
	if !ok {
		return common.Address{}, fmt.Errorf("ledger: no contract address configured for token %s: %w",
			token, domain.ErrInvalidPrediction)
	}
	return addr, nil
}

// Contract returns the market contract address.
func (c *Client) Contract() common.Address { return c.opts.Contract }

// PlaceBet submits one stake to the market contract and returns the
// transaction hash. The caller is responsible for waiting on inclusion.
func (c *Client) PlaceBet(ctx context.Context, from common.Address, in domain.PredictionInput) (common.Hash, error) {
	data, err := packPlaceBet(in)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: encoding placeBet: %w", err)
	}
	return c.send(ctx, from, c.opts.Contract, data)
}

// UserBets fetches every stake the ledger has recorded for the user.
func (c *Client) UserBets(ctx context.Context, user common.Address) ([]domain.Prediction, error) {
	out, err := c.view(ctx, c.opts.Contract, marketABI, "getUserBets", user)
	if err != nil {
		return nil, err
	}

	raw := abi.ConvertType(out[0], new([]onChainBet)).(*[]onChainBet)
	bets := make([]domain.Prediction, 0, len(*raw))
	for _, b := range *raw {
		bet, err := b.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ledger: decoding bet: %w", err)
		}
		bets = append(bets, bet)
	}
	return bets, nil
}

// PoolDetail fetches one pool's aggregate state.
func (c *Client) PoolDetail(ctx context.Context, poolID uint64) (domain.Pool, error) {
	out, err := c.view(ctx, c.opts.Contract, marketABI, "getPool", new(big.Int).SetUint64(poolID))
	if err != nil {
		return domain.Pool{}, err
	}

	raw := abi.ConvertType(out[0], new(onChainPool)).(*onChainPool)
	pool, err := raw.toDomain(poolID)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("ledger: decoding pool %d: %w", poolID, err)
	}
	return pool, nil
}

// UserPoints fetches the user's accumulated points.
func (c *Client) UserPoints(ctx context.Context, user common.Address) (int64, error) {
	out, err := c.view(ctx, c.opts.Contract, marketABI, "getUserPoints", user)
	if err != nil {
		return 0, err
	}
	points := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	return points.Int64(), nil
}

// ContractBalance fetches the user's spendable balance held by the ledger
// for one token.
func (c *Client) ContractBalance(ctx context.Context, user common.Address, token domain.Token) (*big.Int, error) {
	code, err := domain.EncodeToken(token)
	if err != nil {
		return nil, err
	}
	out, err := c.view(ctx, c.opts.Contract, marketABI, "getBalance", user, code)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// Deposit moves amount of token from the user's wallet into the ledger.
func (c *Client) Deposit(ctx context.Context, from common.Address, token domain.Token, amount *big.Int) (common.Hash, error) {
	return c.sendTokenAmountCall(ctx, from, "deposit", token, amount)
}

// Withdraw moves amount of token from the ledger back to the user's wallet.
func (c *Client) Withdraw(ctx context.Context, from common.Address, token domain.Token, amount *big.Int) (common.Hash, error) {
	return c.sendTokenAmountCall(ctx, from, "withdraw", token, amount)
}

func (c *Client) sendTokenAmountCall(ctx context.Context, from common.Address, method string, token domain.Token, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("ledger: %s amount must be positive: %w", method, domain.ErrInvalidPrediction)
	}
	code, err := domain.EncodeToken(token)
	if err != nil {
		return common.Hash{}, err
	}
	data, err := marketABI.Pack(method, code, new(big.Int).Set(amount))
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: encoding %s: %w", method, err)
	}
	return c.send(ctx, from, c.opts.Contract, data)
}

// WaitMined polls for the transaction receipt until inclusion, a revert, or
// the confirmation timeout.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.ConfirmInterval)
	defer ticker.Stop()

	for {
		raw, err := c.provider.Request(ctx, "eth_getTransactionReceipt", txHash.Hex())
		if err != nil {
			return fmt.Errorf("ledger: fetching receipt %s: %w", txHash.Hex(), err)
		}

		var receipt *struct {
			Status      string `json:"status"`
			BlockNumber string `json:"blockNumber"`
		}
		if err := json.Unmarshal(raw, &receipt); err != nil {
			return fmt.Errorf("ledger: decoding receipt %s: %w", txHash.Hex(), err)
		}

		if receipt != nil {
			if receipt.Status == "0x0" {
				return fmt.Errorf("ledger: transaction %s: %w", txHash.Hex(), domain.ErrTxReverted)
			}
			c.logger.Info("transaction confirmed",
				slog.String("tx_hash", txHash.Hex()),
				slog.String("block", receipt.BlockNumber),
			)
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("ledger: waiting for %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// view performs one eth_call against the given contract and unpacks the
// outputs.
func (c *Client) view(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: encoding %s: %w", method, err)
	}

	call := map[string]string{
		"to":   to.Hex(),
		"data": hexutil.Encode(data),
	}
	raw, err := c.provider.Request(ctx, "eth_call", call, "latest")
	if err != nil {
		return nil, fmt.Errorf("ledger: %s: %w", method, err)
	}

	var resultHex string
	if err := json.Unmarshal(raw, &resultHex); err != nil {
		return nil, fmt.Errorf("ledger: decoding %s result: %w", method, err)
	}
	resultBytes, err := hexutil.Decode(resultHex)
	if err != nil {
		return nil, fmt.Errorf("ledger: decoding %s result hex: %w", method, err)
	}

	out, err := contractABI.Unpack(method, resultBytes)
	if err != nil {
		return nil, fmt.Errorf("ledger: unpacking %s: %w", method, err)
	}
	return out, nil
}

// send signs and submits one mutating call through the wallet provider.
func (c *Client) send(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	tx := wallet.TxRequest{
		From: from.Hex(),
		To:   to.Hex(),
		Gas:  hexutil.EncodeUint64(c.opts.GasLimit),
		Data: hexutil.Encode(data),
	}

	raw, err := c.provider.Request(ctx, "eth_sendTransaction", tx)
	if err != nil {
		if wallet.IsUserRejected(err) {
			return common.Hash{}, fmt.Errorf("ledger: transaction: %w", domain.ErrUserRejected)
		}
		return common.Hash{}, fmt.Errorf("ledger: sending transaction: %w", err)
	}

	var hashHex string
	if err := json.Unmarshal(raw, &hashHex); err != nil {
		return common.Hash{}, fmt.Errorf("ledger: decoding transaction hash: %w", err)
	}

	c.logger.Info("transaction submitted",
		slog.String("tx_hash", hashHex),
		slog.String("to", to.Hex()),
	)
	return common.HexToHash(hashHex), nil
}
