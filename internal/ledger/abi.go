// Package ledger implements the contract-call boundary: the read and write
// paths against the prediction market contract, token allowance
// coordination, the stake submission pipeline, history enrichment, and the
// balance ledger.
package ledger

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// marketABIJSON is the call surface of the prediction market contract.
const marketABIJSON = `[
  {"type":"function","name":"placeBet","stateMutability":"nonpayable",
   "inputs":[
     {"name":"asset","type":"uint8"},
     {"name":"threshold","type":"uint256"},
     {"name":"direction","type":"uint8"},
     {"name":"timeWindow","type":"uint8"},
     {"name":"token","type":"uint8"},
     {"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"getUserBets","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"bets","type":"tuple[]","components":[
     {"name":"asset","type":"uint8"},
     {"name":"threshold","type":"uint256"},
     {"name":"direction","type":"uint8"},
     {"name":"timeWindow","type":"uint8"},
     {"name":"token","type":"uint8"},
     {"name":"amount","type":"uint256"},
     {"name":"poolId","type":"uint256"},
     {"name":"createdAt","type":"uint256"}]}]},
  {"type":"function","name":"getPool","stateMutability":"view",
   "inputs":[{"name":"poolId","type":"uint256"}],
   "outputs":[{"name":"pool","type":"tuple","components":[
     {"name":"asset","type":"uint8"},
     {"name":"threshold","type":"uint256"},
     {"name":"timeWindow","type":"uint8"},
     {"name":"abovePool","type":"uint256"},
     {"name":"belowPool","type":"uint256"},
     {"name":"resolved","type":"bool"},
     {"name":"finalPrice","type":"uint256"}]}]},
  {"type":"function","name":"getUserPoints","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"points","type":"uint256"}]},
  {"type":"function","name":"getBalance","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"},{"name":"token","type":"uint8"}],
   "outputs":[{"name":"balance","type":"uint256"}]},
  {"type":"function","name":"deposit","stateMutability":"nonpayable",
   "inputs":[{"name":"token","type":"uint8"},{"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable",
   "inputs":[{"name":"token","type":"uint8"},{"name":"amount","type":"uint256"}],
   "outputs":[]}
]`

// erc20ABIJSON covers the three ERC-20 calls the allowance flow needs.
const erc20ABIJSON = `[
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"remaining","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"ok","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"balance","type":"uint256"}]}
]`

var (
	marketABI = mustParseABI(marketABIJSON)
	erc20ABI  = mustParseABI(erc20ABIJSON)
)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("ledger: parsing ABI: %v", err))
	}
	return parsed
}

// onChainBet mirrors the getUserBets tuple layout.
type onChainBet struct {
	Asset      uint8
	Threshold  *big.Int
	Direction  uint8
	TimeWindow uint8
	Token      uint8
	Amount     *big.Int
	PoolId     *big.Int
	CreatedAt  *big.Int
}

// onChainPool mirrors the getPool tuple layout.
type onChainPool struct {
	Asset      uint8
	Threshold  *big.Int
	TimeWindow uint8
	AbovePool  *big.Int
	BelowPool  *big.Int
	Resolved   bool
	FinalPrice *big.Int
}

// toDomain converts a raw bet tuple, rejecting any enum code outside the
// shared bidirectional tables.
func (b onChainBet) toDomain() (domain.Prediction, error) {
	asset, err := domain.DecodeAsset(b.Asset)
	if err != nil {
		return domain.Prediction{}, err
	}
	direction, err := domain.DecodeDirection(b.Direction)
	if err != nil {
		return domain.Prediction{}, err
	}
	window, err := domain.DecodeWindow(b.TimeWindow)
	if err != nil {
		return domain.Prediction{}, err
	}
	token, err := domain.DecodeToken(b.Token)
	if err != nil {
		return domain.Prediction{}, err
	}

	return domain.Prediction{
		Asset:     asset,
		Threshold: b.Threshold.Int64(),
		Direction: direction,
		Window:    window,
		Token:     token,
		Amount:    new(big.Int).Set(b.Amount),
		PoolID:    b.PoolId.Uint64(),
		CreatedAt: time.Unix(b.CreatedAt.Int64(), 0).UTC(),
	}, nil
}

func (p onChainPool) toDomain(id uint64) (domain.Pool, error) {
	asset, err := domain.DecodeAsset(p.Asset)
	if err != nil {
		return domain.Pool{}, err
	}
	window, err := domain.DecodeWindow(p.TimeWindow)
	if err != nil {
		return domain.Pool{}, err
	}

	pool := domain.Pool{
		ID:        id,
		Asset:     asset,
		Threshold: p.Threshold.Int64(),
		Window:    window,
		AbovePool: new(big.Int).Set(p.AbovePool),
		BelowPool: new(big.Int).Set(p.BelowPool),
		Resolved:  p.Resolved,
	}
	if p.Resolved {
		pool.FinalPrice = p.FinalPrice.Int64()
	}
	return pool, nil
}

// packPlaceBet encodes a validated prediction input for the placeBet call.
func packPlaceBet(in domain.PredictionInput) ([]byte, error) {
	asset, err := domain.EncodeAsset(in.Asset)
	if err != nil {
		return nil, err
	}
	direction, err := domain.EncodeDirection(in.Direction)
	if err != nil {
		return nil, err
	}
	window, err := domain.EncodeWindow(in.Window)
	if err != nil {
		return nil, err
	}
	token, err := domain.EncodeToken(in.Token)
	if err != nil {
		return nil, err
	}

	return marketABI.Pack("placeBet",
		asset,
		big.NewInt(in.Threshold),
		direction,
		window,
		token,
		new(big.Int).Set(in.Amount),
	)
}
