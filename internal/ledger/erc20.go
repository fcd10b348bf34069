package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// TokenAllowance returns how much of owner's token the market contract is
// currently authorized to move.
func (c *Client) TokenAllowance(ctx context.Context, token domain.Token, owner common.Address) (*big.Int, error) {
	tokenAddr, err := c.TokenAddress(token)
	if err != nil {
		return nil, err
	}

	out, err := c.view(ctx, tokenAddr, erc20ABI, "allowance", owner, c.opts.Contract)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// ApproveToken authorizes the market contract to move exactly amount of
// owner's token and waits for the approval to be mined. The amount is exact
// rather than unlimited so a dangling approval never exceeds one stake.
func (c *Client) ApproveToken(ctx context.Context, token domain.Token, owner common.Address, amount *big.Int) error {
	tokenAddr, err := c.TokenAddress(token)
	if err != nil {
		return err
	}

	data, err := erc20ABI.Pack("approve", c.opts.Contract, new(big.Int).Set(amount))
	if err != nil {
		return fmt.Errorf("ledger: encoding approve: %w", err)
	}

	txHash, err := c.send(ctx, owner, tokenAddr, data)
	if err != nil {
		return err
	}
	return c.WaitMined(ctx, txHash)
}

// TokenBalance returns owner's wallet balance of token, outside the ledger.
func (c *Client) TokenBalance(ctx context.Context, token domain.Token, owner common.Address) (*big.Int, error) {
	tokenAddr, err := c.TokenAddress(token)
	if err != nil {
		return nil, err
	}

	out, err := c.view(ctx, tokenAddr, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}
