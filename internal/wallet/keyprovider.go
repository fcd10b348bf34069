package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// LocalProvider is a wallet provider backed by a local signing key and a
// plain execution-layer RPC node. Account and signing methods are handled
// in-process; everything else is forwarded to the node. The provider is
// pinned to the node's chain, so a switch to any other chain is reported as
// unrecognized.
type LocalProvider struct {
	name    string
	client  *rpc.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	logger  *slog.Logger
}

// NewLocalProvider dials the RPC node, derives the signing address from the
// hex-encoded private key, and records the node's chain id.
func NewLocalProvider(ctx context.Context, name, rpcURL, privateKeyHex string, logger *slog.Logger) (*LocalProvider, error) {
	key, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("wallet/local: parsing private key: %w", err)
	}

	client, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("wallet/local: dialing %s: %w", rpcURL, err)
	}

	var chainHex string
	if err := client.CallContext(ctx, &chainHex, "eth_chainId"); err != nil {
		client.Close()
		return nil, fmt.Errorf("wallet/local: querying chain id: %w", err)
	}
	chainID, err := hexutil.DecodeUint64(chainHex)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("wallet/local: parsing chain id %q: %w", chainHex, err)
	}

	p := &LocalProvider{
		name:    name,
		client:  client,
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).SetUint64(chainID),
		logger: logger.With(
			slog.String("component", "local_provider"),
			slog.String("provider", name),
		),
	}
	p.logger.Info("local signing provider ready",
		slog.String("address", p.address.Hex()),
		slog.Uint64("chain_id", chainID),
	)
	return p, nil
}

// Name implements Provider.
func (p *LocalProvider) Name() string { return p.name }

// Address returns the signing address.
func (p *LocalProvider) Address() common.Address { return p.address }

// Request implements Provider.
func (p *LocalProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_accounts", "eth_requestAccounts":
		return json.Marshal([]string{p.address.Hex()})

	case "wallet_switchEthereumChain":
		return p.switchChain(params)

	case "wallet_addEthereumChain":
		// A local provider cannot adopt new chains; its node is fixed.
		return nil, &RPCError{Code: 4200, Message: "local provider is pinned to its node's chain"}

	case "eth_sendTransaction":
		return p.sendTransaction(ctx, params)

	default:
		return p.forward(ctx, method, params...)
	}
}

// Subscribe implements Provider. A local provider never changes accounts or
// chains, so no notifications are ever delivered.
func (p *LocalProvider) Subscribe(string, func(json.RawMessage)) func() {
	return func() {}
}

// Close implements Provider.
func (p *LocalProvider) Close() error {
	p.client.Close()
	return nil
}

func (p *LocalProvider) switchChain(params []any) (json.RawMessage, error) {
	if len(params) != 1 {
		return nil, &RPCError{Code: -32602, Message: "wallet_switchEthereumChain expects one parameter"}
	}

	raw, err := json.Marshal(params[0])
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid switch parameter"}
	}
	var param struct {
		ChainID string `json:"chainId"`
	}
	if err := json.Unmarshal(raw, &param); err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid switch parameter"}
	}
	requested, err := hexutil.DecodeUint64(param.ChainID)
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: fmt.Sprintf("invalid chain id %q", param.ChainID)}
	}

	if requested != p.chainID.Uint64() {
		return nil, &RPCError{
			Code:    CodeUnrecognizedChain,
			Message: fmt.Sprintf("chain %d is not the node's chain %d", requested, p.chainID),
		}
	}
	return json.RawMessage("null"), nil
}

func (p *LocalProvider) sendTransaction(ctx context.Context, params []any) (json.RawMessage, error) {
	if len(params) != 1 {
		return nil, &RPCError{Code: -32602, Message: "eth_sendTransaction expects one parameter"}
	}

	raw, err := json.Marshal(params[0])
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid transaction parameter"}
	}
	var req TxRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid transaction parameter"}
	}
	if !common.IsHexAddress(req.To) {
		return nil, &RPCError{Code: -32602, Message: fmt.Sprintf("invalid to address %q", req.To)}
	}
	to := common.HexToAddress(req.To)

	data, err := decodeOptionalHexBytes(req.Data)
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid transaction data"}
	}
	value, err := decodeOptionalHexBig(req.Value)
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid transaction value"}
	}

	var nonceHex string
	if err := p.client.CallContext(ctx, &nonceHex, "eth_getTransactionCount", p.address, "pending"); err != nil {
		return nil, p.wrapNodeError("eth_getTransactionCount", err)
	}
	nonce, err := hexutil.DecodeUint64(nonceHex)
	if err != nil {
		return nil, fmt.Errorf("wallet/local: parsing nonce %q: %w", nonceHex, err)
	}

	var gasPriceHex string
	if err := p.client.CallContext(ctx, &gasPriceHex, "eth_gasPrice"); err != nil {
		return nil, p.wrapNodeError("eth_gasPrice", err)
	}
	gasPrice, err := hexutil.DecodeBig(gasPriceHex)
	if err != nil {
		return nil, fmt.Errorf("wallet/local: parsing gas price %q: %w", gasPriceHex, err)
	}

	gas, err := p.resolveGas(ctx, req, to, value, data)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(p.chainID), p.key)
	if err != nil {
		return nil, fmt.Errorf("wallet/local: signing transaction: %w", err)
	}
	encoded, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("wallet/local: encoding transaction: %w", err)
	}

	var txHash string
	if err := p.client.CallContext(ctx, &txHash, "eth_sendRawTransaction", hexutil.Encode(encoded)); err != nil {
		return nil, p.wrapNodeError("eth_sendRawTransaction", err)
	}

	p.logger.Info("transaction submitted",
		slog.String("tx_hash", txHash),
		slog.String("to", to.Hex()),
		slog.Uint64("nonce", nonce),
	)
	return json.Marshal(txHash)
}

// resolveGas uses the caller's gas limit when present and asks the node for
// an estimate otherwise.
func (p *LocalProvider) resolveGas(ctx context.Context, req TxRequest, to common.Address, value *big.Int, data []byte) (uint64, error) {
	if req.Gas != "" {
		gas, err := hexutil.DecodeUint64(req.Gas)
		if err != nil {
			return 0, &RPCError{Code: -32602, Message: fmt.Sprintf("invalid gas limit %q", req.Gas)}
		}
		return gas, nil
	}

	call := map[string]any{
		"from": p.address.Hex(),
		"to":   to.Hex(),
		"data": hexutil.Encode(data),
	}
	if value != nil && value.Sign() > 0 {
		call["value"] = hexutil.EncodeBig(value)
	}

	var gasHex string
	if err := p.client.CallContext(ctx, &gasHex, "eth_estimateGas", call); err != nil {
		return 0, p.wrapNodeError("eth_estimateGas", err)
	}
	gas, err := hexutil.DecodeUint64(gasHex)
	if err != nil {
		return 0, fmt.Errorf("wallet/local: parsing gas estimate %q: %w", gasHex, err)
	}
	return gas, nil
}

func (p *LocalProvider) forward(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, p.wrapNodeError(method, err)
	}
	return result, nil
}

// wrapNodeError converts node-side JSON-RPC errors into the provider error
// shape the rest of the package speaks.
func (p *LocalProvider) wrapNodeError(method string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return fmt.Errorf("wallet/local: %s: %w", method, err)
}

func decodeOptionalHexBytes(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	return hexutil.Decode(s)
}

func decodeOptionalHexBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	return hexutil.DecodeBig(s)
}

var _ Provider = (*LocalProvider)(nil)
