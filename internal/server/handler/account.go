package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// AccountAPI is the service slice the account handlers call.
type AccountAPI interface {
	Balance(ctx context.Context) (domain.UserBalance, error)
	Deposit(ctx context.Context, token domain.Token, amount *big.Int) (string, error)
	Withdraw(ctx context.Context, token domain.Token, amount *big.Int) (string, error)
	Points(ctx context.Context, user common.Address) (int64, error)
	Profile(ctx context.Context, user common.Address) (domain.UserProfile, error)
	SetDisplayName(ctx context.Context, name string) error
	Leaderboard(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
}

// AccountHandler serves balance, funds movement, profile, and leaderboard
// endpoints.
type AccountHandler struct {
	accounts AccountAPI
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountAPI, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger.With(slog.String("handler", "account")),
	}
}

// Balance returns the active identity's spendable ledger balances.
// GET /api/balance
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.accounts.Balance(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"usdc": bal.USDC.String(),
		"usdt": bal.USDT.String(),
	})
}

type fundsRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"` // smallest unit, decimal string
}

func (h *AccountHandler) moveFunds(
	w http.ResponseWriter, r *http.Request,
	move func(context.Context, domain.Token, *big.Int) (string, error),
) {
	var req fundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive base-unit integer")
		return
	}

	txHash, err := move(r.Context(), domain.Token(req.Token), amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "funds movement failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tx_hash": txHash})
}

// Deposit moves funds into the ledger.
// POST /api/deposits
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, h.accounts.Deposit)
}

// Withdraw moves funds out of the ledger.
// POST /api/withdrawals
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, h.accounts.Withdraw)
}

// Profile returns a wallet's display profile and points.
// GET /api/profiles/{wallet}
func (h *AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("wallet")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	profile, err := h.accounts.Profile(r.Context(), common.HexToAddress(raw))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":       profile.Wallet,
		"display_name": profile.DisplayIdentity(),
		"points":       profile.TotalPoints,
	})
}

type profileRequest struct {
	DisplayName string `json:"display_name"`
}

// SetProfile stores the active identity's chosen display name.
// PUT /api/profile
func (h *AccountHandler) SetProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.accounts.SetDisplayName(r.Context(), req.DisplayName); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Leaderboard returns the top wallets by points.
// GET /api/leaderboard
func (h *AccountHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	n := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			n = parsed
		}
	}

	entries, err := h.accounts.Leaderboard(r.Context(), n)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
