package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// PredictionAPI is the service slice the prediction handlers call.
type PredictionAPI interface {
	Submit(ctx context.Context, in domain.PredictionInput) (*domain.PredictionReceipt, error)
	History(ctx context.Context) ([]domain.EnrichedPrediction, error)
	HistoryFor(ctx context.Context, user common.Address) ([]domain.EnrichedPrediction, error)
	PayoutPreview(pool domain.Pool, threshold int64, direction domain.Direction, amount *big.Int) *big.Int
}

// PoolAPI reads pool aggregates.
type PoolAPI interface {
	PoolDetail(ctx context.Context, poolID uint64) (domain.Pool, error)
}

// PredictionHandler serves stake submission, history, and pool endpoints.
type PredictionHandler struct {
	predictions PredictionAPI
	pools       PoolAPI
	logger      *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(predictions PredictionAPI, pools PoolAPI, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{
		predictions: predictions,
		pools:       pools,
		logger:      logger.With(slog.String("handler", "prediction")),
	}
}

type submitRequest struct {
	Asset     string `json:"asset"`
	Threshold int64  `json:"threshold"` // dollars x100
	Direction string `json:"direction"`
	Window    string `json:"window"`
	Token     string `json:"token"`
	Amount    string `json:"amount"` // smallest unit, decimal string
}

type submitResponse struct {
	SubmissionID string `json:"submission_id"`
	TxHash       string `json:"tx_hash"`
	CreatedAt    string `json:"created_at"`
}

// Submit places one stake.
// POST /api/predictions
func (h *PredictionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive base-unit integer")
		return
	}

	in := domain.PredictionInput{
		Asset:     domain.Asset(req.Asset),
		Threshold: req.Threshold,
		Direction: domain.Direction(req.Direction),
		Window:    domain.Window(req.Window),
		Token:     domain.Token(req.Token),
		Amount:    amount,
	}

	receipt, err := h.predictions.Submit(r.Context(), in)
	if err != nil {
		h.logger.WarnContext(r.Context(), "stake submission failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		SubmissionID: receipt.SubmissionID,
		TxHash:       receipt.TxHash,
		CreatedAt:    receipt.CreatedAt.Format(time.RFC3339),
	})
}

type enrichedResponse struct {
	Asset      string `json:"asset"`
	Threshold  int64  `json:"threshold"`
	Direction  string `json:"direction"`
	Window     string `json:"window"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	PoolID     uint64 `json:"pool_id"`
	CreatedAt  string `json:"created_at"`
	Result     string `json:"result"`
	FinalPrice int64  `json:"final_price,omitempty"`
	AbovePool  string `json:"above_pool,omitempty"`
	BelowPool  string `json:"below_pool,omitempty"`
}

func toEnrichedResponse(preds []domain.EnrichedPrediction) []enrichedResponse {
	out := make([]enrichedResponse, 0, len(preds))
	for _, p := range preds {
		resp := enrichedResponse{
			Asset:      string(p.Asset),
			Threshold:  p.Threshold,
			Direction:  string(p.Direction),
			Window:     string(p.Window),
			Token:      string(p.Token),
			Amount:     p.Amount.String(),
			PoolID:     p.PoolID,
			CreatedAt:  p.CreatedAt.Format(time.RFC3339),
			Result:     string(p.Result),
			FinalPrice: p.FinalPrice,
		}
		if p.AbovePool != nil {
			resp.AbovePool = p.AbovePool.String()
		}
		if p.BelowPool != nil {
			resp.BelowPool = p.BelowPool.String()
		}
		out = append(out, resp)
	}
	return out
}

// History returns the active identity's enriched history.
// GET /api/predictions
func (h *PredictionHandler) History(w http.ResponseWriter, r *http.Request) {
	preds, err := h.predictions.History(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEnrichedResponse(preds))
}

// HistoryFor returns another wallet's enriched history.
// GET /api/predictions/{wallet}
func (h *PredictionHandler) HistoryFor(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("wallet")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	preds, err := h.predictions.HistoryFor(r.Context(), common.HexToAddress(raw))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEnrichedResponse(preds))
}

// Pool returns one pool's aggregate state, with an optional payout preview
// when threshold, direction, and amount query parameters are present.
// GET /api/pools/{id}
func (h *PredictionHandler) Pool(w http.ResponseWriter, r *http.Request) {
	poolID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool id")
		return
	}

	pool, err := h.pools.PoolDetail(r.Context(), poolID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	body := map[string]any{
		"id":         pool.ID,
		"asset":      pool.Asset,
		"threshold":  pool.Threshold,
		"window":     pool.Window,
		"above_pool": pool.AbovePool.String(),
		"below_pool": pool.BelowPool.String(),
		"resolved":   pool.Resolved,
	}
	if pool.Resolved {
		body["final_price"] = pool.FinalPrice
	}

	if preview := h.previewFromQuery(r, pool); preview != nil {
		body["payout_preview"] = preview.String()
	}

	writeJSON(w, http.StatusOK, body)
}

func (h *PredictionHandler) previewFromQuery(r *http.Request, pool domain.Pool) *big.Int {
	q := r.URL.Query()
	if q.Get("amount") == "" {
		return nil
	}

	amount, err := parseAmount(q.Get("amount"))
	if err != nil {
		return nil
	}
	threshold, err := strconv.ParseInt(q.Get("threshold"), 10, 64)
	if err != nil || threshold <= 0 {
		threshold = pool.Threshold
	}
	direction := domain.Direction(q.Get("direction"))
	if direction != domain.DirectionAbove && direction != domain.DirectionBelow {
		direction = domain.DirectionAbove
	}

	return h.predictions.PayoutPreview(pool, threshold, direction, amount)
}
