// Package handler implements the HTTP handlers for the stake API.
package handler

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/pricepoolhq/poolbot/internal/domain"
	"github.com/pricepoolhq/poolbot/internal/ledger"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinels and submission phase errors to
// status codes, attaching the failing phase when one is known.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidPrediction):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrNoProvider):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUserRejected):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrChainUnavailable), errors.Is(err, domain.ErrProviderUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}

	body := map[string]string{"error": err.Error()}
	var phaseErr *ledger.PhaseError
	if errors.As(err, &phaseErr) {
		body["phase"] = string(phaseErr.Phase)
	}
	writeJSON(w, status, body)
}

// parseAmount parses a base-unit decimal string into a positive big integer.
func parseAmount(raw string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() <= 0 {
		return nil, domain.ErrInvalidPrediction
	}
	return n, nil
}
