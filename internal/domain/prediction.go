package domain

import (
	"fmt"
	"math/big"
	"time"
)

// PredictionInput is a single stake request before it reaches the ledger.
// Threshold is the target price in dollars x100 (cents); Amount is in the
// token's smallest unit (6 decimals).
type PredictionInput struct {
	Asset     Asset
	Threshold int64
	Direction Direction
	Window    Window
	Token     Token
	Amount    *big.Int
}

// Validate performs the fail-fast checks that must pass before any network
// call is made.
func (in PredictionInput) Validate() error {
	if _, err := EncodeAsset(in.Asset); err != nil {
		return err
	}
	if _, err := EncodeDirection(in.Direction); err != nil {
		return err
	}
	if _, err := EncodeWindow(in.Window); err != nil {
		return err
	}
	if _, err := EncodeToken(in.Token); err != nil {
		return err
	}
	if in.Threshold <= 0 {
		return fmt.Errorf("domain: threshold must be positive, got %d: %w", in.Threshold, ErrInvalidPrediction)
	}
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return fmt.Errorf("domain: amount must be positive: %w", ErrInvalidPrediction)
	}
	return nil
}

// Prediction is one stake event as recorded by the ledger. Every prediction
// references exactly one pool.
type Prediction struct {
	Asset     Asset
	Threshold int64
	Direction Direction
	Window    Window
	Token     Token
	Amount    *big.Int
	PoolID    uint64
	CreatedAt time.Time
}

// Outcome is the derived settlement state of a prediction.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	// OutcomeUnknown marks a prediction whose pool detail could not be
	// fetched. Distinct from pending: the pool may well be resolved.
	OutcomeUnknown Outcome = "unknown"
)

// Settled reports whether the outcome is a final win or loss.
func (o Outcome) Settled() bool {
	return o == OutcomeWin || o == OutcomeLoss
}

// EnrichedPrediction is a Prediction composed with its pool's settlement
// state. FinalPrice and the pool totals are meaningful only when Result is
// win or loss.
type EnrichedPrediction struct {
	Prediction

	Result     Outcome
	FinalPrice int64
	AbovePool  *big.Int
	BelowPool  *big.Int
}

// PredictionReceipt is returned after a stake submission has been confirmed.
type PredictionReceipt struct {
	SubmissionID string
	TxHash       string
	Input        PredictionInput
	CreatedAt    time.Time
}
