package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrNotConnected        = errors.New("no wallet identity connected")
	ErrUserRejected        = errors.New("rejected by user")
	ErrChainUnavailable    = errors.New("target chain unavailable")
	ErrTxReverted          = errors.New("transaction reverted")
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrInvalidPrediction   = errors.New("invalid prediction parameters")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPoolResolved        = errors.New("pool already resolved")
	ErrRateLimited         = errors.New("rate limited")
	ErrNoProvider          = errors.New("no wallet provider available")
)
