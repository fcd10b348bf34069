// Package domain defines the core prediction-market entities shared by every
// layer of poolbot: enums and their ledger wire codes, predictions, pools,
// settlement arithmetic, and the store/cache interfaces implemented by the
// postgres, redis, and blob packages.
package domain

import (
	"fmt"
	"time"
)

// Asset identifies a tracked crypto asset.
type Asset string

const (
	AssetBTC Asset = "BTC"
	AssetETH Asset = "ETH"
	AssetXRP Asset = "XRP"
)

// Direction is the side of the threshold a stake bets the final price lands on.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Window is the resolution delay of a pool from its creation.
type Window string

const (
	WindowOneHour        Window = "1h"
	WindowTwentyFourHour Window = "24h"
)

// Duration returns the wall-clock length of the window.
func (w Window) Duration() time.Duration {
	if w == WindowTwentyFourHour {
		return 24 * time.Hour
	}
	return time.Hour
}

// Token is a supported settlement currency. Both use 6 decimal places.
type Token string

const (
	TokenUSDC Token = "USDC"
	TokenUSDT Token = "USDT"
)

// TokenDecimals is the number of decimal places for all supported tokens.
const TokenDecimals = 6

// ---------------------------------------------------------------------------
// Wire codes.
//
// The ledger contract identifies enums by small integers. Each table below is
// the single source of truth for one enum: the slice index IS the wire code,
// and both the encode and decode paths read the same table.
// ---------------------------------------------------------------------------

var (
	assetCodes     = []Asset{AssetBTC, AssetETH, AssetXRP}
	directionCodes = []Direction{DirectionAbove, DirectionBelow}
	windowCodes    = []Window{WindowOneHour, WindowTwentyFourHour}
	tokenCodes     = []Token{TokenUSDC, TokenUSDT}
)

func encodeEnum[T comparable](table []T, v T) (uint8, error) {
	for i, entry := range table {
		if entry == v {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("domain: unknown value %v: %w", v, ErrInvalidPrediction)
}

func decodeEnum[T any](table []T, code uint8) (T, error) {
	if int(code) >= len(table) {
		var zero T
		return zero, fmt.Errorf("domain: unknown wire code %d: %w", code, ErrInvalidPrediction)
	}
	return table[code], nil
}

// EncodeAsset returns the ledger wire code for a.
func EncodeAsset(a Asset) (uint8, error) { return encodeEnum(assetCodes, a) }

// DecodeAsset returns the Asset for a ledger wire code.
func DecodeAsset(code uint8) (Asset, error) { return decodeEnum(assetCodes, code) }

// EncodeDirection returns the ledger wire code for d.
func EncodeDirection(d Direction) (uint8, error) { return encodeEnum(directionCodes, d) }

// DecodeDirection returns the Direction for a ledger wire code.
func DecodeDirection(code uint8) (Direction, error) { return decodeEnum(directionCodes, code) }

// EncodeWindow returns the ledger wire code for w.
func EncodeWindow(w Window) (uint8, error) { return encodeEnum(windowCodes, w) }

// DecodeWindow returns the Window for a ledger wire code.
func DecodeWindow(code uint8) (Window, error) { return decodeEnum(windowCodes, code) }

// EncodeToken returns the ledger wire code for t.
func EncodeToken(t Token) (uint8, error) { return encodeEnum(tokenCodes, t) }

// DecodeToken returns the Token for a ledger wire code.
func DecodeToken(code uint8) (Token, error) { return decodeEnum(tokenCodes, code) }
