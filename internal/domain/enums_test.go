package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumWireCodesRoundTrip(t *testing.T) {
	for code, want := range []Asset{AssetBTC, AssetETH, AssetXRP} {
		enc, err := EncodeAsset(want)
		require.NoError(t, err)
		assert.Equal(t, uint8(code), enc)

		dec, err := DecodeAsset(enc)
		require.NoError(t, err)
		assert.Equal(t, want, dec)
	}

	for code, want := range []Direction{DirectionAbove, DirectionBelow} {
		enc, err := EncodeDirection(want)
		require.NoError(t, err)
		assert.Equal(t, uint8(code), enc)

		dec, err := DecodeDirection(enc)
		require.NoError(t, err)
		assert.Equal(t, want, dec)
	}

	for code, want := range []Window{WindowOneHour, WindowTwentyFourHour} {
		enc, err := EncodeWindow(want)
		require.NoError(t, err)
		assert.Equal(t, uint8(code), enc)

		dec, err := DecodeWindow(enc)
		require.NoError(t, err)
		assert.Equal(t, want, dec)
	}

	for code, want := range []Token{TokenUSDC, TokenUSDT} {
		enc, err := EncodeToken(want)
		require.NoError(t, err)
		assert.Equal(t, uint8(code), enc)

		dec, err := DecodeToken(enc)
		require.NoError(t, err)
		assert.Equal(t, want, dec)
	}
}

func TestEnumWireCodesRejectUnknown(t *testing.T) {
	_, err := EncodeAsset(Asset("DOGE"))
	assert.ErrorIs(t, err, ErrInvalidPrediction)

	_, err = DecodeAsset(3)
	assert.ErrorIs(t, err, ErrInvalidPrediction)

	_, err = DecodeDirection(2)
	assert.ErrorIs(t, err, ErrInvalidPrediction)

	_, err = DecodeWindow(2)
	assert.ErrorIs(t, err, ErrInvalidPrediction)

	_, err = DecodeToken(2)
	assert.ErrorIs(t, err, ErrInvalidPrediction)
}

func TestWindowDuration(t *testing.T) {
	assert.Equal(t, "1h0m0s", WindowOneHour.Duration().String())
	assert.Equal(t, "24h0m0s", WindowTwentyFourHour.Duration().String())
}
