package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	amt, sym, err := ParseAmount(json.RawMessage(`"5.000 WBD"`))
	require.NoError(t, err)
	assert.Equal(t, WBD, sym)
	assert.True(t, amt.Equal(decimal.RequireFromString("5")))

	amt, sym, err = ParseAmount(json.RawMessage(`{"amount":"1234","precision":3,"nai":"@@000000021"}`))
	require.NoError(t, err)
	assert.Equal(t, WORTH, sym)
	assert.Equal(t, "1.234", amt.String())

	_, _, err = ParseAmount(json.RawMessage(`"5.000"`))
	require.ErrorIs(t, err, ErrBadAmount)

	_, _, err = ParseAmount(json.RawMessage(`{"amount":"1","precision":3,"nai":"@@999"}`))
	require.ErrorIs(t, err, ErrBadAmount)
}

func TestAmountOfWrongSymbol(t *testing.T) {
	_, err := AmountOf(json.RawMessage(`"1.000 WORTH"`), WBD)
	require.ErrorIs(t, err, ErrBadAmount)
	assert.True(t, WbdAmount(nil).IsZero())
	assert.Equal(t, "0.02", WbdAmount(json.RawMessage(`"0.020 WBD"`)).String())
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2018-03-01T12:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 3, 1, 12, 30, 0, 0, time.UTC), got)
	_, err = ParseTime("yesterday")
	require.Error(t, err)
}

func TestBlockNum(t *testing.T) {
	n, err := BlockNum("0000000a2c5e3b1e0000000000000000")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)
	n, err = BlockNum("01312d00ffff")
	require.NoError(t, err)
	assert.Equal(t, uint64(20000000), n)
	_, err = BlockNum("abc")
	require.Error(t, err)
}

func TestRepLog10(t *testing.T) {
	assert.Equal(t, 25.0, RepLog10("0"))
	assert.Equal(t, 25.0, RepLog10("1000"))
	assert.Equal(t, 34.0, RepLog10("10000000000"))
	assert.Equal(t, 16.0, RepLog10("-10000000000"))
	assert.InDelta(t, 69.83, RepLog10("95866787474787"), 0.01)
}

func TestTrunc(t *testing.T) {
	assert.Equal(t, "abc", Trunc("  abc ", 5))
	assert.Equal(t, "ab...", Trunc("abcdefgh", 5))
	assert.Equal(t, "żó...", Trunc("żółćxyz", 5))
}

func TestSafeImgURL(t *testing.T) {
	assert.Equal(t, "https://x/y.png", SafeImgURL(" https://x/y.png ", 1024))
	assert.Equal(t, "", SafeImgURL("ftp://x", 1024))
	assert.Equal(t, "", SafeImgURL("http://abcdef", 5))
	assert.True(t, HasHTTPScheme("https://a"))
	assert.False(t, HasHTTPScheme("a.com"))
	assert.True(t, HasNUL("a\x00b"))
}
