package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseSatoshis asserts the decimal BTC to satoshi conversion,
// including the truncation behavior the GUI round trip relies on.
func TestParseSatoshis(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		amount string
		sats   uint64
	}{
		{amount: "", sats: 0},
		{amount: "0", sats: 0},
		{amount: "1", sats: 100_000_000},
		{amount: "100", sats: 10_000_000_000},
		{amount: "0.0000001", sats: 10},
		{amount: "0.00000001", sats: 1},
		{amount: "0.00351877", sats: 351_877},
		{amount: "21000000", sats: 2_100_000_000_000_000},
	}
	for _, tc := range testCases {
		sats, err := ParseSatoshis(tc.amount)
		require.NoError(t, err, tc.amount)
		require.Equal(t, tc.sats, sats, tc.amount)
	}
}

// TestParseSatoshisMalformed asserts that junk amounts are rejected with
// the amount error, not silently zeroed.
func TestParseSatoshisMalformed(t *testing.T) {
	t.Parallel()

	for _, amount := range []string{"abc", "1,5", "-1", "NaN", "1e400"} {
		_, err := ParseSatoshis(amount)
		require.ErrorIs(t, err, ErrMalformedAmount, amount)
	}
}

// TestFormatBitcoins asserts the decimal rendering used in the display
// triple: no exponent notation, shortest round tripping form.
func TestFormatBitcoins(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		sats uint64
		btc  string
	}{
		{sats: 0, btc: "0"},
		{sats: 10, btc: "0.0000001"},
		{sats: 351_877, btc: "0.00351877"},
		{sats: 100_000_000, btc: "1"},
		{sats: 10_000_000_000, btc: "100"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.btc, FormatBitcoins(tc.sats))
	}
}

// TestAmountRoundTrip asserts that formatting a parsed amount reproduces
// the original string for the amounts the GUI hands back and forth.
func TestAmountRoundTrip(t *testing.T) {
	t.Parallel()

	for _, amount := range []string{"0.0000001", "0.1", "1", "100"} {
		sats, err := ParseSatoshis(amount)
		require.NoError(t, err)
		require.Equal(t, amount, FormatBitcoins(sats))
	}
}
