package resolver

import (
	"fmt"
	"math"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
)

// ParseSatoshis converts a decimal BTC amount string to satoshis. The empty
// string parses to zero. The conversion goes through a floating point
// multiply followed by truncation, which is lossy for some inputs but is the
// exact behavior callers and stored test vectors rely on: "0.0000001" must
// yield 10 and "100" must yield 10_000_000_000.
func ParseSatoshis(amount string) (uint64, error) {
	if amount == "" {
		return 0, nil
	}

	btc, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to parse the satoshis "+
			"from %q: %v", ErrMalformedAmount, amount, err)
	}

	sats := btc * btcutil.SatoshiPerBitcoin
	if math.IsNaN(sats) || sats < 0 || sats >= math.MaxUint64 {
		return 0, fmt.Errorf("%w: %q is out of range",
			ErrMalformedAmount, amount)
	}

	return uint64(sats), nil
}

// FormatBitcoins renders a satoshi amount as a decimal BTC string without an
// exponent, using the shortest representation that round trips.
func FormatBitcoins(satoshis uint64) string {
	return strconv.FormatFloat(
		btcutil.Amount(satoshis).ToBTC(), 'f', -1, 64,
	)
}
