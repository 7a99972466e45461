// Package lnurl implements the client side of the LNURL family of
// protocols as far as a wallet needs them to resolve payment destinations:
// LUD-01 bech32 encoding, LUD-03 withdraw requests, LUD-06 pay requests and
// LUD-16 lightning addresses.
package lnurl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// lnurlHRP is the human readable part of bech32 encoded LNURL strings.
const lnurlHRP = "lnurl"

var (
	// reLightningAddress matches a LUD-16 lightning address. Matching is
	// performed on the lowercased input.
	reLightningAddress = regexp.MustCompile(
		`^[a-z0-9\-_.+]+@[a-z0-9\-.]+\.[a-z]{2,}$`,
	)

	// reCardScan matches LNbits boltcard scan URLs, the common shape of
	// card withdraw endpoints that arrive without the lnurlw scheme.
	reCardScan = regexp.MustCompile(
		`^https://[^/]+/boltcards/api/v1/scan/`,
	)
)

// DecodeBech32 decodes an LNURL string to the URL it wraps. Mixed case
// input is rejected by the underlying bech32 decoder, uniform case of
// either kind is accepted.
func DecodeBech32(encoded string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(encoded))
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode lnurl %q: %v",
			ErrProtocol, encoded, err)
	}
	if hrp != lnurlHRP {
		return "", fmt.Errorf("%w: unexpected bech32 prefix %q",
			ErrProtocol, hrp)
	}

	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode lnurl %q: %v",
			ErrProtocol, encoded, err)
	}

	return string(converted), nil
}

// EncodeBech32 wraps a URL in the uppercase bech32 encoding used in QR
// codes.
func EncodeBech32(url string) (string, error) {
	converted, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", err
	}

	encoded, err := bech32.Encode(lnurlHRP, converted)
	if err != nil {
		return "", err
	}

	return strings.ToUpper(encoded), nil
}

// IsLightningAddress reports whether s has the user@domain shape of a
// LUD-16 lightning address.
func IsLightningAddress(s string) bool {
	return reLightningAddress.MatchString(strings.ToLower(s))
}

// LightningAddressURL expands a lightning address to its well known
// LUD-16 pay endpoint. This is pure string work, no I/O happens here; the
// returned URL re-enters the regular pay flow.
func LightningAddressURL(address string) (string, error) {
	parts := strings.Split(strings.ToLower(address), "@")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: invalid lightning address %q",
			ErrProtocol, address)
	}

	return "https://" + parts[1] + "/.well-known/lnurlp/" + parts[0], nil
}

// IsWithdrawURL reports whether s is a direct withdraw endpoint: either the
// lnurlw:// scheme or a known card scan URL.
func IsWithdrawURL(s string) bool {
	_, ok := RewriteWithdrawURL(s)
	return ok
}

// RewriteWithdrawURL turns a withdraw endpoint notation into the HTTPS URL
// to query. The second return value reports whether s was recognized.
func RewriteWithdrawURL(s string) (string, bool) {
	const scheme = "lnurlw://"
	if len(s) >= len(scheme) &&
		strings.EqualFold(s[:len(scheme)], scheme) {

		return "https://" + s[len(scheme):], true
	}

	if reCardScan.MatchString(s) {
		return s, true
	}

	return "", false
}
