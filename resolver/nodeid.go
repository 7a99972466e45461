package resolver

import (
	"encoding/hex"
	"net"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// IsNodeID reports whether s has the <pubkey>@<host:port> shape of a
// lightning node connection string. The pubkey must be a hex encoded
// 33 byte compressed key on the secp256k1 curve, and the network half must
// be an IPv4 address, a hostname or an onion service, each with a numeric
// port. This is a predicate, not a parser: any malformed input simply
// reports false, callers use it as an optional override rather than a hard
// gate.
func IsNodeID(s string) bool {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return false
	}

	pubKeyBytes, err := hex.DecodeString(parts[0])
	if err != nil || len(pubKeyBytes) != 33 {
		return false
	}
	if _, err := btcec.ParsePubKey(pubKeyBytes); err != nil {
		return false
	}

	return isHostPort(parts[1])
}

// isHostPort reports whether addr is a host:port pair with a valid port and
// a plausible host: IPv4, onion service or bare hostname.
func isHostPort(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}

	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 1 || portNum > 65535 {
		return false
	}

	if net.ParseIP(host) != nil {
		return true
	}
	if strings.HasSuffix(host, ".onion") {
		return len(host) > len(".onion")
	}

	// Bare hostname: non-empty labels of sane characters.
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return false
		}
		for _, c := range label {
			ok := c == '-' || (c >= '0' && c <= '9') ||
				(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
			if !ok {
				return false
			}
		}
	}

	return true
}
