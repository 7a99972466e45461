// Package sweepkey parses loose key material a user wants to sweep the
// balance of: WIF private keys, extended private keys (including the
// SLIP-132 alternate encodings) and output descriptors. It can expand a
// bare key into the candidate descriptors a balance may hide behind, scan
// those candidates against an Esplora backend and drain found balances into
// a destination address.
package sweepkey

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// ErrInvalidKey is returned when key shaped material fails to
	// decode.
	ErrInvalidKey = errors.New("invalid key material")

	// ErrWrongNetwork is returned when key material decodes but does
	// not belong to the mainnet network.
	ErrWrongNetwork = errors.New("key material is not for mainnet")

	// ErrInvalidDescriptor is returned when a descriptor shaped string
	// fails the semantic sanity check.
	ErrInvalidDescriptor = errors.New("invalid output descriptor")
)

// keyKind discriminates the Key variants.
type keyKind uint8

const (
	kindWIF keyKind = iota
	kindExtended
	kindDescriptor
)

// Key is parsed sweepable key material. Exactly one of the variant fields
// is set, according to kind.
type Key struct {
	kind keyKind

	wif  *btcutil.WIF
	xprv *hdkeychain.ExtendedKey
	desc *Descriptor
}

// Parse decodes key material of any supported kind. The caller is expected
// to have shape checked the input; a string that decodes as none of the
// kinds fails with ErrInvalidKey.
func Parse(material string) (*Key, error) {
	material = strings.TrimSpace(material)

	if wif, err := btcutil.DecodeWIF(material); err == nil {
		if !wif.IsForNet(&chaincfg.MainNetParams) {
			return nil, fmt.Errorf("%w: %s", ErrWrongNetwork,
				material)
		}

		return &Key{kind: kindWIF, wif: wif}, nil
	}

	if looksExtended(material) {
		return parseExtended(material)
	}

	if IsDescriptorShaped(material) {
		return ParseDescriptor(material)
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidKey, material)
}

// String returns the key material in its normalized serialization: the WIF
// string, the xprv encoding of an extended key, or the descriptor as
// supplied.
func (k *Key) String() string {
	switch k.kind {
	case kindWIF:
		return k.wif.String()
	case kindExtended:
		return k.xprv.String()
	case kindDescriptor:
		return k.desc.String()
	default:
		panic(fmt.Sprintf("unhandled key kind %d", k.kind))
	}
}

// privateKey returns the signing key of the key material, along with
// whether the corresponding public key is serialized compressed.
func (k *Key) privateKey() (*btcec.PrivateKey, bool, error) {
	switch k.kind {
	case kindWIF:
		return k.wif.PrivKey, k.wif.CompressPubKey, nil

	case kindExtended:
		priv, err := k.xprv.ECPrivKey()
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidKey,
				err)
		}

		return priv, true, nil

	case kindDescriptor:
		return k.desc.privateKey()

	default:
		panic(fmt.Sprintf("unhandled key kind %d", k.kind))
	}
}

// slip132Versions maps the known SLIP-132 extended private key prefixes to
// their serialization version bytes. All of them carry the same key type,
// only the version bytes differ.
var slip132Versions = map[string][4]byte{
	"xprv": {0x04, 0x88, 0xAD, 0xE4},
	"yprv": {0x04, 0x9D, 0x78, 0x78},
	"zprv": {0x04, 0xB2, 0x43, 0x0C},
	"Yprv": {0x02, 0x95, 0xB0, 0x05},
	"Zprv": {0x02, 0xAA, 0x7A, 0x99},
}

// looksExtended reports whether s starts with a known extended private key
// prefix.
func looksExtended(s string) bool {
	if len(s) < 4 {
		return false
	}
	_, ok := slip132Versions[s[:4]]

	return ok
}

// parseExtended decodes an extended private key, first normalizing the
// SLIP-132 alternate encodings back to the standard xprv version bytes.
func parseExtended(material string) (*Key, error) {
	normalized, err := normalizeExtendedKey(material)
	if err != nil {
		return nil, err
	}

	xprv, err := hdkeychain.NewKeyFromString(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse extended key "+
			"%s: %v", ErrInvalidKey, material, err)
	}
	if !xprv.IsPrivate() {
		return nil, fmt.Errorf("%w: %s is not a private key",
			ErrInvalidKey, material)
	}
	if !xprv.IsForNet(&chaincfg.MainNetParams) {
		return nil, fmt.Errorf("%w: %s", ErrWrongNetwork, material)
	}

	return &Key{kind: kindExtended, xprv: xprv}, nil
}

// normalizeExtendedKey rewrites the SLIP-132 version bytes of an extended
// private key to the standard xprv ones. Keys already carrying the xprv
// prefix pass through untouched.
func normalizeExtendedKey(material string) (string, error) {
	prefix := material[:4]
	if prefix == "xprv" {
		return material, nil
	}

	version, ok := slip132Versions[prefix]
	if !ok {
		return "", fmt.Errorf("%w: unknown extended key prefix %q",
			ErrInvalidKey, prefix)
	}

	decoded := base58.Decode(material)
	if len(decoded) != 82 {
		return "", fmt.Errorf("%w: extended key %s has invalid "+
			"length", ErrInvalidKey, material)
	}

	payload, checksum := decoded[:78], decoded[78:]
	expected := chainhash.DoubleHashB(payload)[:4]
	for i := range checksum {
		if checksum[i] != expected[i] {
			return "", fmt.Errorf("%w: extended key %s has an "+
				"invalid checksum", ErrInvalidKey, material)
		}
	}
	for i := range version {
		if payload[i] != version[i] {
			return "", fmt.Errorf("%w: extended key %s does "+
				"not carry the %s version bytes",
				ErrInvalidKey, material, prefix)
		}
	}

	xprvVersion := slip132Versions["xprv"]
	normalized := make([]byte, 0, len(decoded))
	normalized = append(normalized, xprvVersion[:]...)
	normalized = append(normalized, payload[4:]...)
	normalized = append(
		normalized, chainhash.DoubleHashB(normalized)[:4]...,
	)

	return base58.Encode(normalized), nil
}
