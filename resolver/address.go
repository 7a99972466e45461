package resolver

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// otherNets are the networks probed to distinguish a wrong network address
// from a plain decoding failure.
var otherNets = []*chaincfg.Params{
	&chaincfg.TestNet3Params,
	&chaincfg.SigNetParams,
	&chaincfg.RegressionNetParams,
	&chaincfg.SimNetParams,
}

// ParseAddress decodes and validates an on-chain address for the configured
// network. An address that is well formed but belongs to another network
// fails with ErrWrongNetwork rather than ErrInvalidAddress.
func (r *Resolver) ParseAddress(addr string) (btcutil.Address, error) {
	parsed, err := btcutil.DecodeAddress(addr, r.cfg.ChainParams)
	if err == nil {
		if !parsed.IsForNet(r.cfg.ChainParams) {
			return nil, fmt.Errorf("%w: %s", ErrWrongNetwork, addr)
		}

		return parsed, nil
	}

	// The decode failed for the configured network. If the string
	// decodes for any other known network, report the more helpful
	// wrong network error instead.
	for _, net := range otherNets {
		if net.Net == r.cfg.ChainParams.Net {
			continue
		}
		if _, otherErr := btcutil.DecodeAddress(addr, net); otherErr == nil {
			return nil, fmt.Errorf("%w: %s is a %s address",
				ErrWrongNetwork, addr, net.Name)
		}
	}

	return nil, fmt.Errorf("%w: failed to parse address %s: %v",
		ErrInvalidAddress, addr, err)
}
