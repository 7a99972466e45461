package sweepkey

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// Candidate pairs a concrete output descriptor with the address its funds
// would sit on, plus the material to spend them.
type Candidate struct {
	// Descriptor is the descriptor string describing the output.
	Descriptor string

	// Address is the address the descriptor maps to.
	Address btcutil.Address

	// template is the collapsed wrapper chain, e.g. "sh(wsh(pk))". It
	// selects the signing procedure when the candidate is drained.
	template string

	// priv signs spends of the candidate's outputs.
	priv *btcec.PrivateKey

	// compressed records the serialization of the public key the address
	// was derived from.
	compressed bool
}

// Candidates expands the key into the output descriptors a balance may hide
// behind. A bare key says nothing about the script template it was used
// with, so all common single key templates are produced: pkh, wpkh,
// wsh(pk) and sh(wsh(pk)). A descriptor already names its template and
// yields exactly one candidate.
func (k *Key) Candidates() ([]*Candidate, error) {
	params := &chaincfg.MainNetParams

	switch k.kind {
	case kindWIF, kindExtended:
		priv, compressed, err := k.privateKey()
		if err != nil {
			return nil, err
		}

		return expandKey(priv, compressed, k.String(), params)

	case kindDescriptor:
		candidate, err := k.desc.candidate(params)
		if err != nil {
			return nil, err
		}

		return []*Candidate{candidate}, nil

	default:
		panic(fmt.Sprintf("unhandled key kind %d", k.kind))
	}
}

// expandKey derives the candidate addresses of the common single key
// script templates for a bare private key.
func expandKey(priv *btcec.PrivateKey, compressed bool, material string,
	params *chaincfg.Params) ([]*Candidate, error) {

	pub := serializePubKey(priv.PubKey(), compressed)
	pubHash := btcutil.Hash160(pub)

	pkh, err := btcutil.NewAddressPubKeyHash(pubHash, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	wpkh, err := btcutil.NewAddressWitnessPubKeyHash(pubHash, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	wshAddr, err := witnessScriptAddr(pub, params)
	if err != nil {
		return nil, err
	}

	// sh(wsh(pk())) nests the witness program in a P2SH output, the
	// template legacy wallets used before native segwit addresses.
	wshScript, err := txscript.PayToAddrScript(wshAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	shWsh, err := btcutil.NewAddressScriptHash(wshScript, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	candidates := []*Candidate{
		{Descriptor: "pkh(" + material + ")", Address: pkh,
			template: "pkh"},
		{Descriptor: "wpkh(" + material + ")", Address: wpkh,
			template: "wpkh"},
		{Descriptor: "wsh(pk(" + material + "))", Address: wshAddr,
			template: "wsh(pk)"},
		{Descriptor: "sh(wsh(pk(" + material + ")))", Address: shWsh,
			template: "sh(wsh(pk))"},
	}
	for _, candidate := range candidates {
		candidate.priv = priv
		candidate.compressed = compressed
	}

	return candidates, nil
}

// serializePubKey renders a public key in the serialization the owner's
// addresses were derived with.
func serializePubKey(pub *btcec.PublicKey, compressed bool) []byte {
	if compressed {
		return pub.SerializeCompressed()
	}

	return pub.SerializeUncompressed()
}

// witnessScriptAddr builds the wsh(pk()) address of a public key: the
// sha256 of a bare <pub> OP_CHECKSIG script as a witness program.
func witnessScriptAddr(pub []byte,
	params *chaincfg.Params) (*btcutil.AddressWitnessScriptHash, error) {

	script, err := txscript.NewScriptBuilder().
		AddData(pub).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	scriptHash := sha256.Sum256(script)

	addr, err := btcutil.NewAddressWitnessScriptHash(
		scriptHash[:], params,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return addr, nil
}

// candidate derives the single address of a concrete descriptor. Ranged
// descriptors and multisig templates carry no single address and are
// rejected.
func (d *Descriptor) candidate(params *chaincfg.Params) (*Candidate, error) {
	priv, compressed, err := d.privateKey()
	if err != nil {
		return nil, err
	}
	pub := serializePubKey(priv.PubKey(), compressed)

	template := d.template()

	var addr btcutil.Address
	switch template {
	case "pkh":
		addr, err = btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(pub), params,
		)

	case "wpkh":
		addr, err = btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pub), params,
		)

	case "sh(wpkh)":
		var wpkh *btcutil.AddressWitnessPubKeyHash
		wpkh, err = btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pub), params,
		)
		if err != nil {
			break
		}

		var script []byte
		script, err = txscript.PayToAddrScript(wpkh)
		if err != nil {
			break
		}
		addr, err = btcutil.NewAddressScriptHash(script, params)

	case "wsh(pk)":
		addr, err = witnessScriptAddr(pub, params)

	case "sh(wsh(pk))":
		var wsh *btcutil.AddressWitnessScriptHash
		wsh, err = witnessScriptAddr(pub, params)
		if err != nil {
			break
		}

		var script []byte
		script, err = txscript.PayToAddrScript(wsh)
		if err != nil {
			break
		}
		addr, err = btcutil.NewAddressScriptHash(script, params)

	default:
		return nil, fmt.Errorf("%w: no address template for %q",
			ErrInvalidDescriptor, d.raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	return &Candidate{
		Descriptor: d.raw,
		Address:    addr,
		template:   template,
		priv:       priv,
		compressed: compressed,
	}, nil
}

// template collapses the descriptor tree to its wrapper chain, e.g.
// "sh(wsh(pk))" for sh(wsh(pk(KEY))).
func (d *Descriptor) template() string {
	var parts []string
	for node := d.root; node != nil && node.fn != ""; {
		parts = append(parts, node.fn)
		if len(node.args) != 1 {
			return ""
		}
		node = node.args[0]
	}

	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + "(" + parts[1] + ")"
	case 3:
		return parts[0] + "(" + parts[1] + "(" + parts[2] + "))"
	default:
		return ""
	}
}

// privateKey extracts the private key of the descriptor's single key
// expression, with the derivation path applied. Key origin info is
// tolerated, wildcards are not: a ranged descriptor has no single address
// to scan.
func (d *Descriptor) privateKey() (*btcec.PrivateKey, bool, error) {
	node := d.root
	for node != nil && node.fn != "" {
		if len(node.args) != 1 {
			return nil, false, fmt.Errorf("%w: %q does not "+
				"describe a single key", ErrInvalidDescriptor,
				d.raw)
		}
		node = node.args[0]
	}
	if node == nil {
		return nil, false, fmt.Errorf("%w: %q carries no key material",
			ErrInvalidDescriptor, d.raw)
	}

	material := node.key

	// Strip the key origin, e.g. [d34db33f/84h/0h/0h].
	if strings.HasPrefix(material, "[") {
		end := strings.Index(material, "]")
		if end < 0 {
			return nil, false, fmt.Errorf("%w: unterminated key "+
				"origin in %q", ErrInvalidDescriptor, d.raw)
		}
		material = material[end+1:]
	}

	if strings.Contains(material, "*") {
		return nil, false, fmt.Errorf("%w: ranged descriptor %q has "+
			"no single address", ErrInvalidDescriptor, d.raw)
	}

	// A derivation path may trail an extended key. It is split off
	// before decoding and applied afterwards.
	keyPart, path := material, ""
	if idx := strings.Index(material, "/"); idx >= 0 {
		keyPart, path = material[:idx], material[idx+1:]
	}

	key, err := Parse(keyPart)
	if err != nil {
		return nil, false, fmt.Errorf("%w: invalid key material in "+
			"%q: %v", ErrInvalidDescriptor, d.raw, err)
	}

	switch key.kind {
	case kindWIF:
		if path != "" {
			return nil, false, fmt.Errorf("%w: a WIF key cannot "+
				"carry a derivation path", ErrInvalidDescriptor)
		}

		return key.wif.PrivKey, key.wif.CompressPubKey, nil

	case kindExtended:
		xprv := key.xprv
		if path != "" {
			xprv, err = derivePath(xprv, path)
			if err != nil {
				return nil, false, err
			}
		}

		priv, err := xprv.ECPrivKey()
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidKey,
				err)
		}

		return priv, true, nil

	default:
		return nil, false, fmt.Errorf("%w: nested descriptors are "+
			"not valid key material", ErrInvalidDescriptor)
	}
}

// derivePath applies a slash separated derivation path to an extended key.
// Both the h and ' hardened markers are understood.
func derivePath(key *hdkeychain.ExtendedKey,
	path string) (*hdkeychain.ExtendedKey, error) {

	for _, step := range strings.Split(path, "/") {
		hardened := false
		if strings.HasSuffix(step, "h") || strings.HasSuffix(step, "'") {
			hardened = true
			step = step[:len(step)-1]
		}

		index, err := strconv.ParseUint(step, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid derivation step "+
				"%q", ErrInvalidDescriptor, step)
		}
		if hardened {
			index += hdkeychain.HardenedKeyStart
		}

		key, err = key.Derive(uint32(index))
		if err != nil {
			return nil, fmt.Errorf("%w: derivation failed: %v",
				ErrInvalidKey, err)
		}
	}

	return key, nil
}
