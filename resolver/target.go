package resolver

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"

	"github.com/ulrichard/utwallet/sweepkey"
)

// PaymentTarget is the destination a user supplied string resolves to.
// Exactly one concrete variant backs any given value, and each variant only
// carries the fields that belong to it. The interface is closed so that
// consumers can type switch exhaustively.
type PaymentTarget interface {
	// String returns the canonical wire form of the target. For formats
	// that arrived as a string (addresses, invoices) this is the exact
	// input byte-for-byte.
	String() string

	paymentTarget()
}

// OnChain is a validated mainnet bitcoin address.
type OnChain struct {
	// Address is the decoded address.
	Address btcutil.Address

	// raw is the address exactly as the user supplied it.
	raw string
}

// String returns the address as it was supplied.
func (o *OnChain) String() string { return o.raw }

func (o *OnChain) paymentTarget() {}

// LightningInvoice is a decoded, signature checked BOLT11 invoice.
type LightningInvoice struct {
	// Invoice is the decoded invoice.
	Invoice *zpay32.Invoice

	// raw is the bech32 serialization the invoice was decoded from, with
	// any lightning: scheme prefix removed.
	raw string
}

// String returns the bech32 serialization of the invoice.
func (l *LightningInvoice) String() string { return l.raw }

func (l *LightningInvoice) paymentTarget() {}

// LightningOffer is a BOLT12 offer. Offers are recognized by the classifier
// but paying them is not implemented yet, so resolution never produces this
// variant today. It exists so that consumers already handle it exhaustively
// once support lands.
type LightningOffer struct {
	raw string
}

// String returns the bech32 serialization of the offer.
func (l *LightningOffer) String() string { return l.raw }

func (l *LightningOffer) paymentTarget() {}

// LnurlWithdraw is a resolved LNURL withdraw endpoint. Resolution stops
// short of the callback: the caller first needs to obtain a receiving
// invoice, then triggers the k1 callback as a separate operation.
type LnurlWithdraw struct {
	// Callback is the URL the k1 challenge response is sent to.
	Callback string

	// K1 is the challenge token echoed back in the callback.
	K1 string

	// MinWithdrawable and MaxWithdrawable bound the amount the service
	// will pay out.
	MinWithdrawable lnwire.MilliSatoshi
	MaxWithdrawable lnwire.MilliSatoshi
}

// String returns the withdraw callback URL.
func (l *LnurlWithdraw) String() string { return l.Callback }

func (l *LnurlWithdraw) paymentTarget() {}

// SweepKey is key material (WIF private key, extended private key or output
// descriptor) intended for a balance sweep rather than a payment.
type SweepKey struct {
	// Key is the parsed key material.
	Key *sweepkey.Key
}

// String returns the key material in its normalized serialization.
func (s *SweepKey) String() string { return s.Key.String() }

func (s *SweepKey) paymentTarget() {}

// ResolvedPayment is the uniform result of resolving a user supplied string.
// It is constructed fresh on every resolution call and never mutated
// afterwards.
type ResolvedPayment struct {
	// Target is the destination the input classified as.
	Target PaymentTarget

	// Satoshis is the payment amount in whole satoshis. Amounts from
	// millisatoshi precision sources are truncated, never rounded. Nil
	// when neither the matched format nor the caller supplied an amount.
	Satoshis *uint64

	// Description is the human readable payment description. An embedded
	// description (invoice description, BIP21 label) takes precedence
	// over the caller supplied one.
	Description string
}

// DisplayCSV renders the resolution result as the semicolon separated
// "<target>;<amount>;<description>" triple consumed by the GUI layer. The
// amount is formatted as a decimal BTC value and left empty when absent.
func (p *ResolvedPayment) DisplayCSV() string {
	var amount string
	if p.Satoshis != nil {
		amount = FormatBitcoins(*p.Satoshis)
	}

	return p.Target.String() + ";" + amount + ";" + p.Description
}
