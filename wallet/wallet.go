// Package wallet ties the destination resolver, the LNURL client and the
// chain backends together behind the handful of operations the GUI layer
// calls: send, request, sweep and channel management.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnwire"

	"github.com/ulrichard/utwallet/esplora"
	"github.com/ulrichard/utwallet/lnurl"
	"github.com/ulrichard/utwallet/resolver"
	"github.com/ulrichard/utwallet/sweepkey"
)

var (
	// ErrAmountRequired is returned when an operation needs an explicit
	// amount and neither the caller nor the resolved format supplied
	// one.
	ErrAmountRequired = errors.New("an amount is required")

)

// Config groups the backends of a Wallet.
type Config struct {
	// Resolver classifies recipient strings. Required.
	Resolver *resolver.Resolver

	// Lnurl drives the withdraw callback of LNURL withdraw targets.
	// Required for withdraw support.
	Lnurl *lnurl.Client

	// Chain is the Esplora backend used for sweep scans.
	Chain *esplora.Client

	// Ledger is the on-chain wallet backend.
	Ledger Ledger

	// Node is the Lightning backend.
	Node LightningNode

	// Rates fetches the fiat exchange rate shown alongside balances.
	// Optional, ExchangeRate fails without it.
	Rates *RateClient
}

// Wallet exposes the user facing operations. All methods are safe for
// concurrent use as long as the configured backends are.
type Wallet struct {
	cfg *Config

	sweeper *sweepkey.Sweeper
}

// New creates a Wallet from its backends.
func New(cfg *Config) (*Wallet, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("a resolver is required")
	}
	if cfg.Chain == nil {
		cfg.Chain = esplora.NewClient(esplora.DefaultConfig())
	}
	if cfg.Lnurl == nil {
		cfg.Lnurl = lnurl.NewClient(lnurl.DefaultConfig())
	}

	return &Wallet{
		cfg:     cfg,
		sweeper: sweepkey.NewSweeper(cfg.Chain),
	}, nil
}

// Resolve classifies a recipient string without acting on it. This is what
// the GUI calls when a QR code is scanned, to fill in the send form.
func (w *Wallet) Resolve(ctx context.Context, recipient, amountText,
	descriptionText string) (*resolver.ResolvedPayment, error) {

	return w.cfg.Resolver.Resolve(
		ctx, recipient, amountText, descriptionText,
	)
}

// Send resolves the recipient and executes the payment it describes:
// on-chain transactions for addresses, Lightning payments for invoices and
// the full withdraw round trip for LNURL withdraw endpoints.
func (w *Wallet) Send(ctx context.Context, recipient, amountText,
	descriptionText string) error {

	payment, err := w.cfg.Resolver.Resolve(
		ctx, recipient, amountText, descriptionText,
	)
	if err != nil {
		return err
	}

	switch target := payment.Target.(type) {
	case *resolver.OnChain:
		return w.sendOnChain(ctx, target, payment)

	case *resolver.LightningInvoice:
		return w.payInvoice(ctx, target, payment)

	case *resolver.LightningOffer:
		// The resolver rejects offers before producing this variant.
		return fmt.Errorf("offers cannot be paid: %s", target)

	case *resolver.LnurlWithdraw:
		return w.withdraw(ctx, target, payment)

	case *resolver.SweepKey:
		return w.sweepInto(ctx, target)

	default:
		return fmt.Errorf("unhandled payment target %T", target)
	}
}

// sendOnChain pays an address from the on-chain ledger.
func (w *Wallet) sendOnChain(ctx context.Context, target *resolver.OnChain,
	payment *resolver.ResolvedPayment) error {

	if payment.Satoshis == nil || *payment.Satoshis == 0 {
		return fmt.Errorf("%w for address %s", ErrAmountRequired,
			target)
	}

	txid, err := w.cfg.Ledger.Send(
		ctx, target.Address, btcutil.Amount(*payment.Satoshis),
	)
	if err != nil {
		return err
	}

	log.Infof("Sent %d sat to %s in %v", *payment.Satoshis, target, txid)

	return nil
}

// payInvoice pays a BOLT11 invoice through the Lightning backend.
func (w *Wallet) payInvoice(ctx context.Context,
	target *resolver.LightningInvoice,
	payment *resolver.ResolvedPayment) error {

	// Only an amountless invoice takes an amount at pay time.
	var amount lnwire.MilliSatoshi
	if target.Invoice.MilliSat == nil {
		if payment.Satoshis == nil || *payment.Satoshis == 0 {
			return fmt.Errorf("%w for amountless invoice %s",
				ErrAmountRequired, target)
		}
		amount = lnwire.NewMSatFromSatoshis(
			btcutil.Amount(*payment.Satoshis),
		)
	}

	return w.cfg.Node.PayInvoice(ctx, target.String(), amount)
}

// withdraw completes a resolved withdraw: create a receiving invoice over
// the resolved amount, then trigger the service's k1 callback with it.
func (w *Wallet) withdraw(ctx context.Context,
	target *resolver.LnurlWithdraw,
	payment *resolver.ResolvedPayment) error {

	if payment.Satoshis == nil || *payment.Satoshis == 0 {
		return fmt.Errorf("%w to withdraw via %s", ErrAmountRequired,
			target.Callback)
	}
	amount := lnwire.NewMSatFromSatoshis(
		btcutil.Amount(*payment.Satoshis),
	)

	invoice, err := w.cfg.Node.CreateInvoice(
		ctx, amount, payment.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create the receiving invoice: %w",
			err)
	}

	return w.cfg.Lnurl.Withdraw(
		ctx, target.Callback, target.K1, invoice, amount,
	)
}

// sweepInto drains the balances hiding behind loose key material into a
// fresh address of the wallet's own ledger.
func (w *Wallet) sweepInto(ctx context.Context,
	target *resolver.SweepKey) error {

	destination, err := w.cfg.Ledger.NewAddress(ctx)
	if err != nil {
		return fmt.Errorf("failed to get a sweep address: %w", err)
	}

	results, err := w.sweeper.Sweep(ctx, target.Key, destination)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		log.Info("No balances found to sweep")
		return nil
	}

	var total btcutil.Amount
	for _, result := range results {
		total += result.Amount
	}
	log.Infof("Swept %v into %v with %d transactions", total,
		destination, len(results))

	return nil
}

// Request creates an invoice over the given decimal BTC amount, for the
// receiving side of the wallet.
func (w *Wallet) Request(ctx context.Context, amountText,
	descriptionText string) (string, error) {

	sats, err := resolver.ParseSatoshis(amountText)
	if err != nil {
		return "", err
	}

	return w.cfg.Node.CreateInvoice(
		ctx,
		lnwire.NewMSatFromSatoshis(btcutil.Amount(sats)),
		descriptionText,
	)
}

// NewAddress hands out a fresh on-chain receiving address.
func (w *Wallet) NewAddress(ctx context.Context) (btcutil.Address, error) {
	return w.cfg.Ledger.NewAddress(ctx)
}

// ChannelOpen opens a channel funded with the given decimal BTC amount. The
// node argument is an optional peer override: anything that does not parse
// as pubkey@host:port opens with the backend's default peer.
func (w *Wallet) ChannelOpen(ctx context.Context, node,
	amountText string) error {

	if !resolver.IsNodeID(node) {
		node = ""
	}

	sats, err := resolver.ParseSatoshis(amountText)
	if err != nil {
		return err
	}
	if sats == 0 {
		return fmt.Errorf("%w to fund the channel", ErrAmountRequired)
	}

	if node == "" {
		log.Infof("Opening a %d sat channel to the default peer", sats)
	} else {
		log.Infof("Opening a %d sat channel to %s", sats, node)
	}

	return w.cfg.Node.OpenChannel(ctx, node, btcutil.Amount(sats))
}

// ChannelClose closes the channel with the given channel point.
func (w *Wallet) ChannelClose(ctx context.Context, channelPoint string,
	force bool) error {

	return w.cfg.Node.CloseChannel(ctx, channelPoint, force)
}

// SweepScan parses loose key material and scans its candidate descriptors
// for funds. It only reports what it finds, moving the funds is a separate
// decision.
func (w *Wallet) SweepScan(ctx context.Context,
	material string) ([]*sweepkey.CandidateBalance, error) {

	key, err := sweepkey.Parse(material)
	if err != nil {
		return nil, err
	}

	return w.sweeper.Scan(ctx, key)
}

// ExchangeRate fetches the current fiat price of one BTC through the
// configured rate backend.
func (w *Wallet) ExchangeRate(ctx context.Context) (float64, error) {
	if w.cfg.Rates == nil {
		return 0, ErrNoRateBackend
	}

	rate, err := w.cfg.Rates.BTCPrice(ctx)
	if err != nil {
		return 0, err
	}

	log.Infof("1 BTC = %.2f %s", rate, w.cfg.Rates.cfg.Currency)

	return rate, nil
}

// Balances reports the on-chain and Lightning balances side by side.
func (w *Wallet) Balances(ctx context.Context) (btcutil.Amount,
	lnwire.MilliSatoshi, error) {

	onChain, err := w.cfg.Ledger.Balance(ctx)
	if err != nil {
		return 0, 0, err
	}

	offChain, err := w.cfg.Node.Balance(ctx)
	if err != nil {
		return 0, 0, err
	}

	return onChain, offChain, nil
}
