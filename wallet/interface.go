package wallet

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwire"
)

// Ledger is the on-chain wallet backend: whatever holds the keys and builds
// the transactions.
type Ledger interface {
	// NewAddress hands out a fresh receiving address.
	NewAddress(ctx context.Context) (btcutil.Address, error)

	// Send pays amount to addr and returns the txid of the broadcast
	// transaction.
	Send(ctx context.Context, addr btcutil.Address,
		amount btcutil.Amount) (*chainhash.Hash, error)

	// Balance returns the confirmed on-chain balance.
	Balance(ctx context.Context) (btcutil.Amount, error)
}

// LightningNode is the Lightning backend the wallet pays and receives
// through.
type LightningNode interface {
	// CreateInvoice creates a BOLT11 invoice over the given amount and
	// returns its bech32 serialization.
	CreateInvoice(ctx context.Context, amount lnwire.MilliSatoshi,
		memo string) (string, error)

	// PayInvoice pays a BOLT11 invoice. For an amountless invoice the
	// amount argument determines what is paid; for an invoice carrying
	// an amount it must be zero.
	PayInvoice(ctx context.Context, invoice string,
		amount lnwire.MilliSatoshi) error

	// OpenChannel opens a channel of the given capacity. A non-empty
	// node identifies the peer as pubkey@host:port; an empty node leaves
	// the peer choice to the backend.
	OpenChannel(ctx context.Context, node string,
		capacity btcutil.Amount) error

	// CloseChannel closes the channel with the given channel point.
	CloseChannel(ctx context.Context, channelPoint string,
		force bool) error

	// Balance returns the local balance across all channels.
	Balance(ctx context.Context) (lnwire.MilliSatoshi, error)
}
