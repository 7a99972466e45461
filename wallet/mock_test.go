package wallet

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwire"
)

// mockLedger records the on-chain operations the wallet requested.
type mockLedger struct {
	sentAddr   btcutil.Address
	sentAmount btcutil.Amount

	addressRequests int

	balance btcutil.Amount
}

func (m *mockLedger) NewAddress(_ context.Context) (btcutil.Address, error) {
	m.addressRequests++

	return btcutil.DecodeAddress(
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
		&chaincfg.MainNetParams,
	)
}

func (m *mockLedger) Send(_ context.Context, addr btcutil.Address,
	amount btcutil.Amount) (*chainhash.Hash, error) {

	m.sentAddr = addr
	m.sentAmount = amount

	return &chainhash.Hash{}, nil
}

func (m *mockLedger) Balance(_ context.Context) (btcutil.Amount, error) {
	return m.balance, nil
}

// mockNode records the Lightning operations the wallet requested.
type mockNode struct {
	// invoiceToReturn is what CreateInvoice hands back.
	invoiceToReturn string

	createdAmount lnwire.MilliSatoshi
	createdMemo   string

	paidInvoice string
	paidAmount  lnwire.MilliSatoshi

	openedNode     string
	openedCapacity btcutil.Amount

	closedPoint string
	closedForce bool

	balance lnwire.MilliSatoshi
}

func (m *mockNode) CreateInvoice(_ context.Context,
	amount lnwire.MilliSatoshi, memo string) (string, error) {

	m.createdAmount = amount
	m.createdMemo = memo

	if m.invoiceToReturn == "" {
		return "", errors.New("no invoice configured")
	}

	return m.invoiceToReturn, nil
}

func (m *mockNode) PayInvoice(_ context.Context, invoice string,
	amount lnwire.MilliSatoshi) error {

	m.paidInvoice = invoice
	m.paidAmount = amount

	return nil
}

func (m *mockNode) OpenChannel(_ context.Context, node string,
	capacity btcutil.Amount) error {

	m.openedNode = node
	m.openedCapacity = capacity

	return nil
}

func (m *mockNode) CloseChannel(_ context.Context, channelPoint string,
	force bool) error {

	m.closedPoint = channelPoint
	m.closedForce = force

	return nil
}

func (m *mockNode) Balance(_ context.Context) (lnwire.MilliSatoshi, error) {
	return m.balance, nil
}
