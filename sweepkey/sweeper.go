package sweepkey

import (
	"context"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ulrichard/utwallet/esplora"
)

const (
	// sweepConfTarget is the confirmation target the drain fee rate is
	// estimated for.
	sweepConfTarget = "6"

	// fallbackFeeRate is used when the backend offers no estimate for the
	// target, in sat/vB.
	fallbackFeeRate = 2.0

	// dustLimit is the smallest output a drain transaction will create.
	dustLimit = btcutil.Amount(546)
)

// CandidateBalance is the scan result of a single candidate descriptor.
type CandidateBalance struct {
	// Candidate is the descriptor and address that were scanned.
	Candidate *Candidate

	// Confirmed is the confirmed balance sitting on the address.
	Confirmed btcutil.Amount

	// Unconfirmed is the balance of unconfirmed outputs.
	Unconfirmed btcutil.Amount

	// UTXOCount is the number of unspent outputs found.
	UTXOCount int
}

// Total returns the combined confirmed and unconfirmed balance.
func (b *CandidateBalance) Total() btcutil.Amount {
	return b.Confirmed + b.Unconfirmed
}

// Sweeper scans the candidate descriptors of a key for funds against an
// Esplora backend.
type Sweeper struct {
	chain *esplora.Client
}

// NewSweeper creates a sweeper backed by the given Esplora client.
func NewSweeper(chain *esplora.Client) *Sweeper {
	return &Sweeper{chain: chain}
}

// Scan expands the key into its candidate descriptors and queries the
// unspent outputs of each. Candidates are queried one after the other, the
// backends rate limit aggressive callers.
func (s *Sweeper) Scan(ctx context.Context, key *Key) ([]*CandidateBalance,
	error) {

	candidates, err := key.Candidates()
	if err != nil {
		return nil, err
	}

	balances := make([]*CandidateBalance, 0, len(candidates))
	for _, candidate := range candidates {
		balance, err := s.scanCandidate(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w",
				candidate.Descriptor, err)
		}

		log.Debugf("Scanned %s: %v confirmed, %v unconfirmed in "+
			"%d utxos", candidate.Descriptor, balance.Confirmed,
			balance.Unconfirmed, balance.UTXOCount)

		balances = append(balances, balance)
	}

	return balances, nil
}

// SweepResult reports a drained candidate.
type SweepResult struct {
	// Candidate is the descriptor the funds were found under.
	Candidate *Candidate

	// Amount is the swept value net of the transaction fee.
	Amount btcutil.Amount

	// TxID is the hash of the broadcast drain transaction.
	TxID *chainhash.Hash
}

// Sweep expands the key into its candidate descriptors and, for every
// candidate holding unspent outputs, drains them into the destination
// address with a single signed transaction. Candidates whose balance does
// not cover the fee plus dust are skipped. An empty result slice means no
// balances were found to sweep.
func (s *Sweeper) Sweep(ctx context.Context, key *Key,
	destination btcutil.Address) ([]*SweepResult, error) {

	candidates, err := key.Candidates()
	if err != nil {
		return nil, err
	}

	feeRate, err := s.feeRate(ctx)
	if err != nil {
		return nil, err
	}

	destScript, err := txscript.PayToAddrScript(destination)
	if err != nil {
		return nil, fmt.Errorf("invalid destination address: %w", err)
	}

	var results []*SweepResult
	for _, candidate := range candidates {
		utxos, err := s.chain.GetAddressUTXOs(
			ctx, candidate.Address.EncodeAddress(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w",
				candidate.Descriptor, err)
		}
		if len(utxos) == 0 {
			continue
		}

		result, err := s.drainCandidate(
			ctx, candidate, utxos, feeRate, destScript,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to sweep %s: %w",
				candidate.Descriptor, err)
		}
		if result != nil {
			results = append(results, result)
		}
	}

	return results, nil
}

// feeRate asks the backend for the sweep fee rate, falling back to a
// conservative default when no estimate is offered.
func (s *Sweeper) feeRate(ctx context.Context) (float64, error) {
	estimates, err := s.chain.GetFeeEstimates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch fee estimates: %w", err)
	}

	rate := estimates[sweepConfTarget]
	if rate <= 0 {
		log.Warnf("No fee estimate for target %s, using %v sat/vB",
			sweepConfTarget, fallbackFeeRate)
		rate = fallbackFeeRate
	}

	return rate, nil
}

// drainCandidate builds, signs and broadcasts a transaction spending all
// unspent outputs of the candidate into destScript. Returns nil when the
// balance does not cover fee plus dust.
func (s *Sweeper) drainCandidate(ctx context.Context, candidate *Candidate,
	utxos []*esplora.UTXO, feeRate float64,
	destScript []byte) (*SweepResult, error) {

	prevScript, err := txscript.PayToAddrScript(candidate.Address)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	fetcher := txscript.NewMultiPrevOutFetcher(nil)

	var total btcutil.Amount
	for _, utxo := range utxos {
		hash, err := chainhash.NewHashFromStr(utxo.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid utxo txid %s: %w",
				utxo.TxID, err)
		}

		op := wire.NewOutPoint(hash, utxo.Vout)
		tx.AddTxIn(wire.NewTxIn(op, nil, nil))
		fetcher.AddPrevOut(*op, &wire.TxOut{
			Value:    utxo.Value,
			PkScript: prevScript,
		})

		total += btcutil.Amount(utxo.Value)
	}

	fee := drainFee(candidate, len(utxos), feeRate)
	if total <= fee+dustLimit {
		log.Warnf("Balance %v on %s does not cover the %v fee, "+
			"skipping", total, candidate.Descriptor, fee)
		return nil, nil
	}

	tx.AddTxOut(wire.NewTxOut(int64(total-fee), destScript))

	err = signDrainInputs(tx, fetcher, candidate, prevScript)
	if err != nil {
		return nil, err
	}

	txid, err := s.chain.BroadcastTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	log.Infof("Swept %v from %s in %v", total-fee,
		candidate.Descriptor, txid)

	return &SweepResult{
		Candidate: candidate,
		Amount:    total - fee,
		TxID:      txid,
	}, nil
}

// signDrainInputs signs every input of a drain transaction according to the
// candidate's script template.
func signDrainInputs(tx *wire.MsgTx, fetcher txscript.PrevOutputFetcher,
	candidate *Candidate, prevScript []byte) error {

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	pub := serializePubKey(candidate.priv.PubKey(), candidate.compressed)

	for i, txIn := range tx.TxIn {
		prevOut := fetcher.FetchPrevOutput(txIn.PreviousOutPoint)

		switch candidate.template {
		case "pkh":
			sigScript, err := txscript.SignatureScript(
				tx, i, prevScript, txscript.SigHashAll,
				candidate.priv, candidate.compressed,
			)
			if err != nil {
				return err
			}
			txIn.SignatureScript = sigScript

		case "wpkh", "sh(wpkh)":
			// The sighash commits to the implied p2wpkh script,
			// not the p2sh wrapper.
			wpkh, err := btcutil.NewAddressWitnessPubKeyHash(
				btcutil.Hash160(pub),
				&chaincfg.MainNetParams,
			)
			if err != nil {
				return err
			}
			witnessProgram, err := txscript.PayToAddrScript(wpkh)
			if err != nil {
				return err
			}

			witness, err := txscript.WitnessSignature(
				tx, sigHashes, i, prevOut.Value,
				witnessProgram, txscript.SigHashAll,
				candidate.priv, candidate.compressed,
			)
			if err != nil {
				return err
			}
			txIn.Witness = witness

			if candidate.template == "sh(wpkh)" {
				txIn.SignatureScript, err = redeemPush(
					witnessProgram,
				)
				if err != nil {
					return err
				}
			}

		case "wsh(pk)", "sh(wsh(pk))":
			witnessScript, err := txscript.NewScriptBuilder().
				AddData(pub).
				AddOp(txscript.OP_CHECKSIG).
				Script()
			if err != nil {
				return err
			}

			sig, err := txscript.RawTxInWitnessSignature(
				tx, sigHashes, i, prevOut.Value,
				witnessScript, txscript.SigHashAll,
				candidate.priv,
			)
			if err != nil {
				return err
			}
			txIn.Witness = wire.TxWitness{sig, witnessScript}

			if candidate.template == "sh(wsh(pk))" {
				wsh, err := witnessScriptAddr(
					pub, &chaincfg.MainNetParams,
				)
				if err != nil {
					return err
				}
				program, err := txscript.PayToAddrScript(wsh)
				if err != nil {
					return err
				}
				txIn.SignatureScript, err = redeemPush(program)
				if err != nil {
					return err
				}
			}

		default:
			return fmt.Errorf("%w: no signer for template %q",
				ErrInvalidDescriptor, candidate.template)
		}
	}

	return nil
}

// redeemPush wraps a redeem script in the single push scriptSig a nested
// segwit spend carries.
func redeemPush(redeem []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().AddData(redeem).Script()
}

// drainFee estimates the absolute fee of a drain transaction with the given
// number of inputs of the candidate's template and a single output.
func drainFee(candidate *Candidate, inputs int,
	feeRate float64) btcutil.Amount {

	var inputSize int
	switch candidate.template {
	case "wpkh":
		inputSize = 68
	case "sh(wpkh)":
		inputSize = 91
	case "wsh(pk)":
		inputSize = 79
	case "sh(wsh(pk))":
		inputSize = 113
	default:
		// Legacy pkh, the largest common case.
		inputSize = 149
		if !candidate.compressed {
			inputSize = 181
		}
	}

	// 11 vbytes of transaction overhead plus one p2wpkh/p2sh sized
	// output.
	vsize := 11 + 34 + inputs*inputSize

	return btcutil.Amount(math.Ceil(feeRate * float64(vsize)))
}

// scanCandidate sums the unspent outputs of a single candidate address.
func (s *Sweeper) scanCandidate(ctx context.Context,
	candidate *Candidate) (*CandidateBalance, error) {

	utxos, err := s.chain.GetAddressUTXOs(
		ctx, candidate.Address.EncodeAddress(),
	)
	if err != nil {
		return nil, err
	}

	balance := &CandidateBalance{
		Candidate: candidate,
		UTXOCount: len(utxos),
	}
	for _, utxo := range utxos {
		if utxo.Status.Confirmed {
			balance.Confirmed += btcutil.Amount(utxo.Value)
		} else {
			balance.Unconfirmed += btcutil.Amount(utxo.Value)
		}
	}

	return balance, nil
}
