// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 The Lightning Network Developers

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/btcsuite/btclog/v2"
	"github.com/urfave/cli"

	"github.com/ulrichard/utwallet/esplora"
	"github.com/ulrichard/utwallet/lnurl"
	"github.com/ulrichard/utwallet/resolver"
	"github.com/ulrichard/utwallet/sweepkey"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[utwallet] %v\n", err)
	os.Exit(1)
}

// setupLogging fans one stderr logger out to all package subsystems.
func setupLogging(debug bool) {
	handler := btclog.NewDefaultHandler(os.Stderr)
	if debug {
		handler.SetLevel(btclog.LevelDebug)
	} else {
		handler.SetLevel(btclog.LevelInfo)
	}

	logger := btclog.NewSLogger(handler)

	resolver.UseLogger(logger.SubSystem(resolver.Subsystem))
	lnurl.UseLogger(logger.SubSystem(lnurl.Subsystem))
	sweepkey.UseLogger(logger.SubSystem(sweepkey.Subsystem))
	esplora.UseLogger(logger.SubSystem(esplora.Subsystem))
}

func main() {
	app := cli.NewApp()
	app.Name = "utwallet"
	app.Usage = "resolve and inspect bitcoin payment destinations"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
		cli.StringFlag{
			Name:  "esplora",
			Usage: "base URL of the Esplora API",
			Value: esplora.DefaultURL,
		},
	}
	app.Before = func(ctx *cli.Context) error {
		setupLogging(ctx.GlobalBool("debug"))
		return nil
	}
	app.Commands = []cli.Command{
		decodeCommand,
		sweepScanCommand,
		historyCommand,
		feesCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

var decodeCommand = cli.Command{
	Name:      "decode",
	Usage:     "Classify a payment destination.",
	ArgsUsage: "recipient [amount] [description]",
	Description: `
	Classify a scanned or pasted string into a payment destination:
	an on-chain address, a BIP21 URI, a BOLT11 invoice, an LNURL in any
	of its notations, a lightning address or sweepable key material.

	URL based formats are resolved over the network down to a payable
	invoice. The optional amount is a decimal BTC value used when the
	destination does not dictate one.

	The result is printed as the "target;amount;description" triple.`,
	Action: decode,
}

func decode(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return cli.ShowCommandHelp(ctx, "decode")
	}

	args := ctx.Args()
	recipient := args.Get(0)
	amount := args.Get(1)
	description := args.Get(2)

	r := resolver.New(nil)
	payment, err := r.Resolve(
		context.Background(), recipient, amount, description,
	)
	if err != nil {
		return err
	}

	fmt.Println(payment.DisplayCSV())

	return nil
}

var sweepScanCommand = cli.Command{
	Name:      "sweepscan",
	Usage:     "Scan key material for sweepable funds.",
	ArgsUsage: "key",
	Description: `
	Expand a WIF private key, an extended private key or an output
	descriptor into its candidate descriptors and look up the balance
	of each against the Esplora backend.`,
	Action: sweepScan,
}

func sweepScan(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "sweepscan")
	}

	key, err := sweepkey.Parse(ctx.Args().First())
	if err != nil {
		return err
	}

	chain := esplora.NewClient(&esplora.Config{
		URL: ctx.GlobalString("esplora"),
	})

	balances, err := sweepkey.NewSweeper(chain).Scan(
		context.Background(), key,
	)
	if err != nil {
		return err
	}

	for _, balance := range balances {
		fmt.Printf("%-70s %s  %v confirmed, %v unconfirmed\n",
			balance.Candidate.Descriptor,
			balance.Candidate.Address.EncodeAddress(),
			balance.Confirmed, balance.Unconfirmed)
	}

	return nil
}

var historyCommand = cli.Command{
	Name:      "history",
	Usage:     "List the recent transactions of an address.",
	ArgsUsage: "address",
	Description: `
	Look up the most recent transactions touching an address on the
	Esplora backend, newest first.`,
	Action: history,
}

func history(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "history")
	}

	chain := esplora.NewClient(&esplora.Config{
		URL: ctx.GlobalString("esplora"),
	})

	txs, err := chain.GetAddressTxs(
		context.Background(), ctx.Args().First(),
	)
	if err != nil {
		return err
	}

	for _, tx := range txs {
		status := "unconfirmed"
		if tx.Status.Confirmed {
			status = fmt.Sprintf("block %d", tx.Status.BlockHeight)
		}
		fmt.Printf("%s  fee %d sat  %s\n", tx.TxID, tx.Fee, status)
	}

	return nil
}

var feesCommand = cli.Command{
	Name:  "fees",
	Usage: "Show the current fee estimates of the Esplora backend.",
	Action: func(ctx *cli.Context) error {
		chain := esplora.NewClient(&esplora.Config{
			URL: ctx.GlobalString("esplora"),
		})

		estimates, err := chain.GetFeeEstimates(context.Background())
		if err != nil {
			return err
		}

		for _, target := range []string{"1", "3", "6", "144"} {
			if rate, ok := estimates[target]; ok {
				fmt.Printf("%4s blocks: %6.2f sat/vB\n",
					target, rate)
			}
		}

		return nil
	},
}
