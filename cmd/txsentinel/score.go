package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbd888/txsentinel/internal/enrich"
	"github.com/mbd888/txsentinel/internal/ether"
	"github.com/mbd888/txsentinel/internal/risk"
	"github.com/mbd888/txsentinel/internal/txn"
	"github.com/mbd888/txsentinel/internal/validation"
)

type scoreOptions struct {
	hash  string
	from  string
	to    string
	value string
	eth   string
	gas   string
}

func newScoreCmd() *cobra.Command {
	var opts scoreOptions
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a single transaction locally",
		Example: `  txsentinel score --from 0x742d... --to 0x1234... --eth 1.5
  txsentinel score --from 0x742d... --value 0 --gas 1500000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tx, err := opts.transaction()
			if err != nil {
				return err
			}
			assessment, category, err := risk.Analyze(tx)
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			rec := enrich.Record{ID: "cli", RawTransaction: tx, Risk: assessment, Context: category, Analysis: enrich.Pending()}
			if p.json {
				return p.writeJSON(rec)
			}
			p.record(1, rec)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.hash, "hash", "", "transaction hash (display only)")
	f.StringVar(&opts.from, "from", "", "sender address")
	f.StringVar(&opts.to, "to", "", "recipient address; omit for contract creation")
	f.StringVar(&opts.value, "value", "", "amount in wei")
	f.StringVar(&opts.eth, "eth", "", "amount in ETH, as an alternative to --value")
	f.StringVar(&opts.gas, "gas", "21000", "gas used")
	_ = cmd.MarkFlagRequired("from")
	cmd.MarkFlagsMutuallyExclusive("value", "eth")
	return cmd
}

func (o scoreOptions) transaction() (txn.RawTransaction, error) {
	tx := txn.RawTransaction{
		Hash:    strings.TrimSpace(o.hash),
		From:    validation.SanitizeAddress(o.from),
		Value:   strings.TrimSpace(o.value),
		GasUsed: strings.TrimSpace(o.gas),
	}
	if o.to != "" {
		tx.To = validation.SanitizeAddress(o.to)
	}

	var errs validation.ValidationErrors
	if o.eth != "" {
		errs = validation.Validate(validation.ValidEther("eth", o.eth))
		if len(errs) == 0 {
			wei, _ := ether.FromEther(o.eth)
			tx.Value = wei.String()
		}
	} else if tx.Value == "" {
		return tx, errors.New("one of --value or --eth is required")
	}

	errs = append(errs, validation.Validate(
		validation.ValidAddress("from", tx.From),
		validation.ValidAddress("to", tx.To),
	)...)
	if len(errs) > 0 {
		return tx, errs
	}
	return tx, nil
}
