package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbd888/txsentinel/internal/chain"
	"github.com/mbd888/txsentinel/internal/config"
	"github.com/mbd888/txsentinel/internal/enrich"
	"github.com/mbd888/txsentinel/internal/explainer"
	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/txn"
	"github.com/mbd888/txsentinel/internal/validation"
)

// scanner reads the recent window for an address and assembles it.
type scanner interface {
	Scan(ctx context.Context, address string) (enrich.Result, error)
}

// scannerFactory builds a scanner and its cleanup func.
type scannerFactory func(ctx context.Context, explain bool) (scanner, func(), error)

func newScanCmd(open scannerFactory) *cobra.Command {
	var explain bool
	cmd := &cobra.Command{
		Use:   "scan <address>",
		Short: "Score the latest block's transactions for an address",
		Long: "Reads the latest block over RPC_URL, keeps the transactions sent from or to\n" +
			"the address, and scores them. With --explain each one is also explained by\n" +
			"Gemini (GEMINI_API_KEY must be set).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := validation.SanitizeAddress(args[0])
			if !validation.IsValidEthAddress(address) {
				return fmt.Errorf("invalid address %q", args[0])
			}

			s, closeFn, err := open(cmd.Context(), explain)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := s.Scan(cmd.Context(), address)
			if err != nil {
				return err
			}

			p := newPrinter(cmd)
			if p.json {
				return p.writeJSON(res)
			}
			p.batch(address, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "explain every transaction with the AI model")
	return cmd
}

// pipeline is the scanner used outside tests.
type pipeline struct {
	source interface {
		Fetch(context.Context, string) ([]txn.RawTransaction, error)
	}
	assembler *enrich.Assembler
	explain   bool
}

func (p *pipeline) Scan(ctx context.Context, address string) (enrich.Result, error) {
	raws, err := p.source.Fetch(ctx, address)
	if err != nil {
		return enrich.Result{}, err
	}
	// An empty window stays empty; demo data is a dashboard concern.
	if !p.explain || len(raws) == 0 {
		return p.assembler.Score(raws), nil
	}
	return p.assembler.Enrich(ctx, raws)
}

func defaultScanner(ctx context.Context, explain bool) (scanner, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if explain && !cfg.AIEnabled() {
		return nil, nil, errors.New("--explain needs GEMINI_API_KEY")
	}

	// Keep the terminal quiet unless LOG_LEVEL asks for more.
	level := cfg.LogLevel
	if level == config.DefaultLogLevel {
		level = "warn"
	}
	logger := logging.NewWithWriter(os.Stderr, level, cfg.LogFormat)

	src, err := chain.New(chain.Config{
		RPCURL:          cfg.RPCURL,
		ChainID:         cfg.ChainID,
		MaxTransactions: cfg.MaxTxs,
		PlaceholderGas:  cfg.PlaceholderGas,
		FetchReceipts:   cfg.FetchReceipts,
		Timeout:         cfg.RPCTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	var model explainer.Explainer = explainer.Disabled{}
	if explain {
		g, err := explainer.NewGemini(ctx, explainer.GeminiConfig{
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.GeminiModel,
			TTSModel: cfg.GeminiTTSModel,
			Voice:    cfg.GeminiVoice,
		})
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		model = g
	}
	guarded := explainer.NewGuarded(model, logger, explainer.WithTimeout(cfg.AITimeout))

	p := &pipeline{
		source:    src,
		assembler: enrich.New(guarded, logger, enrich.WithWorkers(cfg.EnrichWorkers)),
		explain:   explain,
	}
	return p, src.Close, nil
}
