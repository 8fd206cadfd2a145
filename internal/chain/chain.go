// Package chain reads recent wallet activity from an Ethereum JSON-RPC
// endpoint.
//
// Standard RPC has no "transactions by address" query, so Recent looks
// only at the latest block and keeps the transactions that touch the
// wallet. Gas is reported as a fixed placeholder unless receipt lookups
// are enabled.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/txsentinel/internal/metrics"
	"github.com/mbd888/txsentinel/internal/traces"
	"github.com/mbd888/txsentinel/internal/txn"
)

// ErrCollaborator is matched by every *FetchError.
var ErrCollaborator = errors.New("chain: collaborator failure")

// FetchError wraps an RPC failure with the operation that failed.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("chain: %s failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrCollaborator }

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
	Close()
}

// Config for the chain data source.
type Config struct {
	RPCURL          string
	ChainID         int64
	MaxTransactions int
	PlaceholderGas  string
	FetchReceipts   bool
	Timeout         time.Duration
}

// DefaultConfig returns the window and placeholder used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ChainID:         1,
		MaxTransactions: 10,
		PlaceholderGas:  "21000",
		Timeout:         15 * time.Second,
	}
}

// Option configures the source.
type Option func(*Source)

// WithClient sets a custom Ethereum client (useful for testing).
func WithClient(client EthClient) Option {
	return func(s *Source) {
		s.client = client
	}
}

// Source fetches transactions from the chain.
type Source struct {
	client EthClient
	cfg    Config
	signer types.Signer
	logger *slog.Logger
}

// New creates a Source, dialing cfg.RPCURL unless WithClient is given.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Source, error) {
	def := DefaultConfig()
	if cfg.MaxTransactions <= 0 {
		cfg.MaxTransactions = def.MaxTransactions
	}
	if cfg.PlaceholderGas == "" {
		cfg.PlaceholderGas = def.PlaceholderGas
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = def.ChainID
	}

	s := &Source{
		cfg:    cfg,
		signer: types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		if cfg.RPCURL == "" {
			return nil, &FetchError{Op: "dial", Err: errors.New("RPC URL required")}
		}
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, &FetchError{Op: "dial", Err: err}
		}
		s.client = client
	}
	return s, nil
}

// LatestBlockNumber returns the chain head.
func (s *Source) LatestBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	n, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, &FetchError{Op: "block_number", Err: err}
	}
	return n, nil
}

// BlockWithTransactions returns every transaction in block n whose sender
// can be recovered. It returns nil and no error for an unknown block.
func (s *Source) BlockWithTransactions(ctx context.Context, n uint64) ([]txn.RawTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	block, err := s.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &FetchError{Op: "block_by_number", Err: err}
	}
	if block == nil {
		return nil, nil
	}

	out := make([]txn.RawTransaction, 0, len(block.Transactions()))
	for i, tx := range block.Transactions() {
		from, err := s.sender(ctx, tx, block.Hash(), uint(i))
		if err != nil {
			s.logger.Warn("skipping transaction with unknown sender", "tx", tx.Hash().Hex(), "error", err)
			continue
		}
		out = append(out, s.convert(tx, from, block.Time()))
	}
	return out, nil
}

// Fetch returns up to MaxTransactions transactions of the latest block
// that were sent from or to address, in block order.
func (s *Source) Fetch(ctx context.Context, address string) ([]txn.RawTransaction, error) {
	ctx, span := traces.StartSpan(ctx, "chain.Fetch", traces.WalletAddr(address))
	var err error
	defer func() { traces.End(span, err) }()

	head, err := s.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.BlockNumber(head))

	all, err := s.BlockWithTransactions(ctx, head)
	if err != nil {
		return nil, err
	}

	out := make([]txn.RawTransaction, 0, s.cfg.MaxTransactions)
	for _, tx := range all {
		if len(out) == s.cfg.MaxTransactions {
			break
		}
		if tx.Involves(address) {
			out = append(out, tx)
		}
	}

	if s.cfg.FetchReceipts {
		s.fillGasUsed(ctx, out)
	}
	return out, nil
}

// Recent is Fetch with failures absorbed: any error is logged and an
// empty batch is returned.
func (s *Source) Recent(ctx context.Context, address string) []txn.RawTransaction {
	txs, err := s.Fetch(ctx, address)
	if err != nil {
		metrics.ChainFetchFailuresTotal.Inc()
		s.logger.Error("fetch transactions failed", "wallet", address, "error", err)
		return []txn.RawTransaction{}
	}
	return txs
}

// Close releases the RPC connection.
func (s *Source) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// sender recovers the signer locally for the configured chain and falls
// back to the sender reported by the node. The fallback covers nodes on a
// chain other than CHAIN_ID; ethclient answers it from the block it
// already decoded.
func (s *Source) sender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error) {
	from, err := types.Sender(s.signer, tx)
	if err == nil {
		return from, nil
	}
	from, serr := s.client.TransactionSender(ctx, tx, block, index)
	if serr != nil {
		return common.Address{}, fmt.Errorf("recover sender: %w (node: %v)", err, serr)
	}
	return from, nil
}

func (s *Source) convert(tx *types.Transaction, from common.Address, blockTime uint64) txn.RawTransaction {
	raw := txn.RawTransaction{
		Hash:           tx.Hash().Hex(),
		From:           from.Hex(),
		Value:          tx.Value().String(),
		GasUsed:        s.cfg.PlaceholderGas,
		BlockTimestamp: int64(blockTime),
	}
	if to := tx.To(); to != nil {
		raw.To = to.Hex()
	}
	return raw
}

// fillGasUsed replaces the placeholder with receipt gas where available.
func (s *Source) fillGasUsed(ctx context.Context, txs []txn.RawTransaction) {
	for i := range txs {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		receipt, err := s.client.TransactionReceipt(rctx, common.HexToHash(txs[i].Hash))
		cancel()
		if err != nil || receipt == nil {
			s.logger.Warn("receipt lookup failed, keeping placeholder gas", "tx", txs[i].Hash, "error", err)
			continue
		}
		txs[i].GasUsed = strconv.FormatUint(receipt.GasUsed, 10)
	}
}
