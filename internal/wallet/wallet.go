// Package wallet models the user's wallet connection.
//
// The browser holds the keys; the service only learns which account the
// user approved, reads its balance over RPC, and relays accountsChanged
// notifications to whoever subscribed.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	"github.com/mbd888/txsentinel/internal/ether"
	"github.com/mbd888/txsentinel/internal/metrics"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ErrWalletUnavailable is matched by every *UnavailableError.
var ErrWalletUnavailable = errors.New("wallet: unavailable")

// Reasons a connection can fail.
const (
	ReasonNoProvider       = "no wallet provider configured"
	ReasonMalformedAddress = "malformed address"
	ReasonUnreachable      = "provider unreachable"
	ReasonRejected         = "connection rejected by user"
)

// UnavailableError reports why a wallet could not be connected.
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wallet: %s: %v", e.Reason, e.Err)
	}
	return "wallet: " + e.Reason
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrWalletUnavailable }

// Rejected returns the error for a connection the user declined.
func Rejected() error {
	return &UnavailableError{Reason: ReasonRejected}
}

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// BalanceReader abstracts the go-ethereum client for testing.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// Session is a connected wallet. Handle is an opaque identifier for the
// connection; a new one is issued on every Connect.
type Session struct {
	Address     string    `json:"address"`
	Balance     string    `json:"balance"`
	Handle      string    `json:"handle"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Config for the provider.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// Option configures the provider.
type Option func(*Provider)

// WithClient sets a custom balance reader (useful for testing).
func WithClient(client BalanceReader) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// Provider connects wallets and fans out account change notifications.
type Provider struct {
	client  BalanceReader
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]func(accounts []string)
	nextID uint64
}

// NewProvider creates a provider. With no RPC URL and no client, every
// Connect fails with ErrWalletUnavailable.
func NewProvider(cfg Config, logger *slog.Logger, opts ...Option) (*Provider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	p := &Provider{
		timeout: cfg.Timeout,
		now:     time.Now,
		logger:  logger,
		subs:    make(map[uint64]func([]string)),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil && cfg.RPCURL != "" {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, &UnavailableError{Reason: ReasonUnreachable, Err: err}
		}
		p.client = client
	}
	return p, nil
}

// Connect opens a session for address and reads its balance.
func (p *Provider) Connect(ctx context.Context, address string) (*Session, error) {
	sess, err := p.connect(ctx, address)
	if err != nil {
		metrics.WalletConnectionsTotal.WithLabelValues("unavailable").Inc()
		return nil, err
	}
	metrics.WalletConnectionsTotal.WithLabelValues("ok").Inc()
	return sess, nil
}

func (p *Provider) connect(ctx context.Context, address string) (*Session, error) {
	if p.client == nil {
		return nil, &UnavailableError{Reason: ReasonNoProvider}
	}
	if !common.IsHexAddress(address) {
		return nil, &UnavailableError{Reason: ReasonMalformedAddress, Err: fmt.Errorf("%q", address)}
	}
	addr := common.HexToAddress(address)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	wei, err := p.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, &UnavailableError{Reason: ReasonUnreachable, Err: err}
	}

	return &Session{
		Address:     addr.Hex(),
		Balance:     ether.Format(wei),
		Handle:      uuid.NewString(),
		ConnectedAt: p.now().UTC(),
	}, nil
}

// Subscribe registers fn for account change notifications. The returned
// function removes the subscription and is safe to call more than once.
func (p *Provider) Subscribe(fn func(accounts []string)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (p *Provider) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// AccountsChanged delivers accounts to every current subscriber. Callbacks
// run on the caller's goroutine, outside the provider lock.
func (p *Provider) AccountsChanged(accounts []string) {
	p.mu.Lock()
	fns := make([]func([]string), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	p.logger.Info("accounts changed", "accounts", len(accounts), "subscribers", len(fns))
	for _, fn := range fns {
		fn(append([]string(nil), accounts...))
	}
}

// Configured reports whether Connect can reach a provider.
func (p *Provider) Configured() bool {
	return p.client != nil
}

// Close releases the RPC connection.
func (p *Provider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
