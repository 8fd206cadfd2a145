// Package dashboard holds the state behind one wallet dashboard: the
// connected session, the latest enriched batch, simplified explanations
// and the chat transcript. Every user action goes through it, and every
// state change is published to connected browsers.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/txsentinel/internal/assistant"
	"github.com/mbd888/txsentinel/internal/enrich"
	"github.com/mbd888/txsentinel/internal/explainer"
	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/metrics"
	"github.com/mbd888/txsentinel/internal/realtime"
	"github.com/mbd888/txsentinel/internal/traces"
	"github.com/mbd888/txsentinel/internal/txn"
	"github.com/mbd888/txsentinel/internal/wallet"
)

var (
	ErrRefreshInProgress   = errors.New("dashboard: refresh already in progress")
	ErrNotConnected        = errors.New("dashboard: no wallet connected")
	ErrTransactionNotFound = errors.New("dashboard: transaction not found")
	ErrSessionChanged      = errors.New("dashboard: wallet changed while the request was running")
)

// Source supplies recent transactions for an address. Failures are
// absorbed by the source and show up as an empty batch.
type Source interface {
	Recent(ctx context.Context, address string) []txn.RawTransaction
}

// WalletProvider connects wallets and reports account changes.
type WalletProvider interface {
	Connect(ctx context.Context, address string) (*wallet.Session, error)
	Subscribe(fn func(accounts []string)) (unsubscribe func())
}

// Publisher pushes events to connected clients.
type Publisher interface {
	Publish(t realtime.EventType, data any)
}

// Snapshot is a consistent copy of the dashboard state.
type Snapshot struct {
	Session     *wallet.Session   `json:"session"`
	Batch       enrich.Result     `json:"batch"`
	HighRisk    int               `json:"highRisk"`
	Refreshing  bool              `json:"refreshing"`
	RefreshedAt *time.Time        `json:"refreshedAt,omitempty"`
	Simplified  map[string]string `json:"simplified,omitempty"`
}

// Deps are the collaborators of a Dashboard.
type Deps struct {
	Provider  WalletProvider
	Source    Source
	Assembler *enrich.Assembler
	Assistant *assistant.Assistant
	Explainer explainer.Explainer
	Publisher Publisher
}

// Dashboard orchestrates the pipeline for a single wallet session.
type Dashboard struct {
	deps             Deps
	logger           *slog.Logger
	reconnectTimeout time.Duration

	refreshing atomic.Bool

	mu          sync.RWMutex
	session     *wallet.Session
	batch       enrich.Result
	refreshedAt time.Time
	simplified  map[string]string
	generation  uint64
	unsubscribe func()
	transcript  *assistant.Transcript
}

type nopPublisher struct{}

func (nopPublisher) Publish(realtime.EventType, any) {}

// New creates a Dashboard with no session.
func New(deps Deps, transcriptLimit int, logger *slog.Logger) *Dashboard {
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dashboard{
		deps:             deps,
		logger:           logger,
		reconnectTimeout: 60 * time.Second,
		simplified:       make(map[string]string),
		transcript:       assistant.NewTranscript(transcriptLimit),
	}
}

// Connect opens a session for address and runs the first refresh. A
// failed connection leaves the current state untouched. A refresh that
// cannot start, or fails, does not undo the connection.
func (d *Dashboard) Connect(ctx context.Context, address string) (*wallet.Session, error) {
	ctx = logging.Ensure(ctx, d.logger)
	sess, err := d.deps.Provider.Connect(ctx, address)
	if err != nil {
		logging.L(ctx).Warn("wallet connect failed", "error", err)
		return nil, err
	}

	d.mu.Lock()
	d.replaceSession(sess)
	if d.unsubscribe == nil {
		d.unsubscribe = d.deps.Provider.Subscribe(d.accountsChanged)
	}
	d.mu.Unlock()

	metrics.WalletSessionActive.Set(1)
	logging.L(ctx).Info("wallet connected", "wallet", sess.Address, "balance", sess.Balance)
	d.deps.Publisher.Publish(realtime.EventSession, sess)

	if _, err := d.Refresh(ctx); err != nil {
		logging.L(ctx).Warn("initial refresh did not complete", "wallet", sess.Address, "error", err)
	}
	return sess, nil
}

// Decline records that the user refused the wallet's connection prompt.
// The current session, if any, is left as it is.
func (d *Dashboard) Decline(ctx context.Context) error {
	metrics.WalletConnectionsTotal.WithLabelValues("rejected").Inc()
	logging.L(logging.Ensure(ctx, d.logger)).Info("wallet connection declined by user")
	return wallet.Rejected()
}

// Disconnect destroys the session and discards everything derived from it.
func (d *Dashboard) Disconnect() {
	d.mu.Lock()
	had := d.session != nil
	d.replaceSession(nil)
	unsub := d.unsubscribe
	d.unsubscribe = nil
	d.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	metrics.WalletSessionActive.Set(0)
	if had {
		d.logger.Info("wallet disconnected")
		d.deps.Publisher.Publish(realtime.EventSession, nil)
	}
}

// Caller must hold d.mu.
func (d *Dashboard) replaceSession(sess *wallet.Session) {
	d.session = sess
	d.batch = enrich.Result{}
	d.refreshedAt = time.Time{}
	d.simplified = make(map[string]string)
	d.generation++
	d.transcript.Reset()
}

// accountsChanged follows the wallet: an empty list disconnects, a new
// first account replaces the session.
func (d *Dashboard) accountsChanged(accounts []string) {
	if len(accounts) == 0 {
		d.Disconnect()
		return
	}

	d.mu.RLock()
	current := ""
	if d.session != nil {
		current = d.session.Address
	}
	d.mu.RUnlock()

	if strings.EqualFold(current, accounts[0]) {
		return
	}

	d.Disconnect()
	ctx, cancel := context.WithTimeout(context.Background(), d.reconnectTimeout)
	defer cancel()
	if _, err := d.Connect(logging.WithLogger(ctx, d.logger), accounts[0]); err != nil {
		d.logger.Warn("reconnect after account change failed", "account", accounts[0], "error", err)
	}
}

// Refresh fetches, scores and explains the session's recent transactions
// and replaces the batch. Only one refresh runs at a time; others fail
// with ErrRefreshInProgress.
func (d *Dashboard) Refresh(ctx context.Context) (enrich.Result, error) {
	if !d.refreshing.CompareAndSwap(false, true) {
		metrics.RefreshesTotal.WithLabelValues("busy").Inc()
		return enrich.Result{}, ErrRefreshInProgress
	}
	defer d.refreshing.Store(false)
	ctx = logging.Ensure(ctx, d.logger)

	d.mu.RLock()
	sess, gen := d.session, d.generation
	d.mu.RUnlock()
	if sess == nil {
		return enrich.Result{}, ErrNotConnected
	}

	ctx = logging.WithWallet(ctx, sess.Address)
	ctx, span := traces.StartSpan(ctx, "dashboard.Refresh", traces.WalletAddr(sess.Address))
	var err error
	defer func() { traces.End(span, err) }()

	timer := time.Now()
	d.deps.Publisher.Publish(realtime.EventRefresh, map[string]string{"status": "started"})

	raws := d.deps.Source.Recent(ctx, sess.Address)
	res, err := d.deps.Assembler.Enrich(ctx, raws)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues("error").Inc()
		d.deps.Publisher.Publish(realtime.EventRefresh, map[string]string{"status": "failed"})
		return enrich.Result{}, err
	}

	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		err = ErrSessionChanged
		metrics.RefreshesTotal.WithLabelValues("error").Inc()
		return enrich.Result{}, err
	}
	d.batch = res
	d.refreshedAt = time.Now().UTC()
	d.simplified = make(map[string]string)
	d.mu.Unlock()

	result := "ok"
	if res.Demo {
		result = "demo"
	}
	metrics.RefreshesTotal.WithLabelValues(result).Inc()
	metrics.RefreshDuration.Observe(time.Since(timer).Seconds())
	logging.L(ctx).Info("batch refreshed",
		"records", len(res.Records),
		"rejected", len(res.Rejected),
		"demo", res.Demo,
		"high_risk", res.HighRisk(),
	)

	d.deps.Publisher.Publish(realtime.EventTransactions, res)
	d.deps.Publisher.Publish(realtime.EventRefresh, map[string]string{"status": "finished"})
	return res, nil
}

// Snapshot returns the current state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Snapshot{
		Batch:      d.batch,
		HighRisk:   d.batch.HighRisk(),
		Refreshing: d.refreshing.Load(),
	}
	if d.session != nil {
		sess := *d.session
		s.Session = &sess
	}
	if !d.refreshedAt.IsZero() {
		t := d.refreshedAt
		s.RefreshedAt = &t
	}
	if len(d.simplified) > 0 {
		s.Simplified = make(map[string]string, len(d.simplified))
		for k, v := range d.simplified {
			s.Simplified[k] = v
		}
	}
	return s
}

// record looks up hash in the current batch.
func (d *Dashboard) record(hash string) (enrich.Record, string, uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.session == nil {
		return enrich.Record{}, "", 0, ErrNotConnected
	}
	rec, ok := d.batch.Find(hash)
	if !ok {
		return enrich.Record{}, "", 0, ErrTransactionNotFound
	}
	return rec, d.simplified[hash], d.generation, nil
}

// Simplify rewrites the explanation of the record with hash in plainer
// words. A model failure yields the fixed placeholder, not an error.
func (d *Dashboard) Simplify(ctx context.Context, hash string) (string, error) {
	ctx = logging.Ensure(ctx, d.logger)
	rec, _, gen, err := d.record(hash)
	if err != nil {
		return "", err
	}

	exp, ok := rec.Analysis.Text()
	if !ok {
		return explainer.PlaceholderSimplified, nil
	}

	text, err := d.deps.Explainer.Simplify(ctx, exp.Explanation)
	if err != nil {
		logging.L(ctx).Warn("simplify failed", "tx", hash, "error", err)
		return explainer.PlaceholderSimplified, nil
	}

	d.mu.Lock()
	if gen == d.generation {
		d.simplified[hash] = text
	}
	d.mu.Unlock()

	d.deps.Publisher.Publish(realtime.EventSimplified, map[string]string{"hash": hash, "text": text})
	return text, nil
}

// Speak synthesizes the record's explanation, preferring the simplified
// text when there is one. Nil audio means nothing to play.
func (d *Dashboard) Speak(ctx context.Context, hash string) ([]byte, error) {
	ctx = logging.Ensure(ctx, d.logger)
	rec, simplified, _, err := d.record(hash)
	if err != nil {
		return nil, err
	}

	text := simplified
	if text == "" {
		exp, ok := rec.Analysis.Text()
		if !ok {
			return nil, nil
		}
		text = exp.Explanation
	}

	audio, err := d.deps.Explainer.Speak(ctx, text)
	if err != nil {
		logging.L(ctx).Warn("speech failed", "tx", hash, "error", err)
		return nil, nil
	}
	return audio, nil
}

// ChatExchange is a question and its answer as stored in the transcript.
type ChatExchange struct {
	Question assistant.Message `json:"question"`
	Answer   assistant.Message `json:"answer"`
	Fallback bool              `json:"fallback"`
}

// Chat asks the assistant about the current session and records both
// sides of the exchange.
func (d *Dashboard) Chat(ctx context.Context, message string) (ChatExchange, error) {
	d.mu.RLock()
	sess, records, gen := d.session, d.batch.Records, d.generation
	d.mu.RUnlock()

	if sess == nil {
		return ChatExchange{}, ErrNotConnected
	}

	reply, err := d.deps.Assistant.Ask(ctx, message, sess, records)
	if err != nil {
		return ChatExchange{}, err
	}

	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		logging.L(logging.Ensure(ctx, d.logger)).Info("discarding chat reply for a replaced session", "wallet", sess.Address)
		return ChatExchange{}, ErrSessionChanged
	}
	ex := ChatExchange{
		Question: d.transcript.Append(assistant.SenderUser, strings.TrimSpace(message)),
		Answer:   d.transcript.Append(assistant.SenderAI, reply.Text),
		Fallback: reply.Fallback,
	}
	d.mu.Unlock()
	d.deps.Publisher.Publish(realtime.EventChat, ex)
	return ex, nil
}

// Transcript returns the chat history, oldest first.
func (d *Dashboard) Transcript() []assistant.Message {
	return d.transcript.Messages()
}

// Close drops the session and its wallet subscription.
func (d *Dashboard) Close() {
	d.Disconnect()
}
