package explainer

import (
	"context"
	"crypto/sha256"
	"errors"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mbd888/txsentinel/internal/circuitbreaker"
	"github.com/mbd888/txsentinel/internal/metrics"
	"github.com/mbd888/txsentinel/internal/syncutil"
	"github.com/mbd888/txsentinel/internal/traces"
	"github.com/mbd888/txsentinel/internal/txn"
)

const (
	defaultCallTimeout     = 30 * time.Second
	defaultSpeechCacheSize = 64
)

// Guarded decorates an Explainer with a per-call timeout, a circuit
// breaker keyed by operation, metrics and tracing, and caches synthesized
// speech by text. Errors from the inner explainer are still returned;
// callers decide which placeholder to show.
type Guarded struct {
	inner   Explainer
	timeout time.Duration
	breaker *circuitbreaker.Breaker
	speech  *lru.Cache[[sha256.Size]byte, []byte]
	voicing *syncutil.KeyLock
	logger  *slog.Logger
}

var _ Explainer = (*Guarded)(nil)

// GuardOption configures a Guarded explainer.
type GuardOption func(*Guarded)

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithBreaker replaces the default breaker (5 failures, 30s open).
func WithBreaker(b *circuitbreaker.Breaker) GuardOption {
	return func(g *Guarded) {
		g.breaker = b
	}
}

// WithSpeechCacheSize sets how many synthesized clips are kept.
func WithSpeechCacheSize(n int) GuardOption {
	return func(g *Guarded) {
		if n > 0 {
			g.speech, _ = lru.New[[sha256.Size]byte, []byte](n)
		}
	}
}

// NewGuarded wraps inner.
func NewGuarded(inner Explainer, logger *slog.Logger, opts ...GuardOption) *Guarded {
	g := &Guarded{
		inner:   inner,
		timeout: defaultCallTimeout,
		voicing: syncutil.NewKeyLock(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = circuitbreaker.New(5, 30*time.Second)
	}
	if g.speech == nil {
		g.speech, _ = lru.New[[sha256.Size]byte, []byte](defaultSpeechCacheSize)
	}
	return g
}

// OpenOperations lists operations whose circuit is currently not closed.
func (g *Guarded) OpenOperations() []string {
	return g.breaker.OpenKeys()
}

func (g *Guarded) Explain(ctx context.Context, tx txn.RawTransaction) (Explanation, error) {
	var out Explanation
	err := g.call(ctx, OpExplain, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Explain(ctx, tx)
		return err
	}, traces.TxHash(tx.Hash))
	return out, err
}

func (g *Guarded) Simplify(ctx context.Context, text string) (string, error) {
	var out string
	err := g.call(ctx, OpSimplify, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Simplify(ctx, text)
		return err
	})
	return out, err
}

func (g *Guarded) Chat(ctx context.Context, question, contextText string) (string, error) {
	var out string
	err := g.call(ctx, OpChat, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Chat(ctx, question, contextText)
		return err
	})
	return out, err
}

// Speak serves repeated text from the cache. Concurrent requests for the
// same text share one synthesis. Nil audio is not cached.
func (g *Guarded) Speak(ctx context.Context, text string) ([]byte, error) {
	key := sha256.Sum256([]byte(text))
	if audio, ok := g.speech.Get(key); ok {
		metrics.SpeechCacheHitsTotal.Inc()
		return audio, nil
	}

	unlock, err := g.voicing.Lock(ctx, string(key[:]))
	if err != nil {
		return nil, &CallError{Op: OpSpeak, Err: err}
	}
	defer unlock()
	if audio, ok := g.speech.Get(key); ok {
		metrics.SpeechCacheHitsTotal.Inc()
		return audio, nil
	}

	var out []byte
	err = g.call(ctx, OpSpeak, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Speak(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		g.speech.Add(key, out)
	}
	return out, nil
}

func (g *Guarded) call(ctx context.Context, op string, fn func(context.Context) error, attrs ...traces.Attr) error {
	ctx, span := traces.StartSpan(ctx, "explainer."+op, append(attrs, traces.Operation(op))...)
	start := time.Now()

	err := g.breaker.Do(op, func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(cctx)
	})

	result := "ok"
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		result = "open"
		err = &CallError{Op: op, Err: err}
	case err != nil:
		result = "error"
		if !errors.Is(err, ErrCollaborator) {
			err = &CallError{Op: op, Err: err}
		}
	}

	metrics.AICallsTotal.WithLabelValues(op, result).Inc()
	metrics.AICallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		g.logger.Warn("ai call failed", "op", op, "result", result, "error", err)
	}
	traces.End(span, err)
	return err
}
