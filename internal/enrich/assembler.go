package enrich

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/txsentinel/internal/explainer"
	"github.com/mbd888/txsentinel/internal/metrics"
	"github.com/mbd888/txsentinel/internal/risk"
	"github.com/mbd888/txsentinel/internal/traces"
	"github.com/mbd888/txsentinel/internal/txn"
)

// DefaultWorkers bounds concurrent explain calls.
const DefaultWorkers = 4

// Assembler builds enriched batches.
type Assembler struct {
	explainer explainer.Explainer
	workers   int
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithWorkers sets the explain fan-out limit.
func WithWorkers(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithClock sets the clock used to date demo transactions.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		a.now = now
	}
}

// New creates an Assembler that explains records with exp.
func New(exp explainer.Explainer, logger *slog.Logger, opts ...Option) *Assembler {
	a := &Assembler{
		explainer: exp,
		workers:   DefaultWorkers,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Score classifies raws without calling the explainer. Every record is
// left pending. Malformed transactions are rejected. An empty input
// yields an empty result.
func (a *Assembler) Score(raws []txn.RawTransaction) Result {
	res := Result{Records: make([]Record, 0, len(raws))}
	for _, raw := range raws {
		assessment, category, err := risk.Analyze(raw)
		if err != nil {
			metrics.MalformedTransactionsTotal.Inc()
			a.logger.Warn("dropping malformed transaction", "tx", raw.Hash, "error", err)
			res.Rejected = append(res.Rejected, Rejection{Hash: raw.Hash, Error: err.Error()})
			continue
		}
		metrics.RiskAssessmentsTotal.WithLabelValues(string(assessment.Level)).Inc()
		metrics.CategoriesTotal.WithLabelValues(string(category)).Inc()
		res.Records = append(res.Records, Record{
			ID:             uuid.NewString(),
			RawTransaction: raw,
			Risk:           assessment,
			Context:        category,
			Analysis:       Pending(),
		})
	}
	return res
}

// Enrich scores, classifies and explains raws. An empty input is replaced
// by the demo fixtures. Explain calls run concurrently, bounded by the
// worker limit, and Enrich returns only after every call has settled; a
// failed call degrades that record alone. Output order follows input order.
// The only error is ctx's, in which case nothing is returned.
func (a *Assembler) Enrich(ctx context.Context, raws []txn.RawTransaction) (Result, error) {
	demo := len(raws) == 0
	if demo {
		raws = txn.DemoTransactions(a.now())
	}

	ctx, span := traces.StartSpan(ctx, "enrich.Enrich", traces.BatchSize(len(raws)))
	var err error
	defer func() { traces.End(span, err) }()

	res := a.Score(raws)
	res.Demo = demo

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range res.Records {
		rec := &res.Records[i]
		g.Go(func() error {
			exp, err := a.explainer.Explain(gctx, rec.RawTransaction)
			if err != nil {
				// A canceled caller gets no batch; stop the other workers.
				if cerr := ctx.Err(); cerr != nil {
					return cerr
				}
				a.logger.Warn("explain failed", "tx", rec.Hash, "error", err)
				rec.Analysis = Failed(err)
				return nil
			}
			rec.Analysis = Ready(exp)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return Result{}, err
	}
	if err = ctx.Err(); err != nil {
		return Result{}, err
	}
	return res, nil
}
