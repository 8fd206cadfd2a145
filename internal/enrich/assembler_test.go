package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txsentinel/internal/explainer"
	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/metrics"
	"github.com/mbd888/txsentinel/internal/risk"
	"github.com/mbd888/txsentinel/internal/txn"
)

// fakeExplainer explains by echoing the hash. Hashes listed in fail
// return an error; delay staggers calls so completion order differs from
// input order.
type fakeExplainer struct {
	fail     map[string]bool
	delay    func(hash string) time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (f *fakeExplainer) Explain(ctx context.Context, tx txn.RawTransaction) (explainer.Explanation, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay != nil {
		time.Sleep(f.delay(tx.Hash))
	}
	if f.fail[tx.Hash] {
		return explainer.Explanation{}, &explainer.CallError{Op: explainer.OpExplain, Err: errors.New("model overloaded")}
	}
	return explainer.Explanation{Explanation: "about " + tx.Hash, Suggestion: "ok"}, nil
}

func (f *fakeExplainer) Simplify(context.Context, string) (string, error)     { return "", nil }
func (f *fakeExplainer) Speak(context.Context, string) ([]byte, error)        { return nil, nil }
func (f *fakeExplainer) Chat(context.Context, string, string) (string, error) { return "", nil }

const (
	alice = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	bob   = "0x1234567890123456789012345678901234567890"
)

var fixedNow = time.Unix(1710000000, 0)

func newAssembler(exp explainer.Explainer, opts ...Option) *Assembler {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(exp, logging.Discard(), opts...)
}

func raw(hash, value, gas string) txn.RawTransaction {
	return txn.RawTransaction{Hash: hash, From: alice, To: bob, Value: value, GasUsed: gas, BlockTimestamp: fixedNow.Unix()}
}

func TestEnrich_Scenarios(t *testing.T) {
	raws := []txn.RawTransaction{
		raw("0x01", "1500000000000000000", "21000"),
		raw("0x02", "0", "250000"),
		raw("0x03", "2000000000000000000", "300000"),
	}

	res, err := newAssembler(&fakeExplainer{}).Enrich(context.Background(), raws)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.False(t, res.Demo)
	assert.Empty(t, res.Rejected)

	want := []struct {
		score int
		level risk.Level
		cat   risk.Category
	}{
		{40, risk.LevelMedium, risk.CategoryTokenTransfer},
		{40, risk.LevelMedium, risk.CategoryDeFi},
		{60, risk.LevelMedium, risk.CategoryTokenTransfer},
	}
	for i, w := range want {
		rec := res.Records[i]
		assert.Equal(t, raws[i], rec.RawTransaction)
		assert.Equal(t, w.score, rec.Risk.Score)
		assert.Equal(t, w.level, rec.Risk.Level)
		assert.Equal(t, w.cat, rec.Context)
		assert.Equal(t, StateReady, rec.Analysis.State)
		exp, ok := rec.Analysis.Text()
		require.True(t, ok)
		assert.Equal(t, "about "+raws[i].Hash, exp.Explanation)
	}
}

func TestEnrich_PreservesOrderAndCardinality(t *testing.T) {
	for _, n := range []int{1, 2, 7, 25} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			raws := make([]txn.RawTransaction, n)
			for i := range raws {
				raws[i] = raw(fmt.Sprintf("0x%02x", i), "1", "21000")
			}
			// Earlier records finish last.
			exp := &fakeExplainer{delay: func(hash string) time.Duration {
				var i int
				_, _ = fmt.Sscanf(hash, "0x%x", &i)
				return time.Duration(n-i) * time.Millisecond
			}}

			res, err := newAssembler(exp).Enrich(context.Background(), raws)
			require.NoError(t, err)
			require.Len(t, res.Records, n)
			for i, rec := range res.Records {
				assert.Equal(t, raws[i].Hash, rec.Hash)
			}
		})
	}
}

func TestEnrich_DegradesSingleFailure(t *testing.T) {
	raws := []txn.RawTransaction{
		raw("0x01", "1", "21000"),
		raw("0x02", "1", "21000"),
		raw("0x03", "1", "21000"),
	}
	exp := &fakeExplainer{fail: map[string]bool{"0x02": true}}

	res, err := newAssembler(exp).Enrich(context.Background(), raws)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)

	assert.Equal(t, StateReady, res.Records[0].Analysis.State)
	assert.Equal(t, StateReady, res.Records[2].Analysis.State)

	failed := res.Records[1]
	assert.Equal(t, "0x02", failed.Hash)
	assert.Equal(t, StateFailed, failed.Analysis.State)
	assert.Contains(t, failed.Analysis.Error, "model overloaded")
	text, ok := failed.Analysis.Text()
	require.True(t, ok)
	assert.Equal(t, explainer.PlaceholderExplanation, text.Explanation)
	assert.Equal(t, explainer.PlaceholderSuggestion, text.Suggestion)
}

func TestEnrich_EmptyInputSubstitutesDemo(t *testing.T) {
	for _, in := range [][]txn.RawTransaction{nil, {}} {
		res, err := newAssembler(&fakeExplainer{}).Enrich(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, res.Demo)
		require.Len(t, res.Records, 2)

		demo := txn.DemoTransactions(fixedNow)
		assert.Equal(t, demo[0], res.Records[0].RawTransaction)
		assert.Equal(t, demo[1], res.Records[1].RawTransaction)
		assert.Equal(t, risk.CategoryTokenTransfer, res.Records[0].Context)
		assert.Equal(t, risk.CategoryDeFi, res.Records[1].Context)
		assert.Equal(t, 40, res.Records[1].Risk.Score)
	}
}

func TestEnrich_MalformedDroppedOthersKept(t *testing.T) {
	raws := []txn.RawTransaction{
		raw("0x01", "1", "21000"),
		raw("0xbad", "1.5", "21000"),
		raw("0x03", "0", "250000"),
	}
	exp := &fakeExplainer{}

	res, err := newAssembler(exp).Enrich(context.Background(), raws)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "0x01", res.Records[0].Hash)
	assert.Equal(t, "0x03", res.Records[1].Hash)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "0xbad", res.Rejected[0].Hash)
	assert.Contains(t, res.Rejected[0].Error, "value")
	assert.Equal(t, int32(2), exp.calls.Load(), "malformed records are not explained")
}

func TestEnrich_BoundedConcurrency(t *testing.T) {
	raws := make([]txn.RawTransaction, 12)
	for i := range raws {
		raws[i] = raw(fmt.Sprintf("0x%02x", i), "1", "21000")
	}
	exp := &fakeExplainer{delay: func(string) time.Duration { return 5 * time.Millisecond }}

	_, err := newAssembler(exp, WithWorkers(3)).Enrich(context.Background(), raws)
	require.NoError(t, err)
	assert.LessOrEqual(t, exp.peak.Load(), int32(3))
	assert.Equal(t, int32(12), exp.calls.Load())
}

func TestEnrich_UniqueRecordIDs(t *testing.T) {
	raws := []txn.RawTransaction{raw("0x01", "1", "21000"), raw("0x01", "1", "21000")}
	res, err := newAssembler(&fakeExplainer{}).Enrich(context.Background(), raws)
	require.NoError(t, err)
	assert.NotEqual(t, res.Records[0].ID, res.Records[1].ID)
}

func TestEnrich_CanceledContextPublishesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newAssembler(&fakeExplainer{}).Enrich(ctx, []txn.RawTransaction{raw("0x01", "1", "21000")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Records)
}

// cancelingExplainer cancels the caller's context and fails the call.
type cancelingExplainer struct {
	fakeExplainer
	cancel context.CancelFunc
}

func (c *cancelingExplainer) Explain(ctx context.Context, tx txn.RawTransaction) (explainer.Explanation, error) {
	c.cancel()
	<-ctx.Done()
	return explainer.Explanation{}, &explainer.CallError{Op: explainer.OpExplain, Err: ctx.Err()}
}

func TestEnrich_CanceledMidwayReturnsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exp := &cancelingExplainer{cancel: cancel}
	raws := []txn.RawTransaction{raw("0x01", "1", "21000"), raw("0x02", "2", "21000"), raw("0x03", "3", "21000")}
	res, err := newAssembler(exp, WithWorkers(1)).Enrich(ctx, raws)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Records, "a canceled batch is never partially published")
}

func TestScore_LeavesAnalysisPending(t *testing.T) {
	exp := &fakeExplainer{}
	res := newAssembler(exp).Score([]txn.RawTransaction{raw("0x01", "5000000000000000000", "900000")})

	require.Len(t, res.Records, 1)
	assert.Equal(t, StatePending, res.Records[0].Analysis.State)
	_, ok := res.Records[0].Analysis.Text()
	assert.False(t, ok)
	assert.Equal(t, 60, res.Records[0].Risk.Score)
	assert.Equal(t, int32(0), exp.calls.Load())
}

func TestResult_HighRiskAndFind(t *testing.T) {
	res := Result{Records: []Record{
		{RawTransaction: txn.RawTransaction{Hash: "0x01"}, Risk: risk.Assessment{Score: 80, Level: risk.LevelHigh}},
		{RawTransaction: txn.RawTransaction{Hash: "0x02"}, Risk: risk.Assessment{Score: 20, Level: risk.LevelLow}},
	}}
	assert.Equal(t, 1, res.HighRisk())

	rec, ok := res.Find("0x02")
	require.True(t, ok)
	assert.Equal(t, 20, rec.Risk.Score)
	_, ok = res.Find("0x03")
	assert.False(t, ok)
}

func TestFailed_NilError(t *testing.T) {
	a := Failed(nil)
	assert.Equal(t, StateFailed, a.State)
	assert.Empty(t, a.Error)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.Counter.GetValue()
}

func TestScore_RecordsMetrics(t *testing.T) {
	level := metrics.RiskAssessmentsTotal.WithLabelValues(string(risk.LevelMedium))
	category := metrics.CategoriesTotal.WithLabelValues(string(risk.CategoryTokenTransfer))
	beforeLevel := counterValue(t, level)
	beforeCategory := counterValue(t, category)
	beforeMalformed := counterValue(t, metrics.MalformedTransactionsTotal)

	a := New(&fakeExplainer{}, logging.Discard())
	a.Score([]txn.RawTransaction{
		{Hash: "0x01", From: "0xa", To: "0xb", Value: "1500000000000000000", GasUsed: "21000"},
		{Hash: "0x02", From: "0xa", To: "0xb", Value: "oops", GasUsed: "21000"},
	})

	assert.Equal(t, beforeLevel+1, counterValue(t, level))
	assert.Equal(t, beforeCategory+1, counterValue(t, category))
	assert.Equal(t, beforeMalformed+1, counterValue(t, metrics.MalformedTransactionsTotal))
}
