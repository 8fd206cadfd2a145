package risk

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txsentinel/internal/txn"
)

const (
	alice = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	bob   = "0x1234567890123456789012345678901234567890"
)

var fixedNow = time.Unix(1710000000, 0)

func tx(from, to, value, gas string) txn.RawTransaction {
	return txn.RawTransaction{
		Hash:    "0xfeed",
		From:    from,
		To:      to,
		Value:   value,
		GasUsed: gas,
	}
}

func TestAnalyze_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		tx        txn.RawTransaction
		wantScore int
		wantLevel Level
		wantCat   Category
	}{
		{
			name:      "1.5 ETH transfer",
			tx:        tx(alice, bob, "1500000000000000000", "21000"),
			wantScore: 40,
			wantLevel: LevelMedium,
			wantCat:   CategoryTokenTransfer,
		},
		{
			name:      "zero value contract call with heavy gas",
			tx:        tx(alice, bob, "0", "250000"),
			wantScore: 40,
			wantLevel: LevelMedium,
			wantCat:   CategoryDeFi,
		},
		{
			name:      "2 ETH transfer with heavy gas",
			tx:        tx(alice, bob, "2000000000000000000", "300000"),
			wantScore: 60,
			wantLevel: LevelMedium,
			wantCat:   CategoryTokenTransfer,
		},
		{
			name:      "zero value call with simple gas",
			tx:        tx(alice, bob, "0", "21000"),
			wantScore: 20,
			wantLevel: LevelLow,
			wantCat:   CategoryDeFi,
		},
		{
			name:      "exactly 1 ETH is not large",
			tx:        tx(alice, bob, "1000000000000000000", "21000"),
			wantScore: 0,
			wantLevel: LevelLow,
			wantCat:   CategoryTokenTransfer,
		},
		{
			name:      "one wei above 1 ETH is large",
			tx:        tx(alice, bob, "1000000000000000001", "21000"),
			wantScore: 40,
			wantLevel: LevelMedium,
			wantCat:   CategoryTokenTransfer,
		},
		{
			name:      "gas exactly at threshold",
			tx:        tx(alice, bob, "1", "200000"),
			wantScore: 0,
			wantLevel: LevelLow,
			wantCat:   CategoryTokenTransfer,
		},
		{
			name:      "contract creation",
			tx:        tx(alice, "", "0", "1500000"),
			wantScore: 20,
			wantLevel: LevelLow,
			wantCat:   CategoryUnknown,
		},
		{
			name:      "large contract creation",
			tx:        tx(alice, "", "5000000000000000000", "1500000"),
			wantScore: 60,
			wantLevel: LevelMedium,
			wantCat:   CategoryUnknown,
		},
		{
			name:      "self transfer",
			tx:        tx(alice, alice, "3000000000000000000", "21000"),
			wantScore: 40,
			wantLevel: LevelMedium,
			wantCat:   CategoryUnknown,
		},
		{
			name:      "self transfer with mixed case",
			tx:        tx(alice, "0x742d35cc6634c0532925a3b844bc454e4438f44e", "3000000000000000000", "21000"),
			wantScore: 40,
			wantLevel: LevelMedium,
			wantCat:   CategoryUnknown,
		},
		{
			name:      "value beyond 64 bits",
			tx:        tx(alice, bob, "123456789012345678901234567890", "99999999999999999999999"),
			wantScore: 60,
			wantLevel: LevelMedium,
			wantCat:   CategoryTokenTransfer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessment, category, err := Analyze(tt.tx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, assessment.Score)
			assert.Equal(t, tt.wantLevel, assessment.Level)
			assert.Equal(t, tt.wantCat, category)

			// The single-purpose entry points agree with Analyze.
			a, err := Assess(tt.tx)
			require.NoError(t, err)
			assert.Equal(t, assessment, a)
			c, err := Classify(tt.tx)
			require.NoError(t, err)
			assert.Equal(t, category, c)
		})
	}
}

func TestLevelFor_Boundaries(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{0, LevelLow},
		{30, LevelLow},
		{31, LevelMedium},
		{70, LevelMedium},
		{71, LevelHigh},
		{100, LevelHigh},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, LevelFor(tt.score))
		})
	}
}

func TestAssess_Properties(t *testing.T) {
	values := []string{"0", "1", "999999999999999999", "1000000000000000000", "1000000000000000001", "2500000000000000000", "340282366920938463463374607431768211456"}
	gases := []string{"0", "21000", "200000", "200001", "30000000"}
	recipients := []string{"", bob, alice}

	for _, v := range values {
		for _, g := range gases {
			for _, to := range recipients {
				in := tx(alice, to, v, g)
				a, err := Assess(in)
				require.NoError(t, err)

				assert.GreaterOrEqual(t, a.Score, MinScore)
				assert.LessOrEqual(t, a.Score, MaxScore)
				assert.Equal(t, LevelFor(a.Score), a.Level)

				again, err := Assess(in)
				require.NoError(t, err)
				assert.Equal(t, a, again, "scoring must be deterministic")

				if len(v) > 19 || v == "1000000000000000001" || v == "2500000000000000000" {
					assert.GreaterOrEqual(t, a.Score, WeightLargeValue, "value %s", v)
				}
				if to != "" && v == "0" {
					assert.GreaterOrEqual(t, a.Score, WeightZeroValueTo)
					c, err := Classify(in)
					require.NoError(t, err)
					assert.Equal(t, CategoryDeFi, c)
				}
			}
		}
	}
}

func TestAnalyze_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		tx        txn.RawTransaction
		wantField string
	}{
		{"empty value", tx(alice, bob, "", "21000"), "value"},
		{"negative value", tx(alice, bob, "-1", "21000"), "value"},
		{"fractional value", tx(alice, bob, "1.5", "21000"), "value"},
		{"hex value", tx(alice, bob, "0xde0b6b3a7640000", "21000"), "value"},
		{"non numeric gas", tx(alice, bob, "0", "lots"), "gasUsed"},
		{"empty gas", tx(alice, bob, "0", ""), "gasUsed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Analyze(tt.tx)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedTransaction))

			var mErr *MalformedTransactionError
			require.True(t, errors.As(err, &mErr))
			assert.Equal(t, tt.wantField, mErr.Field)
			assert.Equal(t, "0xfeed", mErr.Hash)

			_, err = Assess(tt.tx)
			assert.ErrorIs(t, err, ErrMalformedTransaction)
			_, err = Classify(tt.tx)
			assert.ErrorIs(t, err, ErrMalformedTransaction)
		})
	}
}

func TestMalformedTransactionError_Message(t *testing.T) {
	err := &MalformedTransactionError{Field: "value", Value: "abc"}
	assert.Contains(t, err.Error(), `value "abc"`)

	err.Hash = "0x01"
	assert.Contains(t, err.Error(), "0x01")
}

func TestDemoTransactions_Classify(t *testing.T) {
	for _, d := range txn.DemoTransactions(fixedNow) {
		_, _, err := Analyze(d)
		require.NoError(t, err)
	}
}
