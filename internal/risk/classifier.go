package risk

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mbd888/txsentinel/internal/ether"
	"github.com/mbd888/txsentinel/internal/txn"
)

var (
	oneEther         = decimal.NewFromInt(1)
	highGasThreshold = big.NewInt(HighGasThreshold)
)

// parsed holds the numeric fields of a transaction once validated.
type parsed struct {
	ether decimal.Decimal
	gas   *big.Int
}

func parse(tx txn.RawTransaction) (parsed, error) {
	wei, ok := ether.ParseInteger(tx.Value)
	if !ok {
		return parsed{}, &MalformedTransactionError{Hash: tx.Hash, Field: "value", Value: tx.Value}
	}
	gas, ok := ether.ParseInteger(tx.GasUsed)
	if !ok {
		return parsed{}, &MalformedTransactionError{Hash: tx.Hash, Field: "gasUsed", Value: tx.GasUsed}
	}
	return parsed{ether: ether.ToEther(wei), gas: gas}, nil
}

// Assess scores a transaction. The result depends only on tx.
func Assess(tx txn.RawTransaction) (Assessment, error) {
	p, err := parse(tx)
	if err != nil {
		return Assessment{}, err
	}
	return assess(tx, p), nil
}

// Classify returns the intent category of a transaction.
func Classify(tx txn.RawTransaction) (Category, error) {
	p, err := parse(tx)
	if err != nil {
		return CategoryUnknown, err
	}
	return classify(tx, p), nil
}

// Analyze scores and classifies in one pass over the numeric fields.
func Analyze(tx txn.RawTransaction) (Assessment, Category, error) {
	p, err := parse(tx)
	if err != nil {
		return Assessment{}, CategoryUnknown, err
	}
	return assess(tx, p), classify(tx, p), nil
}

func assess(tx txn.RawTransaction, p parsed) Assessment {
	score := 0
	if p.ether.GreaterThan(oneEther) {
		score += WeightLargeValue
	}
	if tx.HasRecipient() && p.ether.IsZero() {
		score += WeightZeroValueTo
	}
	if p.gas.Cmp(highGasThreshold) > 0 {
		score += WeightHighGas
	}

	score = max(MinScore, min(score, MaxScore))
	return Assessment{Score: score, Level: LevelFor(score)}
}

// classify applies the rules in priority order; the first match wins.
func classify(tx txn.RawTransaction, p parsed) Category {
	switch {
	case tx.HasRecipient() && p.ether.IsPositive() && !strings.EqualFold(tx.From, tx.To):
		return CategoryTokenTransfer
	case tx.HasRecipient() && p.ether.IsZero():
		return CategoryDeFi
	default:
		return CategoryUnknown
	}
}
