// Package risk implements deterministic transaction risk scoring and
// intent classification.
//
// Every transaction is scored against three additive signals: a transfer
// larger than 1 ETH, a zero-value call to a recipient, and gas usage above
// a simple-call baseline. Scores range from 0 (safe) to 100 and map onto
// three levels. Classification is independent of the score.
package risk

import (
	"errors"
	"fmt"
)

// Level is the three-tier verdict derived from a score.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Category is the coarse intent of a transaction.
type Category string

const (
	CategoryTokenTransfer    Category = "Token Transfer"
	CategoryContractApproval Category = "Contract Approval"
	CategoryDeFi             Category = "DeFi Interaction"
	CategoryNFT              Category = "NFT Interaction"
	CategoryUnknown          Category = "Unknown"
)

// Categories lists the full category domain in display order.
// CategoryContractApproval and CategoryNFT are never produced by Classify;
// they exist so presentation code can render every bucket.
var Categories = []Category{
	CategoryTokenTransfer,
	CategoryContractApproval,
	CategoryDeFi,
	CategoryNFT,
	CategoryUnknown,
}

// Score bounds and signal weights.
const (
	MinScore = 0
	MaxScore = 100

	WeightLargeValue  = 40
	WeightZeroValueTo = 20
	WeightHighGas     = 20
	HighGasThreshold  = 200000
	HighLevelAbove    = 70
	MediumLevelAbove  = 30
)

// Assessment is the result of scoring a single transaction.
type Assessment struct {
	Score int   `json:"score"`
	Level Level `json:"level"`
}

// ErrMalformedTransaction is matched by every *MalformedTransactionError.
var ErrMalformedTransaction = errors.New("risk: malformed transaction")

// MalformedTransactionError reports a numeric field that is not a
// non-negative base-10 integer.
type MalformedTransactionError struct {
	Hash  string
	Field string // "value" or "gasUsed"
	Value string
}

func (e *MalformedTransactionError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("risk: malformed transaction %s: %s %q is not a non-negative integer", e.Hash, e.Field, e.Value)
	}
	return fmt.Sprintf("risk: malformed transaction: %s %q is not a non-negative integer", e.Field, e.Value)
}

func (e *MalformedTransactionError) Is(target error) bool {
	return target == ErrMalformedTransaction
}

// LevelFor maps a score to its level. 70 is Medium and 30 is Low.
func LevelFor(score int) Level {
	switch {
	case score > HighLevelAbove:
		return LevelHigh
	case score > MediumLevelAbove:
		return LevelMedium
	default:
		return LevelLow
	}
}
