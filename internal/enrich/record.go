// Package enrich assembles enriched transaction records: each raw
// transaction is scored, classified and explained, and the batch is
// released only when every explanation has settled.
package enrich

import (
	"github.com/mbd888/txsentinel/internal/explainer"
	"github.com/mbd888/txsentinel/internal/risk"
	"github.com/mbd888/txsentinel/internal/txn"
)

// State of the AI analysis attached to a record.
type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Analysis is the AI result for one record. A failed analysis carries the
// placeholder explanation and the error that caused it.
type Analysis struct {
	State       State                  `json:"state"`
	Explanation *explainer.Explanation `json:"explanation,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func Pending() Analysis {
	return Analysis{State: StatePending}
}

func Ready(exp explainer.Explanation) Analysis {
	return Analysis{State: StateReady, Explanation: &exp}
}

func Failed(err error) Analysis {
	exp := explainer.Placeholder()
	a := Analysis{State: StateFailed, Explanation: &exp}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Text returns the explanation to display, if any.
func (a Analysis) Text() (explainer.Explanation, bool) {
	if a.Explanation == nil {
		return explainer.Explanation{}, false
	}
	return *a.Explanation, true
}

// Record is a raw transaction with exactly one assessment, one category
// and one analysis. ID is unique per record even when hashes repeat.
type Record struct {
	ID string `json:"id"`
	txn.RawTransaction
	Risk     risk.Assessment `json:"risk"`
	Context  risk.Category   `json:"context"`
	Analysis Analysis        `json:"analysis"`
}

// Rejection reports a transaction dropped from a batch.
type Rejection struct {
	Hash  string `json:"hash"`
	Error string `json:"error"`
}

// Result is one assembled batch.
type Result struct {
	Records  []Record    `json:"records"`
	Rejected []Rejection `json:"rejected,omitempty"`
	Demo     bool        `json:"demo"`
}

// HighRisk counts records at LevelHigh.
func (r Result) HighRisk() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Risk.Level == risk.LevelHigh {
			n++
		}
	}
	return n
}

// Find returns the first record with the given hash.
func (r Result) Find(hash string) (Record, bool) {
	for _, rec := range r.Records {
		if rec.Hash == hash {
			return rec, true
		}
	}
	return Record{}, false
}
