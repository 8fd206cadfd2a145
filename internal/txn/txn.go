// Package txn defines the transaction records that flow through the
// pipeline: raw transactions from the chain, and the enriched records
// published to the presentation layer.
package txn

import (
	"strings"
	"time"
)

// RawTransaction is a transaction as fetched from the chain data source.
// Value and GasUsed are base-10 integer strings; Value is in wei and may
// exceed 64 bits. An empty To means contract creation.
type RawTransaction struct {
	Hash           string `json:"hash"`
	From           string `json:"from"`
	To             string `json:"to,omitempty"`
	Value          string `json:"value"`
	GasUsed        string `json:"gasUsed"`
	BlockTimestamp int64  `json:"blockTimestamp"`
}

// HasRecipient reports whether the transaction targets an address.
func (t RawTransaction) HasRecipient() bool {
	return t.To != ""
}

// Involves reports whether address is the sender or the recipient.
// Comparison is case-insensitive so checksummed and lowercase hex match.
func (t RawTransaction) Involves(address string) bool {
	return strings.EqualFold(t.From, address) || (t.To != "" && strings.EqualFold(t.To, address))
}

// Time returns the block timestamp as a time.Time.
func (t RawTransaction) Time() time.Time {
	return time.Unix(t.BlockTimestamp, 0).UTC()
}

// DemoTransactions returns the two fixture transactions substituted when
// the chain yields nothing for the connected wallet: a 1.5 ETH transfer an
// hour before now and a zero-value contract call two hours before now.
// A fresh slice is returned on every call.
func DemoTransactions(now time.Time) []RawTransaction {
	const (
		demoWallet  = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
		demoCounter = "0x1234567890123456789012345678901234567890"
	)
	return []RawTransaction{
		{
			Hash:           "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef",
			From:           demoWallet,
			To:             demoCounter,
			Value:          "1500000000000000000",
			GasUsed:        "21000",
			BlockTimestamp: now.Add(-time.Hour).Unix(),
		},
		{
			Hash:           "0xabcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890",
			From:           demoCounter,
			To:             demoWallet,
			Value:          "0",
			GasUsed:        "250000",
			BlockTimestamp: now.Add(-2 * time.Hour).Unix(),
		},
	}
}
