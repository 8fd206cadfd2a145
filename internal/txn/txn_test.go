package txn

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTransaction_Involves(t *testing.T) {
	tx := RawTransaction{
		From: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		To:   "0x1234567890123456789012345678901234567890",
	}

	assert.True(t, tx.Involves("0x742d35cc6634c0532925a3b844bc454e4438f44e"))
	assert.True(t, tx.Involves("0x1234567890123456789012345678901234567890"))
	assert.False(t, tx.Involves("0x0000000000000000000000000000000000000001"))

	creation := RawTransaction{From: tx.From}
	assert.False(t, creation.Involves(""), "empty recipient never matches")
	assert.False(t, creation.HasRecipient())
}

func TestRawTransaction_JSONOmitsEmptyRecipient(t *testing.T) {
	b, err := json.Marshal(RawTransaction{Hash: "0x01", From: "0xaa", Value: "0", GasUsed: "53000", BlockTimestamp: 7})
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"to"`)
	assert.Contains(t, string(b), `"gasUsed":"53000"`)
	assert.Contains(t, string(b), `"blockTimestamp":7`)
}

func TestDemoTransactions(t *testing.T) {
	now := time.Unix(1710000000, 0)
	demo := DemoTransactions(now)
	require.Len(t, demo, 2)

	assert.Equal(t, "1500000000000000000", demo[0].Value)
	assert.Equal(t, "21000", demo[0].GasUsed)
	assert.Equal(t, now.Add(-time.Hour).Unix(), demo[0].BlockTimestamp)

	assert.Equal(t, "0", demo[1].Value)
	assert.Equal(t, "250000", demo[1].GasUsed)
	assert.Equal(t, now.Add(-2*time.Hour).Unix(), demo[1].BlockTimestamp)
	assert.Equal(t, demo[0].From, demo[1].To)

	// Callers may mutate the result without affecting later calls.
	demo[0].Value = "1"
	assert.Equal(t, "1500000000000000000", DemoTransactions(now)[0].Value)
}

func TestRawTransaction_Time(t *testing.T) {
	tx := RawTransaction{BlockTimestamp: 1710000000}
	assert.Equal(t, time.Unix(1710000000, 0).UTC(), tx.Time())
}
