package ether

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInteger(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"zero", "0", "0", true},
		{"one ether", "1000000000000000000", "1000000000000000000", true},
		{"beyond uint64", "123456789012345678901234567890", "123456789012345678901234567890", true},
		{"leading zeros", "000021000", "21000", true},
		{"empty", "", "", false},
		{"negative", "-1", "", false},
		{"plus sign", "+1", "", false},
		{"decimal point", "1.5", "", false},
		{"hex", "0x10", "", false},
		{"whitespace", " 1", "", false},
		{"letters", "abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseInteger(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				require.NotNil(t, got)
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		wei  *big.Int
		want string
	}{
		{"nil", nil, "0.0"},
		{"zero", big.NewInt(0), "0.0"},
		{"one wei", big.NewInt(1), "0.000000000000000001"},
		{"one and a half", mustParse(t, "1500000000000000000"), "1.5"},
		{"two", mustParse(t, "2000000000000000000"), "2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.wei))
		})
	}
}

func TestFormatString_Invalid(t *testing.T) {
	assert.Equal(t, "oops", FormatString("oops"))
	assert.Equal(t, "1.5", FormatString("1500000000000000000"))
}

func TestFormatFixed(t *testing.T) {
	assert.Equal(t, "1.2346", FormatFixed(mustParse(t, "1234567000000000000"), 4))
	assert.Equal(t, "0.0000", FormatFixed(big.NewInt(0), 4))
}

func TestToEther_ExactComparisons(t *testing.T) {
	oneEth := ToEther(WeiPerEther())
	assert.True(t, oneEth.Equal(ToEther(mustParse(t, "1000000000000000000"))))

	justAbove := ToEther(mustParse(t, "1000000000000000001"))
	assert.True(t, justAbove.GreaterThan(oneEth))

	assert.True(t, ToEther(big.NewInt(0)).IsZero())
	assert.True(t, ToEther(big.NewInt(1)).IsPositive())
}

func TestFromEther(t *testing.T) {
	wei, ok := FromEther("1.5")
	require.True(t, ok)
	assert.Equal(t, "1500000000000000000", wei.String())

	wei, ok = FromEther("0.0000000000000000019")
	require.True(t, ok)
	assert.Equal(t, "1", wei.String())

	_, ok = FromEther("-1")
	assert.False(t, ok)
	_, ok = FromEther("abc")
	assert.False(t, ok)
}

func mustParse(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := ParseInteger(s)
	require.True(t, ok)
	return v
}
