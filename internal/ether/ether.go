// Package ether provides shared wei parsing and ETH formatting utilities.
//
// ETH uses 18 decimal places. Raw amounts travel as base-10 wei strings
// and are held as big.Int; conversions to the major unit go through
// shopspring/decimal so comparisons against 0 and 1 ETH are exact.
package ether

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const Decimals = 18

// weiPerEther is 10^18.
var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ParseInteger parses a non-negative base-10 integer of arbitrary size.
// Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string is rejected
//   - Signs, decimal points, whitespace and hex prefixes are rejected
func ParseInteger(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, false
		}
	}
	return new(big.Int).SetString(s, 10)
}

// ToEther converts a wei amount to ETH without rounding.
func ToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -Decimals)
}

// Format converts wei to a human-readable ETH string at full precision,
// always carrying at least one fractional digit ("1.5", "2.0", "0.0").
func Format(wei *big.Int) string {
	s := ToEther(wei).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatString is Format for a raw wei string. Invalid input is returned
// unchanged so display code never fails.
func FormatString(wei string) string {
	v, ok := ParseInteger(wei)
	if !ok {
		return wei
	}
	return Format(v)
}

// FormatFixed renders wei as ETH with exactly places fractional digits.
func FormatFixed(wei *big.Int, places int32) string {
	return ToEther(wei).StringFixed(places)
}

// FromEther converts a decimal ETH string ("1.5") to wei. Fractional
// digits beyond 18 places are truncated. Returns (nil, false) on invalid
// or negative input.
func FromEther(s string) (*big.Int, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return nil, false
	}
	return d.Shift(Decimals).Truncate(0).BigInt(), true
}

// WeiPerEther returns a copy of 10^18.
func WeiPerEther() *big.Int {
	return new(big.Int).Set(weiPerEther)
}
