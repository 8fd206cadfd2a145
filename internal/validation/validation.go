// Package validation provides request validation helpers and middleware
// for the TxSentinel API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MaxRequestSize is the maximum request body size (64KB)
const MaxRequestSize = 64 << 10

var (
	ethAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	txHashRegex     = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	integerRegex    = regexp.MustCompile(`^[0-9]+$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEthAddress checks if a string is a 0x-prefixed 20-byte hex address
func IsValidEthAddress(addr string) bool {
	return ethAddressRegex.MatchString(addr)
}

// IsValidTxHash checks if a string is a 0x-prefixed 32-byte hex hash
func IsValidTxHash(hash string) bool {
	return txHashRegex.MatchString(hash)
}

// SanitizeString trims, truncates and strips NUL bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// SanitizeAddress trims an address and adds a missing 0x prefix. Case is
// preserved so checksummed input stays checksummed.
func SanitizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") && len(addr) == 40 {
		addr = "0x" + addr
	}
	return addr
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs every validator and collects the failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAddress checks if a field is a valid Ethereum address. Empty passes;
// combine with Required.
func ValidAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidEthAddress(value) {
			return &ValidationError{Field: field, Message: "must be a valid Ethereum address (0x + 40 hex chars)"}
		}
		return nil
	}
}

// ValidAddresses checks every element of an address list.
func ValidAddresses(field string, values []string) func() *ValidationError {
	return func() *ValidationError {
		for _, v := range values {
			if !IsValidEthAddress(v) {
				return &ValidationError{Field: field, Message: "must contain only valid Ethereum addresses"}
			}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ValidInteger checks that a field is a non-negative base-10 integer, the
// wire form of wei amounts and gas.
func ValidInteger(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !integerRegex.MatchString(value) {
			return &ValidationError{Field: field, Message: "must be a non-negative integer"}
		}
		return nil
	}
}

// ValidEther checks that a field is a non-negative decimal ether amount
// with at most 18 fractional digits.
func ValidEther(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		d, err := decimal.NewFromString(value)
		if err != nil || strings.ContainsAny(value, "eE") {
			return &ValidationError{Field: field, Message: "invalid ether amount"}
		}
		if d.IsNegative() {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
		if -d.Exponent() > 18 && !d.Equal(d.Truncate(18)) {
			return &ValidationError{Field: field, Message: "has more than 18 decimal places"}
		}
		return nil
	}
}

// AddressParamMiddleware rejects a malformed :address URL parameter.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Param("address")
		if addr != "" && !IsValidEthAddress(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a valid Ethereum address (0x + 40 hex chars)",
			})
			return
		}
		c.Next()
	}
}

// HashParamMiddleware rejects a malformed :hash URL parameter.
func HashParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := c.Param("hash")
		if hash != "" && !IsValidTxHash(hash) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_hash",
				"message": "hash must be a transaction hash (0x + 64 hex chars)",
			})
			return
		}
		c.Next()
	}
}
