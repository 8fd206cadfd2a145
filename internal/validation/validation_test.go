package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x1234567890123456789012345678901234567890", true},
		{"0xabcdefABCDEF1234567890123456789012345678", true},
		{"0x0000000000000000000000000000000000000000", true},

		{"1234567890123456789012345678901234567890", false},     // No 0x
		{"0x12345678901234567890123456789012345678", false},     // Too short
		{"0x123456789012345678901234567890123456789012", false}, // Too long
		{"0xGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG", false},   // Invalid chars
		{"", false},
		{"0x", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.valid, IsValidEthAddress(tc.addr), tc.addr)
	}
}

func TestIsValidTxHash(t *testing.T) {
	good := "0x" + strings.Repeat("ab", 32)
	assert.True(t, IsValidTxHash(good))
	assert.True(t, IsValidTxHash("0x"+strings.Repeat("AB", 32)))
	assert.False(t, IsValidTxHash(good[:65]))
	assert.False(t, IsValidTxHash(strings.Repeat("ab", 32)))
	assert.False(t, IsValidTxHash("0x"+strings.Repeat("zz", 32)))
	assert.False(t, IsValidTxHash("0xfeed"))
}

func TestSanitizeAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0x1234567890123456789012345678901234567890", "0x1234567890123456789012345678901234567890"},
		{"0x742d35Cc6634C0532925a3b844Bc454e4438f44e", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"},
		{"  0x1234567890123456789012345678901234567890  ", "0x1234567890123456789012345678901234567890"},
		{"1234567890123456789012345678901234567890", "0x1234567890123456789012345678901234567890"},
		{"abc", "abc"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, SanitizeAddress(tc.input), tc.input)
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, SanitizeString(tc.input, tc.maxLen))
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("address", "0x1234567890123456789012345678901234567890"),
		ValidAddress("address", "0x1234567890123456789012345678901234567890"),
	)
	assert.Empty(t, errs)

	errs = Validate(
		Required("address", " "),
		ValidAddress("to", "invalid"),
		ValidInteger("value", "1.5"),
	)
	assert.Len(t, errs, 3)
	assert.Equal(t, "address: is required", errs.Error())
	assert.Equal(t, "validation failed", ValidationErrors(nil).Error())
}

func TestValidAddresses(t *testing.T) {
	ok := []string{"0x1234567890123456789012345678901234567890", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"}
	assert.Nil(t, ValidAddresses("accounts", ok)())
	assert.Nil(t, ValidAddresses("accounts", nil)(), "empty list means disconnected")
	assert.NotNil(t, ValidAddresses("accounts", append(ok, "0xnope"))())
}

func TestValidInteger(t *testing.T) {
	for _, v := range []string{"", "0", "21000", "123456789012345678901234567890"} {
		assert.Nil(t, ValidInteger("value", v)(), v)
	}
	for _, v := range []string{"-1", "1.5", "0x10", "1e18", " 1"} {
		assert.NotNil(t, ValidInteger("value", v)(), v)
	}
}

func TestValidEther(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"", true},
		{"0", true},
		{"1.5", true},
		{"0.000000000000000001", true},
		{"100", true},

		{"-1", false},
		{"abc", false},
		{"1e3", false},
		{"0.0000000000000000001", false},
	}

	for _, tc := range tests {
		err := ValidEther("eth", tc.value)()
		assert.Equal(t, tc.valid, err == nil, tc.value)
	}
}

func TestMaxLength(t *testing.T) {
	assert.Nil(t, MaxLength("field", "hello", 10)())
	assert.Nil(t, MaxLength("field", "hello", 5)())
	assert.NotNil(t, MaxLength("field", "hello world", 5)())
}

func TestParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/a/:address", AddressParamMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/t/:hash", HashParamMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		path string
		want int
	}{
		{"/a/0x1234567890123456789012345678901234567890", http.StatusOK},
		{"/a/0x1234", http.StatusBadRequest},
		{"/t/0x" + strings.Repeat("0f", 32), http.StatusOK},
		{"/t/0xfeed", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.want, w.Code, tt.path)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestSizeMiddleware(8))
	router.POST("/", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"far too long"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
