package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMSISDN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0241234567", "233241234567"},
		{"024 123 4567", "233241234567"},
		{"+233 24 123 4567", "233241234567"},
		{"00233241234567", "233241234567"},
		{"233241234567", "233241234567"},
		{"241234567", "233241234567"},
	}
	for _, tt := range tests {
		got, err := NormalizeMSISDN(tt.in, "233")
		require.NoErrorf(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNormalizeMSISDN_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "024-12x-4567", "12345", "1234567890123456"} {
		_, err := NormalizeMSISDN(in, "233")
		assert.Errorf(t, err, "input %q", in)
	}
}

func TestConfigCallbackURL(t *testing.T) {
	cfg := Config{CallbackBaseURL: "https://votes.example.com/"}
	assert.Equal(t, "https://votes.example.com/webhooks/payment", cfg.CallbackURL())
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig("https://gateway.example.com")
	assert.NoError(t, cfg.Validate())

	cfg.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = testConfig("https://gateway.example.com")
	cfg.ConnectTimeout = cfg.Timeout
	assert.Error(t, cfg.Validate())
}
