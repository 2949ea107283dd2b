package payment

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/VoteFox/internal/pkg/constants"
	"github.com/ManuelReschke/VoteFox/internal/pkg/env"
)

const (
	defaultProvider       = "payproxy"
	defaultTimeout        = 15 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultCountryCode    = "233"
)

// Config holds provider credentials and endpoints. It is built once at startup
// and injected into the client and the orchestrator.
type Config struct {
	Provider        string        `validate:"required"`
	BaseURL         string        `validate:"required,url"`
	APIKey          string        `validate:"required"`
	APISecret       string        `validate:"required"`
	MerchantID      string        `validate:"omitempty"`
	CallbackBaseURL string        `validate:"required,url"`
	WebhookSecret   string        `validate:"omitempty"`
	CountryCode     string        `validate:"required,numeric,min=1,max=3"`
	Timeout         time.Duration `validate:"gt=0"`
	ConnectTimeout  time.Duration `validate:"gt=0,ltfield=Timeout"`
}

// ConfigFromEnv reads the PAYMENT_* settings
func ConfigFromEnv() Config {
	timeout := defaultTimeout
	if secs := env.GetEnvInt("PAYMENT_TIMEOUT_SECONDS", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	connectTimeout := defaultConnectTimeout
	if connectTimeout >= timeout {
		connectTimeout = timeout * 2 / 3
	}

	return Config{
		Provider:        strings.TrimSpace(env.GetEnv("PAYMENT_PROVIDER", defaultProvider)),
		BaseURL:         strings.TrimRight(strings.TrimSpace(env.GetEnv("PAYMENT_API_BASE_URL", "")), "/"),
		APIKey:          strings.TrimSpace(env.GetEnv("PAYMENT_API_KEY", "")),
		APISecret:       strings.TrimSpace(env.GetEnv("PAYMENT_API_SECRET", "")),
		MerchantID:      strings.TrimSpace(env.GetEnv("PAYMENT_MERCHANT_ID", "")),
		CallbackBaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("PUBLIC_DOMAIN", "")), "/"),
		WebhookSecret:   strings.TrimSpace(env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")),
		CountryCode:     strings.TrimSpace(env.GetEnv("MSISDN_COUNTRY_CODE", defaultCountryCode)),
		Timeout:         timeout,
		ConnectTimeout:  connectTimeout,
	}
}

// Validate checks that every required setting is present
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// CallbackURL is the public address of the payment webhook endpoint
func (c Config) CallbackURL() string {
	return strings.TrimRight(c.CallbackBaseURL, "/") + constants.PaymentWebhookRoute
}
