package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var ErrMissingDBSource = errors.New("database source is required (CONNECTOR_DB_SOURCE or DB_SOURCE)")

// Gateways whose notification source ranges are configurable.
var Gateways = []string{"epdq", "worldpay", "stripe"}

type Config struct {
	DBSource string
	Port     string
	Env      string

	EPDQ     EPDQConfig
	Worldpay WorldpayConfig
	Stripe   StripeConfig

	AuthorisationTimeout time.Duration
	MaxConflictRetries   int

	// NotificationRanges maps gateway name to allowed source CIDRs.
	NotificationRanges map[string][]string

	Capture CaptureConfig
}

type EPDQConfig struct {
	BaseURL     string
	FrontendURL string
	Timeout     time.Duration
}

type WorldpayConfig struct {
	URL     string
	Timeout time.Duration
}

type StripeConfig struct {
	BaseURL       string
	SecretKey     string
	FrontendURL   string
	WebhookSecret string
	Timeout       time.Duration
}

type CaptureConfig struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	Visibility   time.Duration
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

// Load reads configuration from CONNECTOR_* environment variables and, when
// path is non-empty, a YAML file. Environment values win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("connector")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by the existing deployment scripts.
	_ = v.BindEnv("db_source", "CONNECTOR_DB_SOURCE", "DB_SOURCE")
	_ = v.BindEnv("port", "CONNECTOR_PORT", "SERVER_PORT")
	_ = v.BindEnv("env", "CONNECTOR_ENV", "ENVIRONMENT")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		DBSource: v.GetString("db_source"),
		Port:     v.GetString("port"),
		Env:      v.GetString("env"),
		EPDQ: EPDQConfig{
			BaseURL:     v.GetString("epdq.base_url"),
			FrontendURL: v.GetString("epdq.frontend_url"),
			Timeout:     v.GetDuration("epdq.timeout"),
		},
		Worldpay: WorldpayConfig{
			URL:     v.GetString("worldpay.url"),
			Timeout: v.GetDuration("worldpay.timeout"),
		},
		Stripe: StripeConfig{
			BaseURL:       v.GetString("stripe.base_url"),
			SecretKey:     v.GetString("stripe.secret_key"),
			FrontendURL:   v.GetString("stripe.frontend_url"),
			WebhookSecret: v.GetString("stripe.webhook_secret"),
			Timeout:       v.GetDuration("stripe.timeout"),
		},
		AuthorisationTimeout: v.GetDuration("authorisation.timeout"),
		MaxConflictRetries:   v.GetInt("authorisation.max_conflict_retries"),
		NotificationRanges:   make(map[string][]string, len(Gateways)),
		Capture: CaptureConfig{
			Workers:      v.GetInt("capture.workers"),
			BatchSize:    v.GetInt("capture.batch_size"),
			PollInterval: v.GetDuration("capture.poll_interval"),
			Visibility:   v.GetDuration("capture.visibility"),
			MaxAttempts:  v.GetInt("capture.max_attempts"),
			BaseDelay:    v.GetDuration("capture.base_delay"),
			MaxDelay:     v.GetDuration("capture.max_delay"),
		},
	}
	for _, gw := range Gateways {
		cfg.NotificationRanges[gw] = list(v.Get("notifications." + gw + ".allowed_cidrs"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	if c.DBSource == "" {
		return ErrMissingDBSource
	}
	if c.AuthorisationTimeout <= 0 {
		return fmt.Errorf("authorisation timeout must be positive, got %s", c.AuthorisationTimeout)
	}
	if c.Capture.MaxAttempts <= 0 {
		return fmt.Errorf("capture max attempts must be positive, got %d", c.Capture.MaxAttempts)
	}
	if c.Capture.BaseDelay > c.Capture.MaxDelay {
		return fmt.Errorf("capture base delay %s exceeds max delay %s", c.Capture.BaseDelay, c.Capture.MaxDelay)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_source", "")
	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")

	v.SetDefault("epdq.base_url", "https://payments.epdq.co.uk")
	v.SetDefault("epdq.frontend_url", "http://localhost:9000")
	v.SetDefault("epdq.timeout", 30*time.Second)
	v.SetDefault("worldpay.url", "https://secure.worldpay.com/jsp/merchant/xml/paymentService.jsp")
	v.SetDefault("worldpay.timeout", 30*time.Second)
	v.SetDefault("stripe.base_url", "https://api.stripe.com")
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.frontend_url", "http://localhost:9000")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.timeout", 30*time.Second)

	v.SetDefault("authorisation.timeout", 20*time.Second)
	v.SetDefault("authorisation.max_conflict_retries", 3)

	for _, gw := range Gateways {
		v.SetDefault("notifications."+gw+".allowed_cidrs", "")
	}

	v.SetDefault("capture.workers", 4)
	v.SetDefault("capture.batch_size", 10)
	v.SetDefault("capture.poll_interval", time.Second)
	v.SetDefault("capture.visibility", 2*time.Minute)
	v.SetDefault("capture.max_attempts", 10)
	v.SetDefault("capture.base_delay", 5*time.Second)
	v.SetDefault("capture.max_delay", 15*time.Minute)
}

// list accepts a YAML sequence or a comma separated environment value.
func list(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
