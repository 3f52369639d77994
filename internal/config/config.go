package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the api and worker processes.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Telephony  TelephonyConfig
	Generative GenerativeConfig
	Queue      QueueConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// TelephonyConfig carries the process-wide provider credentials.
// These are the fallback when a tenant has no credentials of its own;
// see internal/creds for the resolution order.
type TelephonyConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// WebhookBaseURL is the public base URL the provider calls back on,
	// e.g. https://api.example.com. Webhook paths are appended to it.
	WebhookBaseURL string
}

type GenerativeConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type QueueConfig struct {
	// MaxAttempts is the number of delivery attempts per dial job.
	MaxAttempts int
	// BackoffBase is the delay before the first retry; it doubles per attempt.
	BackoffBase time.Duration
	// LeaseTimeout is how long a dequeued job may sit in a worker's
	// processing list before it is considered abandoned.
	LeaseTimeout time.Duration
	// MaxConcurrentCalls caps simultaneous outbound calls per tenant.
	MaxConcurrentCalls int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Telephony.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Telephony.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Telephony.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Telephony.WebhookBaseURL = strings.TrimSpace(os.Getenv("WEBHOOK_BASE_URL"))

	c.Generative.BaseURL = strings.TrimSpace(os.Getenv("GENERATIVE_BASE_URL"))
	c.Generative.APIKey = os.Getenv("GENERATIVE_API_KEY")
	c.Generative.Model = strings.TrimSpace(os.Getenv("GENERATIVE_MODEL"))

	{
		n, err := mustInt("QUEUE_MAX_ATTEMPTS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Queue.MaxAttempts = n
	}
	c.Queue.BackoffBase = mustDuration("QUEUE_BACKOFF_BASE")
	c.Queue.LeaseTimeout = mustDuration("QUEUE_LEASE_TIMEOUT")
	{
		n, err := mustInt("QUEUE_MAX_CONCURRENT_CALLS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Queue.MaxConcurrentCalls = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}

	if c.Telephony.WebhookBaseURL == "" {
		errs = append(errs, errors.New("WEBHOOK_BASE_URL is required"))
	} else if !strings.HasPrefix(c.Telephony.WebhookBaseURL, "http://") && !strings.HasPrefix(c.Telephony.WebhookBaseURL, "https://") {
		errs = append(errs, fmt.Errorf("WEBHOOK_BASE_URL must be an absolute URL, got %q", c.Telephony.WebhookBaseURL))
	}
	// Account credentials are optional at the process level: tenants may
	// carry their own (see internal/creds). If one of the pair is set, both
	// must be.
	if (c.Telephony.AccountSID == "") != (c.Telephony.AuthToken == "") {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set together"))
	}

	if c.Generative.Model == "" {
		c.Generative.Model = "gpt-4o-mini"
	}

	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.BackoffBase <= 0 {
		c.Queue.BackoffBase = 2 * time.Second
	}
	if c.Queue.LeaseTimeout <= 0 {
		c.Queue.LeaseTimeout = 5 * time.Minute
	}
	if c.Queue.MaxConcurrentCalls <= 0 {
		c.Queue.MaxConcurrentCalls = 5
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool { return c.App.Env == "production" }

func (c Config) HTTPAddr() string { return fmt.Sprintf(":%d", c.App.Port) }

func (c Config) RedisAddr() string { return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port) }

// PostgresDSN builds a key/value DSN. Never log the result; it contains secrets.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

func isValidEnv(env string) bool {
	switch env {
	case "local", "dev", "staging", "production":
		return true
	}
	return false
}

func isValidSSLMode(mode string) bool {
	switch mode {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	}
	return false
}

func mustInt(key string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		return 0, append(errs, err)
	}
	return n, errs
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
