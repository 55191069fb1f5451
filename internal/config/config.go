package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Ledger drivers.
const (
	LedgerMemory   = "memory"
	LedgerBolt     = "bolt"
	LedgerPostgres = "postgres"
)

type Config struct {
	Development bool
	// API configuration
	APIPort        int
	JWTSecret      string
	JWTTTL         time.Duration
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int

	// Wallet (Pi Network) configuration
	PiAPIURL     string
	PiAPIKey     string
	PiSDKVersion string
	PiSandbox    bool

	// Aggregator (Reloadly) configuration
	ReloadlyAuthURL      string
	ReloadlyBaseURL      string
	ReloadlyAudience     string
	ReloadlyClientID     string
	ReloadlyClientSecret string
	ReloadlyTimeout      time.Duration
	ReloadlyRPS          float64

	// Purchase configuration
	TopupCountry       string
	DirectoryCountries []string
	PiUSDRate          decimal.Decimal
	InitialBalance     decimal.Decimal
	SeedDemoData       bool
	CatalogFile        string
	StatusPollInterval time.Duration

	// Ledger configuration
	LedgerDriver string
	BoltPath     string
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	// SMTP configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string
	AlertEmail   string

	// Notification configuration
	TelegramBotToken string
	TelegramChatID   string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:    getEnvAsBool("DEVELOPMENT", false),
		APIPort:        getEnvAsInt("API_PORT", 6532),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTTTL:         time.Duration(getEnvAsInt("JWT_TTL_MINUTES", 24*60)) * time.Minute,
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),

		PiAPIURL:     getEnv("PI_API_URL", "https://api.minepi.com"),
		PiAPIKey:     getEnv("PI_API_KEY", ""),
		PiSDKVersion: getEnv("PI_SDK_VERSION", "2.0"),
		PiSandbox:    getEnvAsBool("PI_SANDBOX", true),

		ReloadlyAuthURL:      getEnv("RELOADLY_AUTH_URL", "https://auth-sandbox.reloadly.com/oauth/token"),
		ReloadlyBaseURL:      getEnv("RELOADLY_BASE_URL", "https://topups-sandbox.reloadly.com"),
		ReloadlyAudience:     getEnv("RELOADLY_AUDIENCE", ""),
		ReloadlyClientID:     getEnv("RELOADLY_CLIENT_ID", ""),
		ReloadlyClientSecret: getEnv("RELOADLY_CLIENT_SECRET", ""),
		ReloadlyTimeout:      time.Duration(getEnvAsInt("RELOADLY_TIMEOUT_SECONDS", 30)) * time.Second,
		ReloadlyRPS:          getEnvAsFloat("RELOADLY_RPS", 10),

		TopupCountry:       getEnv("TOPUP_COUNTRY", "US"),
		DirectoryCountries: getEnvAsList("DIRECTORY_COUNTRIES", nil),
		PiUSDRate:          getEnvAsDecimal("PI_USD_RATE", decimal.NewFromInt(2)),
		InitialBalance:     getEnvAsDecimal("INITIAL_BALANCE", decimal.RequireFromString("127.45")),
		SeedDemoData:       getEnvAsBool("SEED_DEMO_DATA", false),
		CatalogFile:        getEnv("CATALOG_FILE", ""),
		StatusPollInterval: time.Duration(getEnvAsInt("STATUS_POLL_SECONDS", 10)) * time.Second,

		LedgerDriver:     getEnv("LEDGER_DRIVER", LedgerMemory),
		BoltPath:         getEnv("BOLT_PATH", "pitopup.db"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "pitopup"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPSender:   getEnv("SMTP_SENDER", ""),
		AlertEmail:   getEnv("ALERT_EMAIL", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
	if len(cfg.DirectoryCountries) == 0 {
		cfg.DirectoryCountries = []string{cfg.TopupCountry}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.PiAPIKey == "" {
		return fmt.Errorf("PI_API_KEY is required")
	}

	if c.PiSDKVersion == "" {
		return fmt.Errorf("PI_SDK_VERSION is required")
	}

	if c.ReloadlyClientID == "" || c.ReloadlyClientSecret == "" {
		return fmt.Errorf("RELOADLY_CLIENT_ID and RELOADLY_CLIENT_SECRET are required")
	}

	if c.ReloadlyAuthURL == "" || c.ReloadlyBaseURL == "" {
		return fmt.Errorf("RELOADLY_AUTH_URL and RELOADLY_BASE_URL are required")
	}

	if len(c.TopupCountry) != 2 {
		return fmt.Errorf("TOPUP_COUNTRY must be an ISO 3166 alpha-2 code, got %q", c.TopupCountry)
	}

	if !c.PiUSDRate.IsPositive() {
		return fmt.Errorf("PI_USD_RATE must be positive")
	}

	if c.InitialBalance.IsNegative() {
		return fmt.Errorf("INITIAL_BALANCE must not be negative")
	}

	if c.StatusPollInterval <= 0 {
		return fmt.Errorf("STATUS_POLL_SECONDS must be positive")
	}

	switch c.LedgerDriver {
	case LedgerMemory:
	case LedgerBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required for the bolt ledger")
		}
	case LedgerPostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	default:
		return fmt.Errorf("unknown LEDGER_DRIVER %q", c.LedgerDriver)
	}

	return nil
}

// ReloadlyAudienceOrDefault returns the OAuth audience, which defaults to the
// top-up API base URL.
func (c *Config) ReloadlyAudienceOrDefault() string {
	if c.ReloadlyAudience != "" {
		return c.ReloadlyAudience
	}
	return c.ReloadlyBaseURL
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDecimal(name string, defaultValue decimal.Decimal) decimal.Decimal {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := decimal.NewFromString(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsList(name string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
