package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// Payment gateway credentials. The provider key selects the adapter
	// from the registry; secret key signs outbound calls and verifies
	// inbound webhook signatures.
	GatewayProvider    string
	GatewayBaseURL     string
	GatewaySecretKey   string
	GatewayCallbackURL string
	GatewayTimeout     time.Duration

	// Fallback per-slot amount (minor units) for chapters with no
	// configured rate.
	DefaultPerSlotAmount int64

	// Pending purchases older than ReconcilePendingAge are re-verified by
	// the poller every ReconcileInterval.
	ReconcileInterval   time.Duration
	ReconcilePendingAge time.Duration
	ReconcileBatchSize  int

	SeedDemoData bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "examslots"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPPort:    getenv("HTTP_PORT", "8080"),
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "examslots"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		GatewayProvider:    strings.ToLower(getenv("GATEWAY_PROVIDER", "paystack")),
		GatewayBaseURL:     strings.TrimRight(getenv("GATEWAY_BASE_URL", "https://api.paystack.co"), "/"),
		GatewaySecretKey:   strings.TrimSpace(getenv("GATEWAY_SECRET_KEY", "")),
		GatewayCallbackURL: strings.TrimSpace(getenv("GATEWAY_CALLBACK_URL", "")),
		GatewayTimeout:     getenvDuration("GATEWAY_TIMEOUT", 15*time.Second),

		DefaultPerSlotAmount: getenvInt64("DEFAULT_PER_SLOT_AMOUNT", 250000),

		ReconcileInterval:   getenvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcilePendingAge: getenvDuration("RECONCILE_PENDING_AGE", 10*time.Minute),
		ReconcileBatchSize:  getenvInt("RECONCILE_BATCH_SIZE", 50),

		SeedDemoData: getenvBool("SEED_DEMO_DATA", environment != "production"),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid int for %s: %q", key, raw)
		return fallback
	}
	return v
}

func getenvInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("config: invalid int for %s: %q", key, raw)
		return fallback
	}
	return v
}

func getenvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: invalid duration for %s: %q", key, raw)
		return fallback
	}
	return v
}
