package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"

	StoreBackendFirestore = "firestore"
	StoreBackendMemory    = "memory"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	Environment     string
	LogLevel        string

	FirebaseServiceAccountJSON string
	FirebaseServiceAccountPath string

	// AllowedOrigins restricts CORS and WebSocket origins; empty allows any.
	AllowedOrigins []string

	// StoreBackend selects the document store: "firestore" or "memory".
	StoreBackend string

	ReadReceiptThrottle  time.Duration
	UnreadDebounce       time.Duration
	DeselectRefreshDelay time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:                 getEnv("SERVER_PORT", "8080"),
		FirebaseProject:            getEnv("FIREBASE_PROJECT_ID", ""),
		Environment:                getEnv("ENVIRONMENT", EnvironmentProduction),
		LogLevel:                   getEnv("LOG_LEVEL", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		AllowedOrigins:             getEnvAsList("ALLOWED_ORIGINS"),
		StoreBackend:               getEnv("STORE_BACKEND", ""),
		ReadReceiptThrottle:        getEnvAsDuration("READ_RECEIPT_THROTTLE", time.Second),
		UnreadDebounce:             getEnvAsDuration("UNREAD_DEBOUNCE", 2*time.Second),
		DeselectRefreshDelay:       getEnvAsDuration("DESELECT_REFRESH_DELAY", 500*time.Millisecond),
	}

	if config.StoreBackend == "" {
		config.StoreBackend = StoreBackendFirestore
		if config.IsDevelopment() && config.FirebaseProject == "" {
			config.StoreBackend = StoreBackendMemory
		}
	}

	return config, nil
}

// IsDevelopment is true only when ENVIRONMENT=development is set explicitly.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("750ms") or a bare number of milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if ms := getEnvAsInt64(key, -1); ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
