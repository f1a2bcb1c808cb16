package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/googlesamples/android-credentials/internal/models"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Redis    RedisConfig
	DynamoDB DynamoDBConfig
	OTP      OTPConfig

	CredentialsFile string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StoreConfig selects the OTP store backend: "redis", "dynamodb" or "memory".
type StoreConfig struct {
	Backend string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type OTPConfig struct {
	Length int
	Expiry time.Duration
}

// TwilioConfig carries the provider credentials. BaseURL is overridable for
// tests and regional endpoints; empty means the public Twilio API.
type TwilioConfig struct {
	AccountSID string `json:"sid"`
	AuthToken  string `json:"auth_token"`
	Sender     string `json:"sender"`
	BaseURL    string `json:"base_url,omitempty"`
}

// Credentials is the startup secret bundle: the SMS provider credentials and
// the static client registry, keyed by client secret.
type Credentials struct {
	Twilio  TwilioConfig                   `json:"twilio"`
	Clients map[string]models.ClientConfig `json:"clients"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Backend: getEnv("OTP_STORE_BACKEND", "redis"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "SmsVerification"),
		},
		OTP: OTPConfig{
			Length: getEnvAsInt("OTP_LENGTH", 6),
			Expiry: getEnvAsDuration("OTP_EXPIRY", 900*time.Second),
		},
		CredentialsFile: getEnv("CREDENTIALS_FILE", "credentials.json"),
	}

	switch cfg.Store.Backend {
	case "redis", "dynamodb", "memory":
	default:
		return nil, fmt.Errorf("unsupported OTP_STORE_BACKEND %q", cfg.Store.Backend)
	}

	if cfg.OTP.Expiry <= 0 {
		return nil, fmt.Errorf("OTP_EXPIRY must be positive")
	}

	return cfg, nil
}

// LoadCredentials reads the clients + provider credentials file written in
// the same layout the original deployment used.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if len(creds.Clients) == 0 {
		return nil, fmt.Errorf("credentials file defines no clients")
	}

	for id, client := range creds.Clients {
		if client.CachePrefix == "" {
			return nil, fmt.Errorf("client %q is missing cache_prefix", id)
		}
		if client.SMSTemplate == "" {
			return nil, fmt.Errorf("client %q is missing sms_template", id)
		}
		client.ID = id
		creds.Clients[id] = client
	}

	return &creds, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
