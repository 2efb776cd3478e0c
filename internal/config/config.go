package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config carries everything both binaries need. Environment variables win
// over the optional YAML file named by INTERVOX_CONFIG.
type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	TelegramToken string `yaml:"telegram_token"`
	OperatorToken string `yaml:"operator_token"`

	ElevenLabsAPIKey  string `yaml:"elevenlabs_api_key"`
	ElevenLabsBaseURL string `yaml:"elevenlabs_base_url"`
	BaseAgentID       string `yaml:"base_agent_id"`

	DriveParentFolderID string `yaml:"drive_parent_folder_id"`
	ServiceAccountFile  string `yaml:"service_account_file"`

	WebhookSecret string `yaml:"webhook_secret"`

	PollInterval         time.Duration `yaml:"poll_interval"`
	PollTimeout          time.Duration `yaml:"poll_timeout"`
	MaxConcurrentIngests int           `yaml:"max_concurrent_ingests"`
	SessionTTL           time.Duration `yaml:"session_ttl"`

	serviceAccountJSON string
	serviceAccountB64  string
}

func defaults() Config {
	return Config{
		ListenAddr:           ":8080",
		ElevenLabsBaseURL:    "https://api.elevenlabs.io/v1/convai",
		ServiceAccountFile:   "service_account.json",
		PollInterval:         5 * time.Second,
		PollTimeout:          90 * time.Second,
		MaxConcurrentIngests: 32,
		SessionTTL:           30 * time.Minute,
	}
}

// Load reads .env (when present), the optional YAML file, and the
// environment, then validates the collaborator credentials.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("INTERVOX_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	setString(&cfg.ListenAddr, "INTERVOX_LISTEN_ADDR")
	setString(&cfg.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.OperatorToken, "INTERVOX_OPERATOR_TOKEN")
	setString(&cfg.ElevenLabsAPIKey, "ELEVENLABS_API_KEY")
	setString(&cfg.ElevenLabsBaseURL, "ELEVENLABS_BASE_URL")
	setString(&cfg.BaseAgentID, "ELEVENLABS_BASE_AGENT_ID")
	setString(&cfg.DriveParentFolderID, "GOOGLE_DRIVE_PARENT_FOLDER_ID")
	setString(&cfg.ServiceAccountFile, "GOOGLE_SERVICE_ACCOUNT_FILE")
	setString(&cfg.WebhookSecret, "INTERVOX_WEBHOOK_SECRET")

	cfg.serviceAccountJSON = os.Getenv("SERVICE_ACCOUNT_JSON")
	cfg.serviceAccountB64 = os.Getenv("SERVICE_ACCOUNT_B64")

	if err := setDuration(&cfg.PollInterval, "INTERVOX_POLL_INTERVAL"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.PollTimeout, "INTERVOX_POLL_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.SessionTTL, "INTERVOX_SESSION_TTL"); err != nil {
		return Config{}, err
	}
	if err := setInt(&cfg.MaxConcurrentIngests, "INTERVOX_MAX_INGESTS"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.ElevenLabsAPIKey == "" {
		missing = append(missing, "ELEVENLABS_API_KEY")
	}
	if c.BaseAgentID == "" {
		missing = append(missing, "ELEVENLABS_BASE_AGENT_ID")
	}
	if c.DriveParentFolderID == "" {
		missing = append(missing, "GOOGLE_DRIVE_PARENT_FOLDER_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	if c.PollInterval <= 0 || c.PollTimeout <= 0 {
		return errors.New("poll interval and timeout must be positive")
	}
	return nil
}

// ServiceAccount resolves the Google service account credentials. Raw JSON
// and base64 variants exist so the secret can live in a single env var on
// hosts without a writable filesystem.
func (c Config) ServiceAccount() ([]byte, error) {
	if c.serviceAccountJSON != "" {
		return []byte(c.serviceAccountJSON), nil
	}
	if c.serviceAccountB64 != "" {
		data, err := base64.StdEncoding.DecodeString(c.serviceAccountB64)
		if err != nil {
			return nil, fmt.Errorf("decode SERVICE_ACCOUNT_B64: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(c.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}
