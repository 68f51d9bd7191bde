package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Storage  StorageConfig  `yaml:"storage"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Reminder ReminderConfig `yaml:"reminder"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	APIToken string `yaml:"api_token"`
}

type GeminiConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	TextModel  string `yaml:"text_model"`
	EmbedModel string `yaml:"embed_model"`
	EmbedDim   int    `yaml:"embed_dim"`
}

type WhatsAppConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	AppURL     string `yaml:"app_url"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type IngestConfig struct {
	PollInterval string `yaml:"poll_interval"`
}

type ReminderConfig struct {
	SweepInterval string `yaml:"sweep_interval"`
	BatchPerUser  int    `yaml:"batch_per_user"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4700,
		},
		Gemini: GeminiConfig{
			BaseURL:    "https://generativelanguage.googleapis.com",
			TextModel:  "gemini-1.5-flash",
			EmbedModel: "gemini-embedding-001",
			EmbedDim:   768,
		},
		WhatsApp: WhatsAppConfig{
			FromNumber: "whatsapp:+14155238886",
			AppURL:     "https://secondbrain.app",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Ingest: IngestConfig{
			PollInterval: "500ms",
		},
		Reminder: ReminderConfig{
			SweepInterval: "1h",
			BatchPerUser:  10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "secondbrain-data"
		}
	}
	return filepath.Join(dir, "secondbrain")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "secondbrain", "config.yaml")
}

// Load reads configuration from the YAML config file (if present) and
// applies SECONDBRAIN_* environment variable overrides on top of defaults.
// Secrets (Gemini API key, Twilio credentials, API bearer token) are
// normally provided via the environment. Safe to call more than once;
// returns a fresh value each time with no package-level state.
func Load() (Config, error) {
	return loadFrom(configFilePath())
}

func loadFrom(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Reminder.BatchPerUser <= 0 {
		cfg.Reminder.BatchPerUser = 10
	}
	if cfg.Gemini.EmbedDim <= 0 {
		cfg.Gemini.EmbedDim = 768
	}

	return cfg, nil
}

// ParseDuration parses a config duration string, falling back to def when
// the value is empty or malformed.
func ParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SECONDBRAIN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SECONDBRAIN_API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("SECONDBRAIN_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SECONDBRAIN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("SECONDBRAIN_GEMINI_BASE_URL"); v != "" {
		cfg.Gemini.BaseURL = v
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.WhatsApp.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		cfg.WhatsApp.AuthToken = v
	}
	if v := os.Getenv("TWILIO_WHATSAPP_NUMBER"); v != "" {
		cfg.WhatsApp.FromNumber = v
	}
	if v := os.Getenv("SECONDBRAIN_APP_URL"); v != "" {
		cfg.WhatsApp.AppURL = v
	}
}
