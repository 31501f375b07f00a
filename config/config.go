package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "TIMEBANK_"

type Config struct {
	API         APIConfig         `yaml:"api"`
	Chat        ChatConfig        `yaml:"chat"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Rating      RatingConfig      `yaml:"rating"`
	Location    LocationConfig    `yaml:"location"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ChatConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type CredentialsConfig struct {
	File       string `yaml:"file"`
	Passphrase string `yaml:"passphrase"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig points at the optional action journal.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RatingConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type LocationConfig struct {
	SamplerURL  string        `yaml:"sampler_url"`
	Accuracy    float64       `yaml:"accuracy"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		API:         APIConfig{BaseURL: "http://localhost:8000", Timeout: 10 * time.Second},
		Chat:        ChatConfig{PollInterval: 3 * time.Second},
		Credentials: CredentialsConfig{File: defaultCredentialFile(), Passphrase: "timebank"},
		Log:         LogConfig{Level: "info"},
		Database:    DatabaseConfig{MaxConns: 4},
		Rating:      RatingConfig{Concurrency: 4},
		Location: LocationConfig{
			Accuracy:    50,
			MaxAttempts: 5,
			Timeout:     15 * time.Second,
			Interval:    time.Second,
		},
	}
}

// Load layers defaults, the YAML file at path (optional), a local .env file
// and TIMEBANK_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	// Variables already in the environment win over .env.
	_ = godotenv.Load()

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = EnvString(envPrefix+"API_URL", c.API.BaseURL)
	c.API.Timeout = EnvDuration(envPrefix+"HTTP_TIMEOUT", c.API.Timeout)
	c.Chat.PollInterval = EnvDuration(envPrefix+"CHAT_POLL_INTERVAL", c.Chat.PollInterval)
	c.Credentials.File = EnvString(envPrefix+"CREDENTIAL_FILE", c.Credentials.File)
	c.Credentials.Passphrase = EnvString(envPrefix+"PASSPHRASE", c.Credentials.Passphrase)
	c.Log.Level = EnvString(envPrefix+"LOG_LEVEL", c.Log.Level)
	c.Database.URL = EnvString(envPrefix+"DATABASE_URL", c.Database.URL)
	c.Database.MaxConns = EnvInt32(envPrefix+"DB_MAX_CONNS", c.Database.MaxConns)
	c.Rating.Concurrency = EnvInt(envPrefix+"RATING_CONCURRENCY", c.Rating.Concurrency)
	c.Location.SamplerURL = EnvString(envPrefix+"LOCATION_URL", c.Location.SamplerURL)
	c.Location.Accuracy = EnvFloat(envPrefix+"LOCATION_ACCURACY", c.Location.Accuracy)
	c.Location.MaxAttempts = EnvInt(envPrefix+"LOCATION_MAX_ATTEMPTS", c.Location.MaxAttempts)
	c.Location.Timeout = EnvDuration(envPrefix+"LOCATION_TIMEOUT", c.Location.Timeout)
	c.Location.Interval = EnvDuration(envPrefix+"LOCATION_INTERVAL", c.Location.Interval)
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config: api base url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("config: api timeout must be positive")
	}
	if c.Chat.PollInterval <= 0 {
		return fmt.Errorf("config: chat poll interval must be positive")
	}
	if c.Credentials.File == "" {
		return fmt.Errorf("config: credential file is required")
	}
	return nil
}

func defaultCredentialFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "timebank", "credential")
}
