package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Airtable AirtableConfig `yaml:"airtable"`
	Message  MessageConfig  `yaml:"message"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SpotifyConfig holds Spotify OAuth application credentials.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// AirtableConfig holds the outreach CRM connection settings.
type AirtableConfig struct {
	AccessToken string `yaml:"access_token"`
	BaseID      string `yaml:"base_id"`
	Table       string `yaml:"table"`
}

// MessageConfig holds the outreach message generation API settings.
type MessageConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ScraperConfig holds presence-scraper tuning knobs.
type ScraperConfig struct {
	// MaxChecks caps how many artists one batch will visit. Artists beyond
	// the cap are reported rate-limited without a navigation attempt.
	MaxChecks int `yaml:"max_checks"`
	// MinDelayMS and MaxDelayMS bound the randomized pause between artists.
	MinDelayMS int `yaml:"min_delay_ms"`
	MaxDelayMS int `yaml:"max_delay_ms"`
	// ReuseResults keeps found/not-found outcomes cached for the process
	// lifetime so repeated runs do not re-visit known artists.
	ReuseResults bool `yaml:"reuse_results"`
	// CacheSize bounds the presence result cache.
	CacheSize int `yaml:"cache_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			BasePath: "",
		},
		Database: DatabaseConfig{
			Path: "/data/clearwater.db",
		},
		Spotify: SpotifyConfig{
			RedirectURL: "http://localhost:8080/api/spotify/callback",
		},
		Airtable: AirtableConfig{
			Table: "Outreach",
		},
		Message: MessageConfig{
			Model: "gpt-4o-mini",
		},
		Scraper: ScraperConfig{
			MaxChecks:    50,
			MinDelayMS:   700,
			MaxDelayMS:   1300,
			ReuseResults: true,
			CacheSize:    2048,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("CW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("CW_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("CW_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CW_SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("CW_SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("CW_SPOTIFY_REDIRECT_URL"); v != "" {
		c.Spotify.RedirectURL = v
	}
	if v := os.Getenv("CW_AIRTABLE_TOKEN"); v != "" {
		c.Airtable.AccessToken = v
	}
	if v := os.Getenv("CW_AIRTABLE_BASE_ID"); v != "" {
		c.Airtable.BaseID = v
	}
	if v := os.Getenv("CW_AIRTABLE_TABLE"); v != "" {
		c.Airtable.Table = v
	}
	if v := os.Getenv("CW_MESSAGE_API_KEY"); v != "" {
		c.Message.APIKey = v
	}
	if v := os.Getenv("CW_MESSAGE_BASE_URL"); v != "" {
		c.Message.BaseURL = v
	}
	if v := os.Getenv("CW_MESSAGE_MODEL"); v != "" {
		c.Message.Model = v
	}
	if v := os.Getenv("CW_SCRAPER_MAX_CHECKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scraper.MaxChecks = n
		}
	}
	if v := os.Getenv("CW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CW_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Scraper.MaxChecks < 0 {
		return fmt.Errorf("scraper max_checks must not be negative")
	}
	if c.Scraper.MinDelayMS > c.Scraper.MaxDelayMS {
		return fmt.Errorf("scraper min_delay_ms exceeds max_delay_ms")
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
