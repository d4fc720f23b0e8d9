package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Decks      DecksConfig      `yaml:"decks"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Compare    CompareConfig    `yaml:"compare"`
	Generation GenerationConfig `yaml:"generation"`
	Push       PushConfig       `yaml:"push"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DecksConfig configures where generated decks are written.
type DecksConfig struct {
	Dir string `yaml:"dir"`
}

// ScheduleConfig configures the detection loop.
type ScheduleConfig struct {
	CheckInterval string `yaml:"check_interval"`
}

// ParseCheckInterval returns the check interval as time.Duration.
func (s ScheduleConfig) ParseCheckInterval() time.Duration {
	d, err := time.ParseDuration(s.CheckInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

// FetchConfig configures literature feed sources.
type FetchConfig struct {
	Feeds []FeedItem `yaml:"feeds"`
}

// FeedItem is a single literature feed. URLTemplate must contain one %s
// placeholder that receives the query-escaped keyword expression.
type FeedItem struct {
	Name        string `yaml:"name"`
	URLTemplate string `yaml:"url_template"`
}

// CompareConfig configures deck comparison.
type CompareConfig struct {
	LLM          LLMConfig `yaml:"llm"`
	ExtractorURL string    `yaml:"extractor_url"`
}

// LLMConfig configures the LLM comparison backend.
type LLMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // custom endpoint (optional)
}

// GenerationConfig configures the external deck generation pipeline.
type GenerationConfig struct {
	OutlineURL string `yaml:"outline_url"`
	DeckURL    string `yaml:"deck_url"`
	Timeout    string `yaml:"timeout"`
	Language   string `yaml:"language"`
	SlideCount int    `yaml:"slide_count"`
}

// ParseTimeout returns the generation timeout as time.Duration.
func (g GenerationConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// PushConfig configures delivery channels.
type PushConfig struct {
	Email   EmailConfig   `yaml:"email"`
	AppPush AppPushConfig `yaml:"app_push"`
}

// EmailConfig for SMTP delivery.
type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// AppPushConfig for in-app push delivery via webhook.
type AppPushConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./medbrief.db"},
		Server:   ServerConfig{Port: 8080},
		Decks:    DecksConfig{Dir: "./PPT"},
		Schedule: ScheduleConfig{CheckInterval: "1h"},
		Fetch: FetchConfig{
			Feeds: []FeedItem{
				{
					Name:        "PubMed",
					URLTemplate: "https://pubmed.ncbi.nlm.nih.gov/rss/search/?term=%s&limit=50",
				},
			},
		},
		Compare: CompareConfig{
			LLM: LLMConfig{
				Provider: "openai",
				Model:    "gpt-4o",
			},
		},
		Generation: GenerationConfig{
			Timeout:    "60s",
			Language:   "Chinese",
			SlideCount: 12,
		},
		Push: PushConfig{
			Email: EmailConfig{Port: 587},
		},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEDBRIEF_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MEDBRIEF_DECKS_DIR"); v != "" {
		cfg.Decks.Dir = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Compare.LLM.APIKey = v
		cfg.Compare.LLM.Enabled = true
		cfg.Compare.LLM.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Compare.LLM.APIKey = v
		cfg.Compare.LLM.Enabled = true
		cfg.Compare.LLM.Provider = "anthropic"
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Push.Email.Password = v
	}
}
