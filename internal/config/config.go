package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	OpenAI    OpenAIConfig
	Crawler   CrawlerConfig
	Assistant AssistantConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

// OpenAIConfig points at the remote assistant provider. BaseURL is
// overridable so tests and self-hosted gateways can substitute an endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// CrawlerConfig points at the external crawl service. Crawling is disabled
// when APIKey is empty.
type CrawlerConfig struct {
	APIKey    string
	BaseURL   string
	PageLimit int
}

// AssistantConfig controls run polling on the chat path.
type AssistantConfig struct {
	PollInterval    string
	PollMaxAttempts int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Crawler: CrawlerConfig{
			BaseURL:   "https://api.spider.cloud",
			PageLimit: 10,
		},
		Assistant: AssistantConfig{
			PollInterval:    "1s",
			PollMaxAttempts: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend and environment
// variables. Environment variables (BOTFORGE_*) override backend values.
// Secrets (API keys) are env-only and never written to the config file.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. " +
			"Set it via environment variable BOTFORGE_OPENAI_API_KEY")
	}

	return cfg, nil
}

// PollInterval parses the configured run-poll interval, falling back to 1s.
func (c AssistantConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}
