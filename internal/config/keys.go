package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "BOTFORGE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BOTFORGE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "openai.api_key", typ: kString, env: "BOTFORGE_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "BOTFORGE_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.model", typ: kString, env: "BOTFORGE_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Model },
	},
	{
		key: "crawler.api_key", typ: kString, env: "BOTFORGE_CRAWLER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Crawler.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Crawler.APIKey },
	},
	{
		key: "crawler.base_url", typ: kString, env: "BOTFORGE_CRAWLER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Crawler.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Crawler.BaseURL },
	},
	{
		key: "crawler.page_limit", typ: kInt, env: "BOTFORGE_CRAWLER_PAGE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Crawler.PageLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Crawler.PageLimit },
	},
	{
		key: "assistant.poll_interval", typ: kString, env: "BOTFORGE_ASSISTANT_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.PollInterval },
	},
	{
		key: "assistant.poll_max_attempts", typ: kInt, env: "BOTFORGE_ASSISTANT_POLL_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Assistant.PollMaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Assistant.PollMaxAttempts },
	},
	{
		key: "log.level", typ: kString, env: "BOTFORGE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
