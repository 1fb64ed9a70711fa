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
		key: "server.port", typ: kInt, env: "CONTRARIAN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "CONTRARIAN_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "gemini.base_url", typ: kString, env: "CONTRARIAN_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.api_key", typ: kString, env: "CONTRARIAN_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: "CONTRARIAN_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.embed_model", typ: kString, env: "CONTRARIAN_GEMINI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.EmbedModel },
	},
	{
		key: "news.base_url", typ: kString, env: "CONTRARIAN_NEWS_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.News.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.News.BaseURL },
	},
	{
		key: "news.api_key", typ: kString, env: "CONTRARIAN_NEWS_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.News.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.News.APIKey },
	},
	{
		key: "news.max_articles", typ: kInt, env: "CONTRARIAN_NEWS_MAX_ARTICLES",
		apply:   func(cfg *Config, v any) { cfg.News.MaxArticles = v.(int) },
		extract: func(cfg Config) any { return cfg.News.MaxArticles },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CONTRARIAN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "CONTRARIAN_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.chunk_size", typ: kInt, env: "CONTRARIAN_RETRIEVAL_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.ChunkSize },
	},
	{
		key: "retrieval.chunk_overlap", typ: kInt, env: "CONTRARIAN_RETRIEVAL_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.ChunkOverlap },
	},
	{
		key: "retrieval.min_context_chars", typ: kInt, env: "CONTRARIAN_RETRIEVAL_MIN_CONTEXT_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinContextChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinContextChars },
	},
	{
		key: "generation.max_attempts", typ: kInt, env: "CONTRARIAN_GENERATION_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Generation.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.MaxAttempts },
	},
	{
		key: "generation.base_backoff", typ: kString, env: "CONTRARIAN_GENERATION_BASE_BACKOFF",
		apply:   func(cfg *Config, v any) { cfg.Generation.BaseBackoff = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.BaseBackoff },
	},
	{
		key: "generation.requests_per_minute", typ: kInt, env: "CONTRARIAN_GENERATION_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.Generation.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.RequestsPerMinute },
	},
	{
		key: "log.level", typ: kString, env: "CONTRARIAN_LOG_LEVEL",
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
