package config

import (
	"fmt"
)

type Config struct {
	Server     ServerConfig
	Gemini     GeminiConfig
	News       NewsConfig
	Storage    StorageConfig
	Retrieval  RetrievalConfig
	Generation GenerationConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type GeminiConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	EmbedModel string
}

type NewsConfig struct {
	BaseURL     string
	APIKey      string
	MaxArticles int
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK            int
	ChunkSize       int
	ChunkOverlap    int
	MinContextChars int
}

type GenerationConfig struct {
	MaxAttempts       int
	BaseBackoff       string
	RequestsPerMinute int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    7070,
			MCPPort: 7071,
		},
		Gemini: GeminiConfig{
			BaseURL:    "https://generativelanguage.googleapis.com",
			Model:      "gemma-3-27b-it",
			EmbedModel: "text-embedding-004",
		},
		News: NewsConfig{
			BaseURL:     "https://newsapi.org",
			MaxArticles: 15,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			ChunkSize:       1000,
			ChunkOverlap:    200,
			MinContextChars: 100,
		},
		Generation: GenerationConfig{
			MaxAttempts:       3,
			BaseBackoff:       "2s",
			RequestsPerMinute: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/contrarian/config.json and applies CONTRARIAN_*
// environment variable overrides on top of built-in defaults.
//
// API keys are secrets and are only read from the environment
// (CONTRARIAN_GEMINI_API_KEY, CONTRARIAN_NEWS_API_KEY); they are never
// written to the config file. The Gemini key is required; without a news
// key the news analysis stage degrades to its neutral fallback.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: Gemini API key. " +
			"Set it via environment variable CONTRARIAN_GEMINI_API_KEY")
	}

	return cfg, nil
}
