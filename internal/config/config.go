// Package config loads process configuration from a JSON file backend
// with ENGRAM_* environment overrides. Secrets come from the
// environment only and are never written to the backend.
package config

import (
	"fmt"
)

type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Gemini   GeminiConfig
	Ollama   OllamaConfig
	Storage  StorageConfig
	Engine   EngineConfig
	API      APIConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

// ProviderConfig selects the model backend: GEMINI, OLLAMA or MOCK.
type ProviderConfig struct {
	Kind string
}

type GeminiConfig struct {
	APIKey     string
	Model      string
	EmbedModel string
}

type OllamaConfig struct {
	BaseURL    string
	Model      string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

// EngineConfig tunes the scheduler loop. PollSeconds is the tick
// length, BatchSize the per-tick claim limit, and SweepEvery the tick
// multiple at which the low-frequency sweeps run.
type EngineConfig struct {
	PollSeconds int
	BatchSize   int
	SweepEvery  int
}

type APIConfig struct {
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Provider: ProviderConfig{
			Kind: "OLLAMA",
		},
		Gemini: GeminiConfig{
			Model:      "gemini-2.0-flash",
			EmbedModel: "text-embedding-004",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			Model:      "mistral-nemo",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Engine: EngineConfig{
			PollSeconds: 3,
			BatchSize:   5,
			SweepEvery:  10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/engram/config.json, then applies ENGRAM_*
// environment overrides. Secrets (provider API key, API token) are
// environment-only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Provider.Kind == "GEMINI" && cfg.Gemini.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: Gemini API key. Set it via environment variable ENGRAM_GEMINI_API_KEY")
	}

	return cfg, nil
}
