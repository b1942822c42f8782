package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/ports"
)

// FileLoader loads YAML configuration from ~/.taskora/config.yaml
// (overridable via TASKORA_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.resolvePath()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := defaultConfig()
			if err := writeDefault(path, cfg); err != nil {
				return domain.Config{}, err
			}
			return cfg, nil
		}
		return domain.Config{}, err
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, err
	}

	return hydrateDefaults(cfg), nil
}

func (l *FileLoader) resolvePath() string {
	if l.overridePath != "" {
		return l.overridePath
	}
	if custom := os.Getenv("TASKORA_CONFIG"); custom != "" {
		return expandPath(custom)
	}
	return filepath.Join(userHomeDir(), ".taskora", "config.yaml")
}

func ensureConfigDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

func writeDefault(path string, cfg domain.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func defaultConfig() domain.Config {
	return domain.Config{
		ConfigFormatVersion: "1",
		AI: domain.AISettings{
			Endpoint:       "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent",
			ModelID:        "gemini-2.0-flash",
			AuthEnvVar:     "GEMINI_API_KEY",
			MaxTokens:      1024,
			TimeoutSeconds: 30,
		},
		RateLimit: domain.RateLimitSettings{
			RequestsPerMinute:  10,
			MaxConcurrent:      5,
			MinDelayMS:         1000,
			BackoffBaseMS:      30000,
			MaxBackoffExponent: 5,
		},
		Cache: domain.CacheSettings{
			ExpiryMinutes: 60,
		},
		Retrieval: domain.RetrievalSettings{
			EmbedEndpoint: "https://generativelanguage.googleapis.com/v1beta/models/text-embedding-004:embedContent",
			AuthEnvVar:    "GEMINI_API_KEY",
			Namespace:     "workspace",
			TopK:          3,
		},
		Moderation: domain.ModerationSettings{
			Enabled:   true,
			RulesFile: filepath.Join(userHomeDir(), ".taskora", "moderation.yaml"),
		},
		Storage: domain.StorageSettings{},
	}
}

func hydrateDefaults(cfg domain.Config) domain.Config {
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 10
	}
	if cfg.RateLimit.MaxConcurrent == 0 {
		cfg.RateLimit.MaxConcurrent = 5
	}
	if cfg.RateLimit.MinDelayMS == 0 {
		cfg.RateLimit.MinDelayMS = 1000
	}
	if cfg.RateLimit.BackoffBaseMS == 0 {
		cfg.RateLimit.BackoffBaseMS = 30000
	}
	if cfg.RateLimit.MaxBackoffExponent == 0 {
		cfg.RateLimit.MaxBackoffExponent = 5
	}
	if cfg.Cache.ExpiryMinutes == 0 {
		cfg.Cache.ExpiryMinutes = 60
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	return cfg
}

func expandPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if len(path) > 1 && path[:2] == "~/" {
		return filepath.Join(userHomeDir(), path[2:])
	}
	return filepath.Clean(path)
}

func userHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
