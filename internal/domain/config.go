package domain

// Config mirrors ~/.taskora/config.yaml.
type Config struct {
	ConfigFormatVersion string             `yaml:"config_format_version"`
	AI                  AISettings         `yaml:"ai"`
	RateLimit           RateLimitSettings  `yaml:"rate_limit"`
	Cache               CacheSettings      `yaml:"cache"`
	Retrieval           RetrievalSettings  `yaml:"retrieval"`
	Moderation          ModerationSettings `yaml:"moderation"`
	Storage             StorageSettings    `yaml:"storage"`
}

// AISettings configures the external LLM endpoint.
type AISettings struct {
	Endpoint       string `yaml:"endpoint"`
	ModelID        string `yaml:"model_id"`
	AuthEnvVar     string `yaml:"auth_env_var"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout"`
}

// RateLimitSettings bounds outbound calls to the LLM endpoint.
type RateLimitSettings struct {
	RequestsPerMinute  int `yaml:"requests_per_minute"`
	MaxConcurrent      int `yaml:"max_concurrent"`
	MinDelayMS         int `yaml:"min_delay_ms"`
	BackoffBaseMS      int `yaml:"backoff_base_ms"`
	MaxBackoffExponent int `yaml:"max_backoff_exponent"`
}

// CacheSettings controls the in-memory analysis cache.
type CacheSettings struct {
	ExpiryMinutes int `yaml:"expiry_minutes"`
}

// RetrievalSettings configures the vector store and embedding endpoints.
type RetrievalSettings struct {
	Endpoint      string `yaml:"endpoint"`
	EmbedEndpoint string `yaml:"embed_endpoint"`
	AuthEnvVar    string `yaml:"auth_env_var"`
	Namespace     string `yaml:"namespace"`
	TopK          int    `yaml:"top_k"`
}

// ModerationSettings defines moderation gate behavior.
type ModerationSettings struct {
	Enabled   bool   `yaml:"enabled"`
	RulesFile string `yaml:"rules_file"`
}

// StorageSettings locates the local SQLite database.
type StorageSettings struct {
	DatabasePath string `yaml:"database_path"`
}
