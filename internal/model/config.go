package model

import "time"

// Config holds the complete fabula configuration.
// Values are resolved from flags, FABULA_* environment variables,
// ~/.fabula/config.yaml and DefaultConfig, in that order.
type Config struct {
	Chunking   ChunkingConfig    `yaml:"chunking" mapstructure:"chunking"`
	Retrieval  RetrievalConfig   `yaml:"retrieval" mapstructure:"retrieval"`
	Judge      JudgeConfig       `yaml:"judge" mapstructure:"judge"`
	Embedding  EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	Classifier ClassifierConfig  `yaml:"classifier" mapstructure:"classifier"`
	Cache      CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Store      StoreConfig       `yaml:"store" mapstructure:"store"`
	HTTP       HTTPConfig        `yaml:"http" mapstructure:"http"`
	Documents  map[string]string `yaml:"documents" mapstructure:"documents"` // Document name -> file path or URL
}

// ChunkingConfig controls how documents are split into passages
type ChunkingConfig struct {
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"` // Soft cap on whitespace tokens per passage
	Overlap   int `yaml:"overlap" mapstructure:"overlap"`       // Trailing words carried into the next passage
}

// RetrievalConfig controls evidence retrieval
type RetrievalConfig struct {
	TopK int `yaml:"top_k" mapstructure:"top_k"` // Passages retrieved per claim
}

// JudgeConfig configures the judgment model and how it is called
type JudgeConfig struct {
	Provider          string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model             string        `yaml:"model" mapstructure:"model"`
	APIKey            string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"` // Per-call timeout
	MaxTokens         int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64       `yaml:"temperature" mapstructure:"temperature"`
	Concurrency       int           `yaml:"concurrency" mapstructure:"concurrency"`                 // Judge worker pool size
	RequestsPerMinute float64       `yaml:"requests_per_minute" mapstructure:"requests_per_minute"` // 0 disables the rate gate
	MaxAttempts       int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"` // First retry delay, doubled per attempt
}

// EmbeddingConfig configures the text embedder
type EmbeddingConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"` // openai, ollama, hashing
	Model       string `yaml:"model" mapstructure:"model"`
	APIKey      string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Dim         int    `yaml:"dim" mapstructure:"dim"` // Only used by the hashing embedder
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// ClassifierConfig configures consistency classifier training
type ClassifierConfig struct {
	ValidationSplit float64 `yaml:"validation_split" mapstructure:"validation_split"`
	Stratify        bool    `yaml:"stratify" mapstructure:"stratify"`
	Seed            int64   `yaml:"seed" mapstructure:"seed"`
	Iterations      int     `yaml:"iterations" mapstructure:"iterations"`
	LearningRate    float64 `yaml:"learning_rate" mapstructure:"learning_rate"`
	L2              float64 `yaml:"l2" mapstructure:"l2"`
}

// CacheConfig configures the verdict cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// StoreConfig configures the SQLite feature store
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // Empty disables the store
}

// HTTPConfig configures document fetching over HTTP
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			MaxTokens: 800,
			Overlap:   100,
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Judge: JudgeConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			Timeout:           30 * time.Second,
			MaxTokens:         50, // One-word answers
			Temperature:       0,
			Concurrency:       3,
			RequestsPerMinute: 12,
			MaxAttempts:       3,
			BackoffBase:       time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			Dim:         384,
			BatchSize:   128,
			Concurrency: 2,
		},
		Classifier: ClassifierConfig{
			ValidationSplit: 0.2,
			Stratify:        true,
			Seed:            42,
			Iterations:      1000,
			LearningRate:    0.5,
			L2:              1e-3,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".fabula-cache",
			MemoryTTL: time.Hour,
			DiskTTL:   30 * 24 * time.Hour,
		},
		Store: StoreConfig{
			Path: "fabula.db",
		},
		HTTP: HTTPConfig{
			Timeout:      time.Minute,
			UserAgent:    "Fabula/0.1 (+https://github.com/ppiankov/fabula)",
			MaxBodyBytes: 20_000_000, // Novels are large
		},
		Documents: map[string]string{},
	}
}
