// Package config loads deepscholar configuration from .scholar/config.yaml
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all deepscholar configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM      LLMConfig      `yaml:"llm"`
	Store    StoreConfig    `yaml:"store"`
	Search   SearchConfig   `yaml:"search"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Gates    GateConfig     `yaml:"gates"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LLMConfig configures the LLM adapter.
type LLMConfig struct {
	Provider       string        `yaml:"provider"` // gemini
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Timeout        time.Duration `yaml:"timeout"`
}

// StoreConfig configures the KV store and the local SQLite database.
type StoreConfig struct {
	// RedisAddr empty means the in-memory KV (development mode).
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// DatabasePath holds papers, spans, claims and reports.
	DatabasePath string `yaml:"database_path"`
}

// SearchConfig configures the unified searcher.
type SearchConfig struct {
	MaxResults     int           `yaml:"max_results"`
	RefineAttempts int           `yaml:"refine_attempts"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	PDFTimeout     time.Duration `yaml:"pdf_timeout"`
	UserAgent      string        `yaml:"user_agent"`
}

// PipelineConfig configures phase behavior.
type PipelineConfig struct {
	ScreeningBatchSize int           `yaml:"screening_batch_size"`
	PDFScoreThreshold  float64       `yaml:"pdf_score_threshold"`
	PDFConcurrency     int           `yaml:"pdf_concurrency"`
	ExtractConcurrency int           `yaml:"extract_concurrency"`
	ClaimConcurrency   int           `yaml:"claim_concurrency"`
	AuditConcurrency   int           `yaml:"audit_concurrency"`
	SessionTTL         time.Duration `yaml:"session_ttl"`
}

// GateConfig configures the HITL gate thresholds.
type GateConfig struct {
	PDFDownloadLimit int      `yaml:"pdf_download_limit"`
	TokenBudget      int      `yaml:"token_budget"`
	TrustedDomains   []string `yaml:"trusted_domains"`
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Name:    "deepscholar",
		Version: "0.4.0",
		LLM: LLMConfig{
			Provider:       "gemini",
			Model:          "gemini-2.0-flash",
			EmbeddingModel: "gemini-embedding-001",
			Timeout:        60 * time.Second,
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".scholar", "scholar.db"),
		},
		Search: SearchConfig{
			MaxResults:     20,
			RefineAttempts: 2,
			ToolTimeout:    30 * time.Second,
			PDFTimeout:     30 * time.Second,
			UserAgent:      "deepscholar/0.4 (research assistant)",
		},
		Pipeline: PipelineConfig{
			ScreeningBatchSize: 15,
			PDFScoreThreshold:  8.0,
			PDFConcurrency:     4,
			ExtractConcurrency: 3,
			ClaimConcurrency:   3,
			AuditConcurrency:   4,
			SessionTTL:         24 * time.Hour,
		},
		Gates: GateConfig{
			PDFDownloadLimit: 15,
			TokenBudget:      100_000,
			TrustedDomains:   []string{"arxiv.org", "huggingface.co", "hf.co"},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads config from workspace/.scholar/config.yaml, applies defaults for
// anything unset, and then applies environment overrides. A missing file is
// not an error.
func Load(workspace string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(workspace, ".scholar", "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// applyEnv overrides config fields from SCHOLAR_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("SCHOLAR_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("SCHOLAR_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("SCHOLAR_REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv("SCHOLAR_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("SCHOLAR_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

// fillDefaults re-applies defaults for zero values a partial YAML left unset.
func (c *Config) fillDefaults() {
	d := Default()
	if c.LLM.Model == "" {
		c.LLM.Model = d.LLM.Model
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = d.LLM.EmbeddingModel
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = d.LLM.Timeout
	}
	if c.Store.DatabasePath == "" {
		c.Store.DatabasePath = d.Store.DatabasePath
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = d.Search.MaxResults
	}
	if c.Search.RefineAttempts == 0 {
		c.Search.RefineAttempts = d.Search.RefineAttempts
	}
	if c.Search.ToolTimeout == 0 {
		c.Search.ToolTimeout = d.Search.ToolTimeout
	}
	if c.Search.PDFTimeout == 0 {
		c.Search.PDFTimeout = d.Search.PDFTimeout
	}
	if c.Search.UserAgent == "" {
		c.Search.UserAgent = d.Search.UserAgent
	}
	if c.Pipeline.ScreeningBatchSize == 0 {
		c.Pipeline.ScreeningBatchSize = d.Pipeline.ScreeningBatchSize
	}
	if c.Pipeline.PDFScoreThreshold == 0 {
		c.Pipeline.PDFScoreThreshold = d.Pipeline.PDFScoreThreshold
	}
	if c.Pipeline.PDFConcurrency == 0 {
		c.Pipeline.PDFConcurrency = d.Pipeline.PDFConcurrency
	}
	if c.Pipeline.ExtractConcurrency == 0 {
		c.Pipeline.ExtractConcurrency = d.Pipeline.ExtractConcurrency
	}
	if c.Pipeline.ClaimConcurrency == 0 {
		c.Pipeline.ClaimConcurrency = d.Pipeline.ClaimConcurrency
	}
	if c.Pipeline.AuditConcurrency == 0 {
		c.Pipeline.AuditConcurrency = d.Pipeline.AuditConcurrency
	}
	if c.Pipeline.SessionTTL == 0 {
		c.Pipeline.SessionTTL = d.Pipeline.SessionTTL
	}
	if c.Gates.PDFDownloadLimit == 0 {
		c.Gates.PDFDownloadLimit = d.Gates.PDFDownloadLimit
	}
	if c.Gates.TokenBudget == 0 {
		c.Gates.TokenBudget = d.Gates.TokenBudget
	}
	if len(c.Gates.TrustedDomains) == 0 {
		c.Gates.TrustedDomains = d.Gates.TrustedDomains
	}
}
