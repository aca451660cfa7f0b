package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cmsg_cli/pkg/llm"
)

// Config represents the application configuration.
type Config struct {
	Endpoint EndpointConfig `json:"endpoint"`
	Commit   CommitConfig   `json:"commit"`

	// DetectedShapes caches request shapes proven to work, keyed by
	// "endpoint|model". Written through after every successful detection or
	// self-heal; stale entries just cost one extra probe round.
	DetectedShapes map[string]llm.DetectedParameters `json:"detected_shapes,omitempty"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file,omitempty"`
	DryRun    bool   `json:"dry_run"`
}

// EndpointConfig holds the OpenAI-compatible endpoint configuration.
type EndpointConfig struct {
	APIURL         string `json:"api_url"`
	Model          string `json:"model"`
	RequireAuth    *bool  `json:"require_auth,omitempty"` // nil lets the URL heuristics decide
	MaxTokens      int    `json:"max_tokens"`
	TimeoutSeconds int    `json:"api_timeout_seconds"`
}

// CommitConfig holds commit-message generation preferences.
type CommitConfig struct {
	Conventional    bool `json:"conventional"`
	MaxDiffBytes    int  `json:"max_diff_bytes"`
	CopyToClipboard bool `json:"copy_to_clipboard"`
}

// Default returns a configuration with default values.
func Default() Config {
	return Config{
		Endpoint: EndpointConfig{
			APIURL:         "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			MaxTokens:      500,
			TimeoutSeconds: 60,
		},
		Commit: CommitConfig{
			Conventional: true,
			MaxDiffBytes: 64 * 1024,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load loads configuration from the specified path. If the file doesn't
// exist, one is created with default values. Environment variables override
// file values.
func Load(configPath string) (Config, error) {
	cfg, err := loadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	return applyEnvironmentOverrides(cfg), nil
}

// loadFile reads the config exactly as stored, without env overrides.
func loadFile(configPath string) (Config, error) {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return Config{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		cfg = Default()
		if err := Save(configPath, cfg); err != nil {
			return Config{}, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies CMSG_* environment variables on top of
// the loaded config.
func applyEnvironmentOverrides(cfg Config) Config {
	if apiURL := os.Getenv("CMSG_API_URL"); apiURL != "" {
		cfg.Endpoint.APIURL = apiURL
	}
	if model := os.Getenv("CMSG_MODEL"); model != "" {
		cfg.Endpoint.Model = model
	}
	if tokensStr := os.Getenv("CMSG_MAX_TOKENS"); tokensStr != "" {
		if tokens, err := strconv.Atoi(tokensStr); err == nil && tokens > 0 {
			cfg.Endpoint.MaxTokens = tokens
		}
	}
	if timeoutStr := os.Getenv("CMSG_API_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil && timeout > 0 {
			cfg.Endpoint.TimeoutSeconds = timeout
		}
	}
	if requireStr := os.Getenv("CMSG_REQUIRE_AUTH"); requireStr != "" {
		if require, err := strconv.ParseBool(requireStr); err == nil {
			cfg.Endpoint.RequireAuth = &require
		}
	}
	if logLevel := os.Getenv("CMSG_LOG_LEVEL"); logLevel != "" {
		switch strings.ToLower(logLevel) {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = strings.ToLower(logLevel)
		}
	}
	if dryRunStr := os.Getenv("CMSG_DRY_RUN"); dryRunStr != "" {
		if dryRun, err := strconv.ParseBool(dryRunStr); err == nil {
			cfg.DryRun = dryRun
		}
	}
	return cfg
}

// Save saves the configuration to the specified path.
func Save(configPath string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint.APIURL) == "" {
		return fmt.Errorf("endpoint api_url is required")
	}
	if strings.TrimSpace(c.Endpoint.Model) == "" {
		return fmt.Errorf("endpoint model is required")
	}
	if c.Endpoint.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got: %d", c.Endpoint.MaxTokens)
	}
	if c.Endpoint.TimeoutSeconds <= 0 {
		return fmt.Errorf("api_timeout_seconds must be positive, got: %d", c.Endpoint.TimeoutSeconds)
	}
	if c.Commit.MaxDiffBytes <= 0 {
		return fmt.Errorf("max_diff_bytes must be positive, got: %d", c.Commit.MaxDiffBytes)
	}
	return nil
}

// GetConfigPath returns the default configuration file path.
func GetConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cmsg_cli", "config.json")
	}
	return filepath.Join(homeDir, ".cmsg_cli", "config.json")
}

// ShapeKey builds the cache key for detected parameters.
func ShapeKey(endpoint, model string) string {
	return endpoint + "|" + model
}

// DetectedShape returns the persisted shape for an endpoint and model.
func (c Config) DetectedShape(endpoint, model string) (llm.DetectedParameters, bool) {
	params, ok := c.DetectedShapes[ShapeKey(endpoint, model)]
	return params, ok
}

// ShapeStore persists detected parameters back into the config file. It
// implements llm.ParameterStore with a read-modify-write of the file so a
// write never clobbers unrelated edits.
type ShapeStore struct {
	path string
}

// NewShapeStore creates a store writing to the given config path.
func NewShapeStore(path string) *ShapeStore {
	return &ShapeStore{path: path}
}

// SaveDetectedParameters implements llm.ParameterStore.
func (s *ShapeStore) SaveDetectedParameters(endpoint, model string, params llm.DetectedParameters) error {
	cfg, err := loadFile(s.path)
	if err != nil {
		return err
	}
	if cfg.DetectedShapes == nil {
		cfg.DetectedShapes = make(map[string]llm.DetectedParameters)
	}
	cfg.DetectedShapes[ShapeKey(endpoint, model)] = params
	return Save(s.path, cfg)
}
