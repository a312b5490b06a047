// Package config loads and resolves codinglm's configuration: a JSON file
// on disk, ${VAR} placeholder resolution, and a fixed set of environment
// variable overrides. Grounded on config.py's Config.load, generalized to
// Go's json.Unmarshal plus caarlos0/env struct tags for the override layer.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type ToolsConfig struct {
	AutoApprove       []string `json:"autoApprove,omitempty"`
	MaxToolIterations int      `json:"maxToolIterations,omitempty"`
}

type ContextCompressionConfig struct {
	Enabled                bool   `json:"enabled"`
	MaxContextTokens       int    `json:"maxContextTokens"`
	TargetContextTokens    int    `json:"targetContextTokens"`
	PreserveRecentMessages int    `json:"preserveRecentMessages"`
	SummaryMaxTokens       int    `json:"summaryMaxTokens"`
	SummaryModel           string `json:"summaryModel,omitempty"`
	MaxCompressionPasses   int    `json:"maxCompressionPasses"`
	Verbose                bool   `json:"verbose"`
}

type ContextConfig struct {
	Compression ContextCompressionConfig `json:"compression"`
}

// Config is the root configuration object, serialized as .codinglm.json.
// Env overrides (see Load) are applied on top of the JSON after ${VAR}
// resolution, matching config.py's Config.load order exactly.
type Config struct {
	APIKey       string                     `json:"apiKey,omitempty" env:"-"`
	Model        string                     `json:"model" env:"-"`
	Temperature  float64                    `json:"temperature"`
	MaxTokens    int                        `json:"maxTokens"`
	APIBase      string                     `json:"apiBase" env:"-"`
	APITimeoutMs int                        `json:"apiTimeoutMs" env:"-"`
	MCPServers   map[string]MCPServerConfig `json:"mcpServers,omitempty"`
	Tools        ToolsConfig                `json:"tools"`
	Context      ContextConfig              `json:"context"`
}

func Defaults() Config {
	return Config{
		Model:        "glm-4.6",
		Temperature:  0.7,
		MaxTokens:    8192,
		APIBase:      "https://api.z.ai/api/anthropic",
		APITimeoutMs: 600000,
		MCPServers:   map[string]MCPServerConfig{},
		Context: ContextConfig{
			Compression: ContextCompressionConfig{
				Enabled:                true,
				MaxContextTokens:       185000,
				TargetContextTokens:    165000,
				PreserveRecentMessages: 15,
				SummaryMaxTokens:       2000,
				MaxCompressionPasses:   3,
			},
		},
	}
}

// apiKeyEnvVars, modelEnvVars, baseURLEnvVars and timeoutEnvVars are
// first-match-wins lookup chains, reproduced verbatim from config.py.
var (
	apiKeyEnvVars  = []string{"Z_AI_API_KEY", "ZAI_API_KEY", "ANTHROPIC_AUTH_TOKEN"}
	modelEnvVars   = []string{"CODINGLM_MODEL", "GLM_CODER_MODEL", "ANTHROPIC_DEFAULT_OPUS_MODEL", "ANTHROPIC_DEFAULT_SONNET_MODEL", "ANTHROPIC_DEFAULT_HAIKU_MODEL"}
	baseURLEnvVars = []string{"CODINGLM_BASE_URL", "GLM_CODER_BASE_URL", "ANTHROPIC_BASE_URL", "Z_AI_BASE_URL"}
	timeoutEnvVars = []string{"CODINGLM_TIMEOUT_MS", "GLM_CODER_TIMEOUT_MS", "API_TIMEOUT_MS", "ANTHROPIC_TIMEOUT_MS"}
)

func firstNonEmptyEnv(names []string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// Load searches configPath, then ./.codinglm.json, then ~/.codinglm.json,
// falling back to Defaults() if none exist. It resolves ${VAR} placeholders
// against the environment and then applies the fixed override chains above,
// in the same order the Python original does (file, then env overrides).
func Load(configPath string) (Config, error) {
	cfg := Defaults()

	if configPath == "" {
		if wd, err := os.Getwd(); err == nil {
			candidate := filepath.Join(wd, ".codinglm.json")
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
			}
		}
		if configPath == "" {
			if home, err := os.UserHomeDir(); err == nil {
				candidate := filepath.Join(home, ".codinglm.json")
				if _, err := os.Stat(candidate); err == nil {
					configPath = candidate
				}
			}
		}
	}

	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", configPath, err)
		}
		var fileData map[string]any
		if err := json.Unmarshal(raw, &fileData); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", configPath, err)
		}
		resolveEnvPlaceholders(fileData)
		resolved, err := json.Marshal(fileData)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(resolved, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", configPath, err)
		}
	}

	if v := firstNonEmptyEnv(apiKeyEnvVars); v != "" {
		cfg.APIKey = v
	}
	if v := firstNonEmptyEnv(modelEnvVars); v != "" {
		cfg.Model = v
	}
	if v := firstNonEmptyEnv(baseURLEnvVars); v != "" {
		cfg.APIBase = v
	}
	if v := firstNonEmptyEnv(timeoutEnvVars); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.APITimeoutMs = parsed
		}
	}

	// Any remaining struct-tagged fields (none currently use "env" beyond
	// the "-" markers above) still go through caarlos0/env so future
	// additions pick up the library's parsing/validation for free.
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env overrides: %w", err)
	}

	if cfg.Context.Compression.PreserveRecentMessages < 1 {
		return cfg, fmt.Errorf("context.compression.preserveRecentMessages must be at least 1")
	}
	if cfg.Context.Compression.TargetContextTokens >= cfg.Context.Compression.MaxContextTokens {
		return cfg, fmt.Errorf("context.compression.targetContextTokens (%d) must be less than maxContextTokens (%d)",
			cfg.Context.Compression.TargetContextTokens, cfg.Context.Compression.MaxContextTokens)
	}

	return cfg, nil
}

func resolveEnvPlaceholders(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if s, ok := val.(string); ok {
				t[k] = resolveString(s)
			} else {
				resolveEnvPlaceholders(val)
			}
		}
	case []any:
		for i, val := range t {
			if s, ok := val.(string); ok {
				t[i] = resolveString(s)
			} else {
				resolveEnvPlaceholders(val)
			}
		}
	}
}

func resolveString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		name := s[2 : len(s)-1]
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return s
}

// APIKeyOrErr mirrors Config.get_api_key's required-field error message.
func (c Config) APIKeyOrErr() (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("Z.ai API key not configured. Set Z_AI_API_KEY (or legacy " +
			"ZAI_API_KEY/ANTHROPIC_AUTH_TOKEN) environment variable, or add " +
			"'apiKey' to .codinglm.json")
	}
	return c.APIKey, nil
}
