// Package config loads server and upstream settings from an optional JSON
// file, a .env file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const DefaultServerAddr = ":8080"

// Config holds everything the server and the CLI need.
type Config struct {
	ServerAddr string    `json:"server_addr,omitempty" env:"BLOG_ADDR"`
	LogLevel   string    `json:"log_level,omitempty" env:"BLOG_LOG_LEVEL"`
	LogFormat  string    `json:"log_format,omitempty" env:"BLOG_LOG_FORMAT"`
	LLM        LLMConfig `json:"llm"`
}

// LLMConfig 上游模型配置。api_key 缺失不算加载错误，每次请求时再检查。
type LLMConfig struct {
	Provider string `json:"provider,omitempty" env:"BLOG_LLM_PROVIDER"`
	Model    string `json:"model,omitempty" env:"BLOG_LLM_MODEL"`
	APIKey   string `json:"api_key,omitempty" env:"DEEPSEEK_API_KEY"`
	BaseURL  string `json:"base_url,omitempty" env:"BLOG_LLM_BASE_URL"`
}

func Default() Config {
	return Config{
		ServerAddr: DefaultServerAddr,
		LogLevel:   "info",
		LogFormat:  "json",
		LLM: LLMConfig{
			Provider: "deepseek",
		},
	}
}

// Load reads path (skipped when empty or missing), then envFile (same), then
// the process environment.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from environ instead of the process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	return env.Parse(cfg, env.Options{Environment: environ})
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
