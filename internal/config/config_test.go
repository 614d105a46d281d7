package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Save original env and restore after test
	originalEnv := os.Environ()
	defer func() {
		os.Clearenv()
		for _, env := range originalEnv {
			for i, c := range env {
				if c == '=' {
					os.Setenv(env[:i], env[i+1:])
					break
				}
			}
		}
	}()

	os.Clearenv()

	cfg := Load()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Port", cfg.Port, 8000},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"OpenAIKey", cfg.OpenAIKey, ""},
		{"OpenAIBaseURL", cfg.OpenAIBaseURL, "https://api.openai.com/v1"},
		{"LLMModel", cfg.LLMModel, "gpt-3.5-turbo"},
		{"UpstreamTimeout", cfg.UpstreamTimeout, 60 * time.Second},
		{"RequestTimeout", cfg.RequestTimeout, 90 * time.Second},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s=%v, got %v", tt.name, tt.expected, tt.got)
			}
		})
	}

	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("expected CORS origins [*], got %v", cfg.CORSAllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OPENAI_API_KEY", `"sk-test"`)
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,https://qa.example.com")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.LogLevel)
	}
	// quotes are stripped by the client, not here
	if cfg.OpenAIKey != `"sk-test"` {
		t.Errorf("expected raw key, got %s", cfg.OpenAIKey)
	}
	if cfg.UpstreamTimeout != 5*time.Second {
		t.Errorf("expected upstream timeout 5s, got %v", cfg.UpstreamTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://qa.example.com" {
		t.Errorf("unexpected CORS origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:            8000,
		LogFormat:       "json",
		RequestTimeout:  time.Second,
		ShutdownTimeout: time.Second,
		OpenAIBaseURL:   "https://api.openai.com/v1",
		LLMModel:        "gpt-3.5-turbo",
		UpstreamTimeout: time.Second,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty api key is allowed", func(c *Config) { c.OpenAIKey = "" }, false},
		{"port out of range", func(c *Config) { c.Port = 70000 }, true},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"base url not a url", func(c *Config) { c.OpenAIBaseURL = "not a url" }, true},
		{"missing model", func(c *Config) { c.LLMModel = "" }, true},
		{"zero upstream timeout", func(c *Config) { c.UpstreamTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
