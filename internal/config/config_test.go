package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.LLM.MaxTokens != 30 {
		t.Errorf("expected max_tokens 30, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Disfluency.NumBeams != 3 {
		t.Errorf("expected 3 beams, got %d", cfg.Disfluency.NumBeams)
	}
	if cfg.Server.Addr != ":8765" {
		t.Errorf("expected :8765, got %s", cfg.Server.Addr)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parley.yaml")
	data := `
server:
  addr: ":9000"
stt:
  provider: whisper
  api_key: sk-test
  endpoint:
    silence: 900ms
llm:
  mode: chat
  model: gpt-4o-mini
  temperature: 0
  fallbacks:
    - base_url: http://backup:8000/v1
      model: phi-2
tts:
  providers:
    - provider: inworld
      api_key: abc
      voice_id: Craig
    - provider: coqui
      base_url: http://tts:5002
stages:
  tts_timeout: 5s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("expected :9000, got %s", cfg.Server.Addr)
	}
	if cfg.STT.Endpoint.Silence != 900*time.Millisecond {
		t.Errorf("expected 900ms silence, got %v", cfg.STT.Endpoint.Silence)
	}
	// Unset keys keep their defaults.
	if cfg.STT.Endpoint.MaxUtterance != 15*time.Second {
		t.Errorf("expected default max_utterance, got %v", cfg.STT.Endpoint.MaxUtterance)
	}
	if cfg.LLM.Mode != "chat" {
		t.Errorf("expected chat mode, got %s", cfg.LLM.Mode)
	}
	if cfg.LLM.Temperature != 0 {
		t.Errorf("expected temperature 0, got %f", cfg.LLM.Temperature)
	}
	if len(cfg.LLM.Fallbacks) != 1 || cfg.LLM.Fallbacks[0].Model != "phi-2" {
		t.Errorf("unexpected fallbacks %+v", cfg.LLM.Fallbacks)
	}
	if len(cfg.TTS.Providers) != 2 {
		t.Fatalf("expected 2 tts providers, got %d", len(cfg.TTS.Providers))
	}
	if cfg.TTS.Providers[0].VoiceID != "Craig" {
		t.Errorf("expected Craig, got %s", cfg.TTS.Providers[0].VoiceID)
	}
	if cfg.Stages.TTSTimeout != 5*time.Second {
		t.Errorf("expected 5s tts timeout, got %v", cfg.Stages.TTSTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [unterminated"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":             "9999",
		"OPENAI_API_KEY":   "sk-env",
		"INWORLD_API_KEY":  "inworld-env",
		"HF_API_TOKEN":     "hf-env",
		"REDIS_URL":        "redis://localhost:6379/0",
		"PARLEY_LOG_LEVEL": "debug",
	}
	getenv := func(k string) string { return env[k] }

	cfg := Default()
	cfg.STT.Provider = "whisper"
	cfg.TTS.Providers = []TTSProviderConfig{
		{Provider: "inworld"},
		{Provider: "openai", APIKey: "from-file"},
	}
	cfg.ApplyEnv(getenv)

	if cfg.Server.Addr != ":9999" {
		t.Errorf("expected :9999, got %s", cfg.Server.Addr)
	}
	if cfg.STT.APIKey != "sk-env" {
		t.Errorf("expected whisper key from env, got %q", cfg.STT.APIKey)
	}
	if cfg.LLM.APIKey != "sk-env" {
		t.Errorf("expected llm key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.TTS.Providers[0].APIKey != "inworld-env" {
		t.Errorf("expected inworld key from env, got %q", cfg.TTS.Providers[0].APIKey)
	}
	if cfg.TTS.Providers[1].APIKey != "from-file" {
		t.Errorf("file key should win over env, got %q", cfg.TTS.Providers[1].APIKey)
	}
	if cfg.Disfluency.APIToken != "hf-env" {
		t.Errorf("expected hf token, got %q", cfg.Disfluency.APIToken)
	}
	if cfg.Store.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("expected redis url, got %q", cfg.Store.RedisURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		section string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server config"},
		{"bad codec", func(c *Config) { c.Audio.InputCodec = "flac" }, "audio config"},
		{"opus rate", func(c *Config) { c.Audio.InputCodec = "opus"; c.Audio.InputSampleRate = 44100 }, "audio config"},
		{"limit burst", func(c *Config) { c.Limits.FramesPerSecond = 10; c.Limits.Burst = 0 }, "limits config"},
		{"vosk url", func(c *Config) { c.STT.URL = "http://localhost:2700" }, "stt config"},
		{"unknown stt", func(c *Config) { c.STT.Provider = "kaldi" }, "stt config"},
		{"llm mode", func(c *Config) { c.LLM.Mode = "stream" }, "llm config"},
		{"llm temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm config"},
		{"llm fallback", func(c *Config) { c.LLM.Fallbacks = []LLMEndpoint{{BaseURL: "http://backup"}} }, "llm config"},
		{"hf url", func(c *Config) { c.Disfluency.URL = "" }, "disfluency config"},
		{"no tts", func(c *Config) { c.TTS.Providers = nil }, "tts config"},
		{"inworld key", func(c *Config) { c.TTS.Providers = []TTSProviderConfig{{Provider: "inworld"}} }, "tts config"},
		{"stage timeout", func(c *Config) { c.Stages.LLMTimeout = 0 }, "stages config"},
		{"redis url", func(c *Config) { c.Store.Backend = "redis" }, "store config"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.HasPrefix(err.Error(), tt.section) {
				t.Errorf("expected error in %q, got %v", tt.section, err)
			}
		})
	}
}
