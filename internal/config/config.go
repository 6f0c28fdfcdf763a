// Package config loads go-parley server configuration.
//
// Configuration comes from an optional YAML file layered over Default(),
// followed by environment overrides for secrets and deploy knobs.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-parley/pkg/conversation"
)

// Config represents the complete server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Protocol   ProtocolConfig   `yaml:"protocol"`
	Limits     LimitsConfig     `yaml:"limits"`
	STT        STTConfig        `yaml:"stt"`
	LLM        LLMConfig        `yaml:"llm"`
	Disfluency DisfluencyConfig `yaml:"disfluency"`
	TTS        TTSConfig        `yaml:"tts"`
	Stages     StagesConfig     `yaml:"stages"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP/websocket listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	MaxSessions  int           `yaml:"max_sessions"`
	ReadLimit    int64         `yaml:"read_limit"` // bytes per inbound frame
	QueueSize    int           `yaml:"queue_size"` // inbound frames buffered per session
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AudioConfig describes inbound microphone audio.
type AudioConfig struct {
	InputCodec           string `yaml:"input_codec"` // pcm16, opus
	InputSampleRate      int    `yaml:"input_sample_rate"`
	RecognizerSampleRate int    `yaml:"recognizer_sample_rate"`
}

// ProtocolConfig toggles optional outbound frames.
type ProtocolConfig struct {
	TextFrames bool `yaml:"text_frames"`
}

// LimitsConfig bounds inbound traffic per session.
// A zero FramesPerSecond disables limiting.
type LimitsConfig struct {
	FramesPerSecond float64 `yaml:"frames_per_second"`
	Burst           int     `yaml:"burst"`
}

// EndpointConfig tunes energy based utterance endpointing.
type EndpointConfig struct {
	Threshold    float64       `yaml:"threshold"`
	Silence      time.Duration `yaml:"silence"`
	MinSpeech    time.Duration `yaml:"min_speech"`
	MaxUtterance time.Duration `yaml:"max_utterance"`
	PreRoll      time.Duration `yaml:"pre_roll"`
}

// STTConfig selects and configures the speech recognizer.
type STTConfig struct {
	Provider        string         `yaml:"provider"` // vosk, whisper, google, mock
	URL             string         `yaml:"url"`
	APIKey          string         `yaml:"api_key"`
	Model           string         `yaml:"model"`
	Language        string         `yaml:"language"`
	CredentialsFile string         `yaml:"credentials_file"`
	Timeout         time.Duration  `yaml:"timeout"`
	MaxRetries      int            `yaml:"max_retries"`
	Endpoint        EndpointConfig `yaml:"endpoint"`
}

// LLMConfig configures reply generation.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Mode        string        `yaml:"mode"` // completion, chat
	Instruction string        `yaml:"instruction"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	Stop        []string      `yaml:"stop"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`

	// Fallbacks are tried in order when the primary endpoint fails.
	Fallbacks []LLMEndpoint `yaml:"fallbacks"`
}

// LLMEndpoint is a fallback model server. Sampling, timeout and retries come
// from the primary.
type LLMEndpoint struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// DisfluencyConfig configures the reply rewriter.
type DisfluencyConfig struct {
	Provider          string        `yaml:"provider"` // huggingface, llm, none
	URL               string        `yaml:"url"`
	APIToken          string        `yaml:"api_token"`
	MaxLength         int           `yaml:"max_length"`
	NumBeams          int           `yaml:"num_beams"`
	Temperature       float64       `yaml:"temperature"`
	DoSample          bool          `yaml:"do_sample"`
	NoRepeatNgramSize int           `yaml:"no_repeat_ngram_size"`
	Timeout           time.Duration `yaml:"timeout"`
}

// TTSProviderConfig configures a single speech synthesizer.
type TTSProviderConfig struct {
	Provider        string        `yaml:"provider"` // inworld, coqui, openai, elevenlabs, google, mock
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	VoiceID         string        `yaml:"voice_id"`
	ModelID         string        `yaml:"model_id"`
	LanguageCode    string        `yaml:"language_code"`
	OutputFormat    string        `yaml:"output_format"`
	CredentialsFile string        `yaml:"credentials_file"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
}

// TTSConfig lists synthesizers in fallback order.
type TTSConfig struct {
	Providers []TTSProviderConfig `yaml:"providers"`
}

// StagesConfig bounds each pipeline stage.
type StagesConfig struct {
	STTTimeout        time.Duration `yaml:"stt_timeout"`
	LLMTimeout        time.Duration `yaml:"llm_timeout"`
	DisfluencyTimeout time.Duration `yaml:"disfluency_timeout"`
	TTSTimeout        time.Duration `yaml:"tts_timeout"`
}

// StoreConfig configures the turn log.
type StoreConfig struct {
	Backend   string        `yaml:"backend"` // memory, redis, none
	RedisURL  string        `yaml:"redis_url"`
	KeyPrefix string        `yaml:"key_prefix"`
	MaxTurns  int           `yaml:"max_turns"`
	TTL       time.Duration `yaml:"ttl"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that talks to a fully local model stack:
// vosk-server, an OpenAI-compatible completion server, a text2text endpoint
// and Coqui tts-server.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8765",
			MaxSessions:  64,
			ReadLimit:    1 << 20,
			QueueSize:    64,
			WriteTimeout: 10 * time.Second,
		},
		Audio: AudioConfig{
			InputCodec:           "pcm16",
			InputSampleRate:      16000,
			RecognizerSampleRate: 16000,
		},
		Limits: LimitsConfig{
			Burst: 50,
		},
		STT: STTConfig{
			Provider:   "vosk",
			URL:        "ws://localhost:2700",
			Model:      "whisper-1",
			Language:   "en",
			Timeout:    30 * time.Second,
			MaxRetries: 2,
			Endpoint: EndpointConfig{
				Threshold:    0.0005,
				Silence:      700 * time.Millisecond,
				MinSpeech:    250 * time.Millisecond,
				MaxUtterance: 15 * time.Second,
				PreRoll:      200 * time.Millisecond,
			},
		},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:8000/v1",
			Model:       "microsoft/phi-2",
			Mode:        "completion",
			Instruction: conversation.DefaultInstruction,
			MaxTokens:   30,
			Temperature: 0.7,
			TopP:        0.9,
			Stop:        []string{"\nMe:"},
			Timeout:     30 * time.Second,
			MaxRetries:  2,
		},
		Disfluency: DisfluencyConfig{
			Provider:          "huggingface",
			URL:               "http://localhost:8080",
			MaxLength:         60,
			NumBeams:          3,
			Temperature:       0.8,
			DoSample:          true,
			NoRepeatNgramSize: 2,
			Timeout:           30 * time.Second,
		},
		TTS: TTSConfig{
			Providers: []TTSProviderConfig{
				{Provider: "coqui", BaseURL: "http://localhost:5002", Timeout: 60 * time.Second},
			},
		},
		Stages: StagesConfig{
			STTTimeout:        30 * time.Second,
			LLMTimeout:        30 * time.Second,
			DisfluencyTimeout: 30 * time.Second,
			TTSTimeout:        60 * time.Second,
		},
		Store: StoreConfig{
			Backend:   "memory",
			KeyPrefix: "parley:",
			MaxTurns:  100,
			TTL:       24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over Default(), applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment. Secrets are only filled
// in when the file left them empty.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("PARLEY_ADDR"); v != "" {
		c.Server.Addr = v
	} else if v := getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := getenv("PARLEY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	openAIKey := getenv("OPENAI_API_KEY")
	if c.STT.APIKey == "" {
		switch c.STT.Provider {
		case "whisper":
			c.STT.APIKey = openAIKey
		case "google":
			c.STT.APIKey = getenv("GOOGLE_API_KEY")
		}
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = openAIKey
	}
	if c.Disfluency.APIToken == "" {
		c.Disfluency.APIToken = getenv("HF_API_TOKEN")
	}

	for i := range c.TTS.Providers {
		p := &c.TTS.Providers[i]
		if p.APIKey != "" {
			continue
		}
		switch p.Provider {
		case "inworld":
			p.APIKey = getenv("INWORLD_API_KEY")
		case "openai":
			p.APIKey = openAIKey
		case "elevenlabs":
			p.APIKey = getenv("ELEVENLABS_API_KEY")
		case "google":
			p.APIKey = getenv("GOOGLE_API_KEY")
		}
	}

	if v := getenv("REDIS_URL"); v != "" && c.Store.RedisURL == "" {
		c.Store.RedisURL = v
	}
}

// Validate performs validation of every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits config: %w", err)
	}
	if err := c.STT.Validate(); err != nil {
		return fmt.Errorf("stt config: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	if err := c.Disfluency.Validate(); err != nil {
		return fmt.Errorf("disfluency config: %w", err)
	}
	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}
	if err := c.Stages.Validate(); err != nil {
		return fmt.Errorf("stages config: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}
	if s.ReadLimit < 1024 {
		return fmt.Errorf("read_limit must be at least 1024 bytes, got %d", s.ReadLimit)
	}
	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}
	if s.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	switch a.InputCodec {
	case "pcm16", "opus":
	default:
		return fmt.Errorf("input_codec must be pcm16 or opus, got %q", a.InputCodec)
	}
	if !validRate(a.InputSampleRate) {
		return fmt.Errorf("input_sample_rate %d is not supported", a.InputSampleRate)
	}
	if !validRate(a.RecognizerSampleRate) {
		return fmt.Errorf("recognizer_sample_rate %d is not supported", a.RecognizerSampleRate)
	}
	if a.InputCodec == "opus" && !opusRate(a.InputSampleRate) {
		return fmt.Errorf("opus input requires 8000, 12000, 16000, 24000 or 48000 Hz, got %d", a.InputSampleRate)
	}
	return nil
}

// Validate validates limits configuration.
func (l *LimitsConfig) Validate() error {
	if l.FramesPerSecond < 0 {
		return fmt.Errorf("frames_per_second cannot be negative")
	}
	if l.FramesPerSecond > 0 && l.Burst < 1 {
		return fmt.Errorf("burst must be at least 1 when limiting is enabled")
	}
	return nil
}

// Validate validates speech recognition configuration.
func (s *STTConfig) Validate() error {
	switch s.Provider {
	case "vosk":
		if !strings.HasPrefix(s.URL, "ws://") && !strings.HasPrefix(s.URL, "wss://") {
			return fmt.Errorf("vosk url must be a ws:// or wss:// url, got %q", s.URL)
		}
	case "whisper":
		if s.URL == "" && s.APIKey == "" {
			return fmt.Errorf("whisper requires url or api_key")
		}
	case "google":
	case "mock":
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if s.Endpoint.Threshold <= 0 || s.Endpoint.Threshold >= 1 {
		return fmt.Errorf("endpoint threshold must be between 0 and 1, got %f", s.Endpoint.Threshold)
	}
	if s.Endpoint.Silence <= 0 {
		return fmt.Errorf("endpoint silence must be positive")
	}
	if s.Endpoint.MaxUtterance <= s.Endpoint.MinSpeech {
		return fmt.Errorf("endpoint max_utterance must exceed min_speech")
	}
	return nil
}

// Validate validates language model configuration.
func (l *LLMConfig) Validate() error {
	if l.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	switch l.Mode {
	case "completion", "chat":
	default:
		return fmt.Errorf("mode must be completion or chat, got %q", l.Mode)
	}
	if l.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", l.MaxTokens)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", l.Temperature)
	}
	if l.TopP < 0 || l.TopP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1, got %f", l.TopP)
	}
	for i, f := range l.Fallbacks {
		if f.BaseURL == "" || f.Model == "" {
			return fmt.Errorf("fallbacks[%d] needs base_url and model", i)
		}
	}
	return nil
}

// Validate validates disfluency configuration.
func (d *DisfluencyConfig) Validate() error {
	switch d.Provider {
	case "huggingface":
		if d.URL == "" {
			return fmt.Errorf("huggingface provider requires url")
		}
	case "llm", "none", "mock":
	default:
		return fmt.Errorf("unknown provider %q", d.Provider)
	}
	if d.MaxLength < 1 {
		return fmt.Errorf("max_length must be at least 1, got %d", d.MaxLength)
	}
	if d.NumBeams < 1 {
		return fmt.Errorf("num_beams must be at least 1, got %d", d.NumBeams)
	}
	return nil
}

// Validate validates the synthesizer list.
func (t *TTSConfig) Validate() error {
	if len(t.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	for i, p := range t.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("provider %d (%s): %w", i, p.Provider, err)
		}
	}
	return nil
}

// Validate validates a single synthesizer.
func (p *TTSProviderConfig) Validate() error {
	switch p.Provider {
	case "coqui":
		if p.BaseURL == "" {
			return fmt.Errorf("base_url cannot be empty")
		}
	case "inworld", "openai":
		if p.APIKey == "" {
			return fmt.Errorf("api_key required")
		}
	case "elevenlabs":
		if p.APIKey == "" {
			return fmt.Errorf("api_key required")
		}
		if p.VoiceID == "" {
			return fmt.Errorf("voice_id required")
		}
	case "google", "mock":
	default:
		return fmt.Errorf("unknown provider %q", p.Provider)
	}
	return nil
}

// Validate validates stage timeouts.
func (s *StagesConfig) Validate() error {
	if s.STTTimeout <= 0 || s.LLMTimeout <= 0 || s.DisfluencyTimeout <= 0 || s.TTSTimeout <= 0 {
		return fmt.Errorf("all stage timeouts must be positive")
	}
	return nil
}

// Validate validates turn store configuration.
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case "memory", "none":
	case "redis":
		if s.RedisURL == "" {
			return fmt.Errorf("redis backend requires redis_url")
		}
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if s.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be at least 1, got %d", s.MaxTurns)
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid level %q", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}

func validRate(rate int) bool {
	return rate >= 8000 && rate <= 48000
}

func opusRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}
