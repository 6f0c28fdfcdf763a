package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teslashibe/go-parley/internal/config"
	"github.com/teslashibe/go-parley/pkg/audio"
	"github.com/teslashibe/go-parley/pkg/conversation"
	"github.com/teslashibe/go-parley/pkg/disfluency"
	"github.com/teslashibe/go-parley/pkg/hub"
	"github.com/teslashibe/go-parley/pkg/inference"
	"github.com/teslashibe/go-parley/pkg/metrics"
	"github.com/teslashibe/go-parley/pkg/server"
	"github.com/teslashibe/go-parley/pkg/store"
	"github.com/teslashibe/go-parley/pkg/stt"
	"github.com/teslashibe/go-parley/pkg/tts"
	"github.com/teslashibe/go-parley/pkg/voice"
)

// application is everything main starts and stops.
type application struct {
	server  *server.Server
	events  *hub.Hub
	closers []func() error
}

// Close releases providers in reverse construction order.
func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	factory, err := buildRecognizer(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("stt: %w", err)
	}

	llm, err := buildLLM(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	app.closers = append(app.closers, llm.Close)

	responder, err := conversation.NewResponder(llm,
		conversation.WithMode(conversation.Mode(cfg.LLM.Mode)),
		conversation.WithInstruction(cfg.LLM.Instruction),
		conversation.WithMaxTokens(cfg.LLM.MaxTokens),
		conversation.WithTemperature(cfg.LLM.Temperature),
		conversation.WithTopP(cfg.LLM.TopP),
		conversation.WithStop(cfg.LLM.Stop...),
		conversation.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}

	rewriter, err := buildRewriter(cfg, llm, logger)
	if err != nil {
		return nil, fmt.Errorf("disfluency: %w", err)
	}
	if c, ok := rewriter.(interface{ Close() error }); ok {
		app.closers = append(app.closers, c.Close)
	}

	synth, err := buildSynthesizer(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	app.closers = append(app.closers, synth.Close)

	turns, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	app.closers = append(app.closers, turns.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(reg)

	pipeline, err := voice.New(responder, rewriter, synth,
		voice.WithStageTimeouts(cfg.Stages.LLMTimeout, cfg.Stages.DisfluencyTimeout, cfg.Stages.TTSTimeout),
		voice.WithObserver(collector),
		voice.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	app.events = hub.New("events", logger)

	app.server, err = server.New(factory, pipeline,
		server.WithVersion(version),
		server.WithMaxSessions(cfg.Server.MaxSessions),
		server.WithLimits(cfg.Server.ReadLimit, cfg.Server.QueueSize, cfg.Server.WriteTimeout),
		server.WithAudio(cfg.Audio.InputCodec, cfg.Audio.InputSampleRate, cfg.Audio.RecognizerSampleRate),
		server.WithTextFrames(cfg.Protocol.TextFrames),
		server.WithRateLimit(cfg.Limits.FramesPerSecond, cfg.Limits.Burst),
		server.WithSTTTimeout(cfg.Stages.STTTimeout),
		server.WithStore(turns),
		server.WithMetrics(collector, reg),
		server.WithHub(app.events),
		server.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	return app, nil
}

func buildRecognizer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stt.Factory, error) {
	c := cfg.STT
	ep := audio.DefaultEndpointConfig()
	ep.SampleRate = cfg.Audio.RecognizerSampleRate
	ep.Threshold = c.Endpoint.Threshold
	ep.Silence = c.Endpoint.Silence
	ep.MinSpeech = c.Endpoint.MinSpeech
	ep.MaxUtterance = c.Endpoint.MaxUtterance
	ep.PreRoll = c.Endpoint.PreRoll

	opts := []stt.Option{
		stt.WithSampleRate(cfg.Audio.RecognizerSampleRate),
		stt.WithEndpoint(ep),
		stt.WithLogger(logger),
	}
	if c.URL != "" {
		opts = append(opts, stt.WithBaseURL(c.URL))
	}
	if c.APIKey != "" {
		opts = append(opts, stt.WithAPIKey(c.APIKey))
	}
	if c.Model != "" {
		opts = append(opts, stt.WithModel(c.Model))
	}
	if c.Language != "" {
		opts = append(opts, stt.WithLanguage(c.Language))
	}
	if c.CredentialsFile != "" {
		opts = append(opts, stt.WithCredentialsFile(c.CredentialsFile))
	}
	if c.Timeout > 0 {
		opts = append(opts, stt.WithTimeout(c.Timeout))
	}
	if c.MaxRetries > 0 {
		opts = append(opts, stt.WithRetry(c.MaxRetries, 500*time.Millisecond))
	}

	switch c.Provider {
	case "vosk":
		return stt.NewVosk(opts...)
	case "whisper":
		return stt.NewWhisperRecognizer(opts...)
	case "google":
		return stt.NewGoogleRecognizer(ctx, opts...)
	case "mock":
		// Every detected utterance transcribes as "hello".
		return stt.NewEndpointing(&stt.MockTranscriber{}, opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}

// buildLLM returns the primary client, or a chain when fallbacks are set.
func buildLLM(cfg *config.Config, logger *slog.Logger) (inference.Provider, error) {
	c := cfg.LLM
	primary, err := newLLMClient(c, config.LLMEndpoint{BaseURL: c.BaseURL, APIKey: c.APIKey, Model: c.Model}, logger)
	if err != nil {
		return nil, err
	}
	if len(c.Fallbacks) == 0 {
		return primary, nil
	}

	providers := []inference.Provider{primary}
	for i, ep := range c.Fallbacks {
		p, err := newLLMClient(c, ep, logger)
		if err != nil {
			for _, done := range providers {
				done.Close()
			}
			return nil, fmt.Errorf("fallbacks[%d]: %w", i, err)
		}
		providers = append(providers, p)
	}
	return inference.NewChainWithLogger(logger, providers...)
}

func newLLMClient(c config.LLMConfig, ep config.LLMEndpoint, logger *slog.Logger) (*inference.Client, error) {
	opts := []inference.Option{
		inference.WithBaseURL(ep.BaseURL),
		inference.WithModel(ep.Model),
		inference.WithMaxTokens(c.MaxTokens),
		inference.WithTemperature(c.Temperature),
		inference.WithTopP(c.TopP),
		inference.WithStop(c.Stop...),
		inference.WithLogger(logger),
	}
	if ep.APIKey != "" {
		opts = append(opts, inference.WithAPIKey(ep.APIKey))
	}
	if c.Timeout > 0 {
		opts = append(opts, inference.WithTimeout(c.Timeout))
	}
	if c.MaxRetries > 0 {
		opts = append(opts, inference.WithRetry(c.MaxRetries, 500*time.Millisecond))
	}
	return inference.NewClient(opts...)
}

func buildRewriter(cfg *config.Config, llm inference.Provider, logger *slog.Logger) (disfluency.Rewriter, error) {
	c := cfg.Disfluency
	opts := []disfluency.Option{
		disfluency.WithParams(disfluency.Params{
			MaxLength:         c.MaxLength,
			NumBeams:          c.NumBeams,
			Temperature:       c.Temperature,
			DoSample:          c.DoSample,
			NoRepeatNgramSize: c.NoRepeatNgramSize,
		}),
		disfluency.WithLogger(logger),
	}
	if c.Timeout > 0 {
		opts = append(opts, disfluency.WithTimeout(c.Timeout))
	}

	switch c.Provider {
	case "huggingface":
		opts = append(opts, disfluency.WithBaseURL(c.URL))
		if c.APIToken != "" {
			opts = append(opts, disfluency.WithAPIToken(c.APIToken))
		}
		return disfluency.NewHuggingFace(opts...)
	case "llm":
		return disfluency.NewLLM(llm, opts...)
	case "mock":
		return disfluency.NewMock(), nil
	case "none":
		return disfluency.None{}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}

// buildSynthesizer builds every configured synthesizer and chains them in
// order, so later ones are fallbacks.
func buildSynthesizer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tts.Provider, error) {
	var providers []tts.Provider
	closeAll := func() {
		for _, p := range providers {
			p.Close()
		}
	}

	for i, pc := range cfg.TTS.Providers {
		p, err := buildTTSProvider(ctx, pc, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("provider %d (%s): %w", i, pc.Provider, err)
		}
		providers = append(providers, p)
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	return tts.NewChainWithLogger(logger, providers...)
}

func buildTTSProvider(ctx context.Context, pc config.TTSProviderConfig, logger *slog.Logger) (tts.Provider, error) {
	opts := []tts.Option{tts.WithLogger(logger)}
	if pc.BaseURL != "" {
		opts = append(opts, tts.WithBaseURL(pc.BaseURL))
	}
	if pc.APIKey != "" {
		opts = append(opts, tts.WithAPIKey(pc.APIKey))
	}
	if pc.VoiceID != "" {
		opts = append(opts, tts.WithVoice(pc.VoiceID))
	}
	if pc.ModelID != "" {
		opts = append(opts, tts.WithModel(pc.ModelID))
	}
	if pc.LanguageCode != "" {
		opts = append(opts, tts.WithLanguage(pc.LanguageCode))
	}
	if pc.OutputFormat != "" {
		opts = append(opts, tts.WithOutputFormat(tts.Encoding(pc.OutputFormat)))
	}
	if pc.CredentialsFile != "" {
		opts = append(opts, tts.WithCredentialsFile(pc.CredentialsFile))
	}
	if pc.Timeout > 0 {
		opts = append(opts, tts.WithTimeout(pc.Timeout))
	}
	if pc.MaxRetries > 0 {
		opts = append(opts, tts.WithRetry(pc.MaxRetries, 200*time.Millisecond))
	}

	switch pc.Provider {
	case "inworld":
		return tts.NewInworld(opts...)
	case "coqui":
		return tts.NewCoqui(opts...)
	case "openai":
		return tts.NewOpenAI(opts...)
	case "elevenlabs":
		return tts.NewElevenLabs(opts...)
	case "google":
		return tts.NewGoogle(ctx, opts...)
	case "mock":
		return tts.NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", pc.Provider)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (store.TurnStore, error) {
	c := cfg.Store
	opts := []store.Option{
		store.WithKeyPrefix(c.KeyPrefix),
		store.WithMaxTurns(c.MaxTurns),
		store.WithTTL(c.TTL),
	}

	switch c.Backend {
	case "memory":
		return store.NewMemory(opts...), nil
	case "redis":
		return store.NewRedis(ctx, c.RedisURL, opts...)
	case "none":
		return store.Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}
