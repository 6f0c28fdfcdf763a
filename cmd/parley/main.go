// parley: voice conversation server.
//
// Callers stream microphone audio over /ws as AUDIO:<base64> frames and get
// each spoken reply back as one AUDIO frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-parley/internal/config"
	"github.com/teslashibe/go-parley/internal/log"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address, overrides the config file")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("parley", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parley:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := log.Init(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg, logger); err != nil {
		logger.Error("parley stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("parley starting",
		"version", version,
		"addr", cfg.Server.Addr,
		"stt", cfg.STT.Provider,
		"llm", cfg.LLM.Model,
		"disfluency", cfg.Disfluency.Provider,
		"tts", ttsNames(cfg),
		"store", cfg.Store.Backend,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.events.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := app.server.Listen(cfg.Server.Addr); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.server.Shutdown(sctx)
	})
	return g.Wait()
}

func ttsNames(cfg *config.Config) []string {
	names := make([]string, len(cfg.TTS.Providers))
	for i, p := range cfg.TTS.Providers {
		names[i] = p.Provider
	}
	return names
}
