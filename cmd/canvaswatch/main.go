// Command canvaswatch is the canvas capture daemon.
//
// Usage:
//
//	canvaswatch -config canvaswatch.yaml   # capture per YAML config
//	canvaswatch -url https://example.com   # quick single-page sampling (stdout sink)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/canvaswatch"
	"github.com/hazyhaar/canvaswatch/rodcapture"
	"github.com/hazyhaar/canvaswatch/surface"
)

func main() {
	configPath := flag.String("config", "", "path to canvaswatch.yaml config file")
	singleURL := flag.String("url", "", "sample a single URL (stdout sink)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL); err != nil {
		logger.Error("canvaswatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL string) error {
	switch {
	case singleURL != "":
		cfg := &canvaswatch.FileConfig{}
		cfg.ApplyDefaults()
		cfg.Browser.URL = singleURL
		return runDaemon(ctx, logger, cfg)

	case configPath != "":
		cfg, err := canvaswatch.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runDaemon(ctx, logger, cfg)
	}

	fmt.Fprintln(os.Stderr, "usage: canvaswatch -config <file> | -url <url>")
	os.Exit(1)
	return nil
}

func runDaemon(ctx context.Context, logger *slog.Logger, cfg *canvaswatch.FileConfig) error {
	if !*cfg.Capture.Enabled {
		logger.Info("canvaswatch: capture disabled, nothing to do")
		return nil
	}
	if cfg.Browser.URL == "" {
		return fmt.Errorf("no browser.url configured: the daemon needs a page to attach to")
	}

	sinks, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}

	browser, err := rodcapture.Connect(rodcapture.BrowserConfig{
		Remote:  cfg.Browser.Remote,
		Stealth: cfg.Browser.Stealth,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer browser.Close()

	page, err := rodcapture.OpenPage(ctx, browser, cfg.Browser.URL, cfg.Browser.Stealth)
	if err != nil {
		return err
	}
	defer page.Close()

	source := rodcapture.NewSource(page, logger)

	mode := canvaswatch.ModeFromFile(cfg)
	if !mode.IsSampled() {
		// Exhaustive interception needs an in-process mutation source;
		// a browser page only supports sampling.
		logger.Warn("canvaswatch: exhaustive mode has no interception source in daemon context, falling back to sampling",
			"fps", cfg.Capture.SampleFPS)
		mode = canvaswatch.Sampled(cfg.Capture.SampleFPS)
	}

	recorder, err := canvaswatch.New(canvaswatch.Config{
		Mode:               mode,
		Registry:           source.Registry(),
		Lister:             source,
		Encoder:            source,
		Encoding:           encodeOptions(cfg),
		FrameInterval:      cfg.Clock.Interval,
		ClearCachesOnReset: cfg.Capture.ClearCachesOnReset,
	}, logger, sinks...)
	if err != nil {
		return err
	}

	if err := recorder.Start(); err != nil {
		return err
	}
	defer recorder.Stop()

	if cfg.Control.Addr != "" {
		ctrl := newControl(recorder, logger)
		go ctrl.serve(ctx, cfg.Control.Addr)
	}

	logger.Info("canvaswatch: capturing",
		"url", cfg.Browser.URL, "session", recorder.SessionID(), "sampled", mode.IsSampled())

	<-ctx.Done()
	return nil
}

func buildSinks(cfg *canvaswatch.FileConfig, logger *slog.Logger) ([]canvaswatch.Sink, error) {
	var sinks []canvaswatch.Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, canvaswatch.NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, canvaswatch.NewWebhookSink(sc.URL, logger))
		case "sqlite":
			s, err := canvaswatch.NewStoreSink(sc.Path)
			if err != nil {
				return nil, fmt.Errorf("open sqlite sink: %w", err)
			}
			sinks = append(sinks, s)
		}
	}
	return sinks, nil
}

func encodeOptions(cfg *canvaswatch.FileConfig) surface.EncodeOptions {
	return surface.EncodeOptions{
		Format:  cfg.Encoding.Format,
		Quality: cfg.Encoding.Quality,
		MaxDim:  cfg.Encoding.MaxDim,
	}
}
