package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/goanswer/internal/answer"
	"github.com/nextlevelbuilder/goanswer/internal/bus"
	"github.com/nextlevelbuilder/goanswer/internal/channels"
	"github.com/nextlevelbuilder/goanswer/internal/channels/discord"
	"github.com/nextlevelbuilder/goanswer/internal/config"
	"github.com/nextlevelbuilder/goanswer/internal/relay"
	"github.com/nextlevelbuilder/goanswer/internal/store"
	"github.com/nextlevelbuilder/goanswer/internal/tracing"
)

func runServe() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	// Load config
	cfgPath := resolveConfigPath()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// A Discord token is the one thing the relay cannot run without.
	if cfg.Channels.Discord.Token == "" {
		if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
			fmt.Println("No configuration found. Starting setup wizard...")
			fmt.Println()
			runOnboard()
			return
		}
		fmt.Println("No Discord bot token configured.")
		fmt.Println()
		fmt.Println("Set GOANSWER_DISCORD_TOKEN or re-run the setup wizard:  ./goanswer onboard")
		os.Exit(1)
	}
	if !cfg.Channels.Discord.Enabled {
		fmt.Println("The Discord channel is disabled in the configuration.")
		fmt.Println()
		fmt.Println("Set channels.discord.enabled to true, or set GOANSWER_DISCORD_TOKEN.")
		os.Exit(1)
	}
	if cfg.API.Key == "" {
		slog.Warn("no answer API key configured, questions will get a configuration error reply")
	}
	if verbose {
		masked, _ := json.Marshal(cfg.MaskedCopy())
		slog.Debug("effective configuration", "path", cfgPath, "config", string(masked))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry (no-op unless enabled in config)
	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without traces", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	// Create core components
	msgBus := bus.New()

	historyStore := store.Open(ctx, store.Config{
		Kind:       cfg.Storage.Type,
		MongoURI:   cfg.Storage.MongoURI,
		Database:   cfg.Storage.Database,
		Collection: cfg.Storage.Collection,
	})

	answers := answer.New(cfg.API.BaseURL, cfg.API.Key)

	channelMgr := channels.NewManager(msgBus)
	discordChannel, err := discord.New(cfg.Channels.Discord, msgBus)
	if err != nil {
		slog.Error("failed to create discord channel", "error", err)
		os.Exit(1)
	}
	channelMgr.RegisterChannel("discord", discordChannel)

	consumer := relay.New(msgBus, historyStore, answers, relay.Options{
		CommandPrefix: cfg.Relay.CommandPrefix,
		StartTyping:   channelMgr.StartTyping,
	})

	// Setup graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
		os.Exit(1)
	}

	go consumer.Run(ctx)

	// Config watcher: settings are read once at startup, so flag edits that
	// need a restart.
	if stopWatcher := watchConfig(cfgPath); stopWatcher != nil {
		defer stopWatcher()
	}

	slog.Info("goanswer relay started",
		"version", Version,
		"storage", historyStore.Name(),
		"channels", channelMgr.GetEnabledChannels(),
		"api_base", cfg.API.BaseURL,
	)

	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	channelMgr.StopAll(context.Background())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := historyStore.Close(shutdownCtx); err != nil {
		slog.Warn("history store close failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("trace flush failed", "error", err)
	}

	slog.Info("goanswer relay stopped")
}

// watchConfig logs when the config file changes on disk. It watches the
// directory rather than the file so editor save-via-rename still registers.
// Returns a cleanup function, or nil when watching is unavailable.
func watchConfig(path string) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return nil
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		slog.Warn("config watcher failed", "dir", dir, "error", err)
		watcher.Close()
		return nil
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) == filepath.Clean(path) &&
					event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					slog.Info("config file changed on disk, restart to apply", "path", path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()

	return func() { watcher.Close() }
}
