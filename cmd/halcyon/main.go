package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/halcyonware/halcyon/internal/api"
	"github.com/halcyonware/halcyon/internal/chat"
	"github.com/halcyonware/halcyon/internal/config"
	"github.com/halcyonware/halcyon/internal/logger"
	"github.com/halcyonware/halcyon/internal/socket"
	"github.com/halcyonware/halcyon/internal/state"
	"github.com/halcyonware/halcyon/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	configPath := flag.String("config", config.GetConfigPath(), "path to the configuration file")
	serverURL := flag.String("server", "", "backend base URL (overrides the configuration file)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error, none")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}

	// Allow environment variables to override config file values for logging.
	if envLevel := strings.TrimSpace(os.Getenv("HALCYON_LOG_LEVEL")); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("HALCYON_LOG_PATH")); envPath != "" {
		cfg.LogPath = envPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()
	slog.SetDefault(slog.New(logger.NewSlogHandler(logger.Global())))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New()
	st.Set(store.KeyConfig, cfg)

	client := api.NewClient(cfg.ServerURL, cfg.HTTPTimeoutDuration(), st, logger.Global())
	assembler := chat.NewAssembler(st, logger.Global(), client)
	correlator := chat.NewCorrelator(st, logger.Global())

	sockCfg := &socket.Config{
		URL:              cfg.ResolveSocketURL(),
		DialTimeout:      cfg.Socket.DialTimeout(),
		WriteTimeout:     cfg.Socket.WriteTimeout(),
		PingInterval:     cfg.Socket.PingInterval(),
		PongWait:         cfg.Socket.PongWait(),
		RoundTripTimeout: cfg.Socket.RoundTripTimeout(),
	}
	session := socket.NewSession(sockCfg, st, logger.Global(), assembler, correlator)

	db, err := state.NewDatabase(filepath.Join(cfg.StateDir, "session.db"))
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}
	defer db.Close()

	manager := state.NewManager(db, client, st, assembler, logger.Global())

	announceTransitions(st)

	if err := session.Connect(ctx); err != nil {
		// The engine still works over HTTP; the socket can be retried.
		logger.Warn("initial socket connect failed: %v", err)
	}
	defer session.Disconnect()

	if err := manager.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	// Hot-reload the configuration file; only the flags that are safe to
	// change mid-session are applied to the running process.
	watcher := config.NewWatcher(*configPath, logger.Global(), func(next *config.Config) {
		logger.Global().SetLevel(logger.ParseLevel(next.LogLevel))
		st.Set(store.KeyConfig, next)
	})
	go func() {
		if watchErr := watcher.Run(ctx); watchErr != nil && ctx.Err() == nil {
			logger.Warn("config watcher stopped: %v", watchErr)
		}
	}()

	logger.Info("session ready, active chat %s", st.GetString(store.KeyActiveChat))
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// announceTransitions mirrors the load-bearing state transitions to stdout
// so the engine is observable when run standalone.
func announceTransitions(st *store.Store) {
	st.Subscribe(store.KeyConnected, func(value, _ any) {
		if connected, ok := value.(bool); ok {
			if connected {
				fmt.Println("[socket] connected")
			} else {
				fmt.Println("[socket] disconnected")
			}
		}
	})
	st.Subscribe(store.KeyStatusMessage, func(value, _ any) {
		if msg, ok := value.(string); ok && msg != "" {
			fmt.Printf("[status] %s\n", msg)
		}
	})
	st.Subscribe(store.KeyProcessingChat, func(value, _ any) {
		if chatID, ok := value.(string); ok && chatID != "" {
			fmt.Printf("[chat] generation started for %s\n", chatID)
		}
	})
	st.Subscribe(store.KeyHistory, func(value, _ any) {
		history, ok := value.([]chat.Message)
		if !ok || len(history) == 0 {
			return
		}
		last := history[len(history)-1]
		if last.Final && last.Role == chat.RoleAssistant {
			fmt.Printf("[chat] %s\n", last.Content)
		}
	})
}
