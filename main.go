package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/matt0x6f/irc-engine/internal/config"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/security"
)

func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "irc-engine.db"
	}
	return filepath.Join(homeDir, ".irc-engine", "playback.db")
}

func main() {
	configPath := flag.String("config", "irc.yaml", "network config file (.yaml, .toml or .json)")
	envFile := flag.String("env", ".env", "dotenv file with IRC_* overrides")
	dbPath := flag.String("db", defaultDBPath(), "playback mark database")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address, e.g. :9464")
	level := flag.String("log-level", "info", "log level")
	notify := flag.Bool("notify", true, "desktop notifications for private messages")
	raw := flag.Bool("raw", false, "print raw protocol lines")
	logFile := flag.String("log-file", "", "write logs to this file instead of stderr")
	setSecret := flag.String("set-secret", "", "read a secret (sasl, server or client-cert) from stdin, store it in the keychain and exit")
	forget := flag.String("forget-secret", "", "remove a secret (sasl, server or client-cert) from the keychain and exit")
	flag.Parse()

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error opening log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		logger.SetOutput(f, true)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Log.Warn().Err(err).Str("file", *envFile).Msg("Failed to load env file")
	}

	if lvl, err := zerolog.ParseLevel(*level); err == nil {
		logger.SetLevel(lvl)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	if *setSecret != "" || *forget != "" {
		keychain := security.NewKeychain()
		if *setSecret != "" {
			err = saveSecret(keychain, cfg.Host, *setSecret, os.Stdin)
		} else {
			err = forgetSecret(keychain, cfg.Host, *forget)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		fmt.Fprintln(os.Stderr, "Error creating data directory:", err)
		os.Exit(1)
	}

	app, err := NewApp(cfg, AppOptions{DBPath: *dbPath, Notify: *notify, Raw: *raw})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error initializing app:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", app.metrics.Handler())
		server = &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	go app.ReadInput(ctx, os.Stdin)

	runErr := app.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		server.Shutdown(shutdownCtx)
		cancel()
	}
	if err := app.Close(); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to close storage")
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "Error:", runErr)
		os.Exit(1)
	}
}
