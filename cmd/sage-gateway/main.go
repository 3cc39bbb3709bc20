// ABOUTME: Entry point for the sage-gateway query server
// ABOUTME: Wires config, store, remote transport, poller, and the HTTP API

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/sageql/sage-gateway/internal/api"
	"github.com/sageql/sage-gateway/internal/auth"
	"github.com/sageql/sage-gateway/internal/config"
	"github.com/sageql/sage-gateway/internal/conversation"
	"github.com/sageql/sage-gateway/internal/dedupe"
	"github.com/sageql/sage-gateway/internal/genie"
	"github.com/sageql/sage-gateway/internal/store"
	"github.com/sageql/sage-gateway/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 ___  __ _  __ _  ___        __ _  __ _| |_ _____      ____ _ _   _
/ __|/ _' |/ _' |/ _ \_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
\__ \ (_| | (_| |  __/_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|___/\__,_|\__, |\___|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
           |___/            |___/                             |___/
`

// retryLedgerTTL bounds how long a creation idempotency key keeps its
// retry accounting.
const retryLedgerTTL = 10 * time.Minute

// getConfigPath returns the path to the gateway config file.
// Priority: SAGE_CONFIG env var > ./config.yaml > ~/.config/sage/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SAGE_CONFIG"); envPath != "" {
		return envPath
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "sage", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: sage-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  health    Check gateway health")
		os.Exit(1)
	}

	// Local development convenience; missing .env is fine
	godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Genie:     %s (space %s)\n", cfg.Genie.Host, cfg.Genie.SpaceID)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting sage-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"genie_host", cfg.Genie.Host,
	)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	retries := dedupe.NewLedger(retryLedgerTTL, 10000)
	defer retries.Close()

	httpClient := transport.New(cfg.Genie.Host, cfg.Genie.Token, transport.Options{
		MaxAttempts: cfg.Genie.MaxRetries,
		BaseDelay:   cfg.Genie.RetryBaseDelay,
		CallTimeout: cfg.Genie.CallTimeout,
		Retries:     retries,
		Logger:      logger,
	})

	remote := genie.NewClient(cfg.Genie.SpaceID, httpClient, logger)

	pollerOpts := genie.PollerOptions{
		InitialInterval: cfg.Genie.PollInitial,
		MaxInterval:     cfg.Genie.PollMax,
		Deadline:        cfg.Genie.Deadline,
		Logger:          logger,
	}
	if cfg.Genie.SettleFollowUps {
		pollerOpts.Settle = cfg.Genie.PollInitial
	}
	poller := genie.NewPoller(remote, pollerOpts)

	svc := conversation.New(remote, poller, db, cfg.Limits.MaxConcurrent, logger)

	var verifier *auth.JWTVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("no jwt_secret configured, trusting forwarded identity headers")
	}

	handler := api.NewHandler(svc, logger)
	router := api.NewRouter(handler, auth.Middleware(verifier, logger))

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	// In-flight questions may be mid-poll; give them a moment to unwind
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func runHealth(ctx context.Context) error {
	base := os.Getenv("SAGE_GATEWAY_HTTP")
	if base == "" {
		base = "http://localhost:8080"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		color.Red("Gateway: UNREACHABLE (%v)", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		color.Green("Gateway: OK")
		return nil
	}
	color.Red("Gateway: ERROR (status %d)", resp.StatusCode)
	os.Exit(1)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
