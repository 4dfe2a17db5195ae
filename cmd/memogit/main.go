// Package main is the entry point for the memogit server.
//
// memogit stores short notes as month-sharded JSON documents in a GitHub
// repository, with images normalized to WebP and committed alongside them.
// Configuration comes from CLI flags and a .env file; the GitHub credential
// is either a personal access token or a GitHub App key.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v5"
	"github.com/itaober/memogit/internal/ghstore"
	"github.com/itaober/memogit/internal/server"
	"github.com/itaober/memogit/internal/server/handlers"
	"github.com/itaober/memogit/internal/storage"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "memogit: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	envFile := flag.String("env", ".env", "Path to the .env file holding GitHub credentials")
	owner := flag.String("owner", "", "GitHub repository owner")
	repo := flag.String("repo", "", "GitHub repository name")
	branch := flag.String("branch", "main", "Branch to commit to")
	timezone := flag.String("timezone", "", "Timezone for shard keys and timestamps (default Asia/Shanghai)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	env, err := loadEnv(*envFile)
	if err != nil {
		return err
	}

	// .env values fill in flags the user did not set explicitly.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["http"] {
		if v := env["HTTP"]; v != "" {
			*httpAddr = v
		}
	}
	if !set["log-level"] {
		if v := env["LOG_LEVEL"]; v != "" {
			*logLevel = v
		}
	}
	if !set["owner"] {
		*owner = env["GITHUB_OWNER"]
	}
	if !set["repo"] {
		*repo = env["GITHUB_REPO"]
	}
	if !set["branch"] {
		if v := env["GITHUB_BRANCH"]; v != "" {
			*branch = v
		}
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	if *owner == "" || *repo == "" {
		return errors.New("owner and repo are required (flags or GITHUB_OWNER/GITHUB_REPO in .env)")
	}

	tokens, err := newTokenSource(ctx, stop, *envFile, env)
	if err != nil {
		return err
	}

	cfg := storage.DefaultConfig()
	if *timezone != "" {
		cfg.Timezone = *timezone
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	clock, err := storage.NewClock(cfg.Timezone)
	if err != nil {
		return err
	}
	client := ghstore.NewClient(ghstore.Config{
		Owner:  *owner,
		Repo:   *repo,
		Branch: *branch,
	}, tokens)
	assetService := storage.NewAssetService(client, cfg)
	memoService := storage.NewMemoService(client, clock, cfg, assetService)
	indexService := storage.NewIndexService(client, cfg)

	buildVersion, _, _, _ := getBuildInfo()
	router := server.NewRouter(
		handlers.NewMemoHandler(memoService, indexService),
		handlers.NewAssetHandler(assetService),
		handlers.NewHealthHandler(buildVersion),
	)

	httpServer := &http.Server{
		Addr:              *httpAddr,
		Handler:           router,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", *httpAddr, "repo", *owner+"/"+*repo, "branch", *branch, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	// Wait for either context cancellation or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		// Graceful shutdown
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// newTokenSource builds the GitHub credential from the environment. A GitHub
// App key takes priority; otherwise a personal access token is used and the
// .env file is watched so a rotated token is picked up without a restart.
func newTokenSource(ctx context.Context, stop context.CancelFunc, envFile string, env map[string]string) (ghstore.TokenSource, error) {
	if keyPath := env["GITHUB_APP_PRIVATE_KEY"]; keyPath != "" {
		appID, err := strconv.ParseInt(env["GITHUB_APP_ID"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
		}
		installationID, err := strconv.ParseInt(env["GITHUB_APP_INSTALLATION_ID"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GITHUB_APP_INSTALLATION_ID: %w", err)
		}
		pemData, err := os.ReadFile(keyPath) //nolint:gosec // G304: path comes from the operator's .env, not user input
		if err != nil {
			return nil, fmt.Errorf("failed to read GitHub App key: %w", err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse GitHub App key: %w", err)
		}
		slog.InfoContext(ctx, "Using GitHub App authentication", "appID", appID, "installationID", installationID)
		return ghstore.NewAppAuth(appID, installationID, key), nil
	}

	token := env["GITHUB_TOKEN"]
	if token == "" {
		return nil, errors.New("GITHUB_TOKEN or GITHUB_APP_PRIVATE_KEY must be set in .env")
	}
	tokens := ghstore.NewStaticToken(token)
	if err := watchEnvFile(ctx, stop, envFile, tokens); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", envFile, err)
	}
	return tokens, nil
}

// watchEnvFile watches the .env file and swaps in a new GITHUB_TOKEN when the
// file changes. An emptied or removed token triggers graceful shutdown since
// every later API call would fail anyway.
func watchEnvFile(ctx context.Context, stop context.CancelFunc, envFile string, tokens *ghstore.StaticToken) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(envFile); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				env, err := godotenv.Read(envFile)
				if err != nil {
					slog.WarnContext(ctx, "Failed to reload .env", "err", err)
					continue
				}
				token := env["GITHUB_TOKEN"]
				if token == "" {
					slog.ErrorContext(ctx, "GITHUB_TOKEN removed from .env, shutting down")
					stop()
					return
				}
				tokens.Set(token)
				slog.InfoContext(ctx, "Reloaded GitHub token from .env")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching .env", "err", err)
			}
		}
	}()
	return nil
}

func loadEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("memogit %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
