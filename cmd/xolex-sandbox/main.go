// Command xolex-sandbox runs a local operations API for the xolex client.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/xolex/xolex/internal/remote/opstore"
	"github.com/xolex/xolex/internal/remote/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	listen := flag.String("listen", envOrDefault("XOLEX_SANDBOX_LISTEN", "127.0.0.1:8720"), "Listen address")
	dataDir := flag.String("data-dir", envOrDefault("XOLEX_SANDBOX_DATA_DIR", ".xolex-sandbox"), "Data directory")
	secret := flag.String("secret", os.Getenv("XOLEX_SANDBOX_SECRET"), "Credential signing secret (random when empty)")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Credential lifetime")
	fixture := flag.String("fixture", os.Getenv("XOLEX_SANDBOX_FIXTURE"), "TOML fixture seeded into an empty database")
	logLevel := flag.String("log-level", envOrDefault("XOLEX_SANDBOX_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", envOrDefault("XOLEX_SANDBOX_LOG_FORMAT", "json"), "Log format (json, text)")
	tlsCert := flag.String("tls-cert", os.Getenv("XOLEX_SANDBOX_TLS_CERT"), "TLS certificate file")
	tlsKey := flag.String("tls-key", os.Getenv("XOLEX_SANDBOX_TLS_KEY"), "TLS key file")
	webhookURLs := flag.String("webhook-urls", os.Getenv("XOLEX_SANDBOX_WEBHOOK_URLS"), "Comma-separated webhook URLs to notify on reception")
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

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	if err := run(logger, options{
		listen:      *listen,
		dataDir:     *dataDir,
		secret:      *secret,
		tokenTTL:    *tokenTTL,
		fixture:     *fixture,
		tlsCert:     *tlsCert,
		tlsKey:      *tlsKey,
		webhookURLs: *webhookURLs,
	}); err != nil {
		logger.Error("sandbox failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	listen      string
	dataDir     string
	secret      string
	tokenTTL    time.Duration
	fixture     string
	tlsCert     string
	tlsKey      string
	webhookURLs string
}

func run(logger *slog.Logger, o options) error {
	if err := os.MkdirAll(o.dataDir, 0755); err != nil {
		return err
	}

	store, err := opstore.New(filepath.Join(o.dataDir, "sandbox.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Initialize(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seed(ctx, store, o.fixture, logger); err != nil {
		return err
	}

	key := []byte(o.secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		logger.Warn("no secret configured, credentials will not survive a restart")
	}
	tokens, err := server.NewTokenIssuer(key, o.tokenTTL)
	if err != nil {
		return err
	}

	cfg := server.DefaultServerConfig()
	if urls := splitURLs(o.webhookURLs); len(urls) > 0 {
		cfg.Webhooks = server.NewWebhookNotifier(&server.WebhookConfig{URLs: urls}, logger)
		logger.Info("webhooks configured", "count", len(urls))
	}

	h, cleanup := server.Handler(store, tokens, cfg, logger)
	defer cleanup()

	srv := &http.Server{
		Addr:         o.listen,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return context.Background() },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting xolex-sandbox", "listen", o.listen, "data_dir", o.dataDir)
		var err error
		if o.tlsCert != "" && o.tlsKey != "" {
			err = srv.ListenAndServeTLS(o.tlsCert, o.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("sandbox stopped")
	return nil
}

func seed(ctx context.Context, store *opstore.Store, path string, logger *slog.Logger) error {
	var (
		f   *opstore.Fixture
		err error
	)
	if path != "" {
		f, err = opstore.LoadFixture(path)
	} else {
		f, err = opstore.DefaultFixture()
	}
	if err != nil {
		return err
	}

	seeded, err := store.Seed(ctx, f)
	if err != nil {
		return err
	}
	if seeded {
		logger.Info("seeded fixture", "users", len(f.Users), "operations", len(f.Operations))
	}
	return nil
}

func splitURLs(s string) []string {
	var urls []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
