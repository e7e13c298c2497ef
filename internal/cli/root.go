// Package cli implements the command-line interface for xolex.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xolex/xolex/internal/config"
	"github.com/xolex/xolex/internal/remote"
	"github.com/xolex/xolex/internal/session"
	"github.com/xolex/xolex/internal/store"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config  *config.Config
	Store   *store.Store
	Logger  *slog.Logger
	Session *session.Context
	Client  remote.Client
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

// initContext loads config and opens the credential store (no session)
func initContext() *cmdContext {
	home, err := config.ResolveHome()
	if err != nil {
		exitError("%v", err)
	}

	cfg, err := config.Initialize(home)
	if err != nil {
		exitError("%v", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}
	if err := st.Initialize(); err != nil {
		st.Close()
		exitError("failed to initialize store: %v", err)
	}

	return &cmdContext{Config: cfg, Store: st, Logger: newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)}
}

// initSessionContext also reads the stored credential and builds the API client
func initSessionContext() *cmdContext {
	c := initContext()

	sess, err := session.Init(c.Store, c.Logger)
	if err != nil {
		c.Close()
		exitError("%v", err)
	}
	c.Session = sess
	c.Client = newClient(c.Config)

	return c
}

func newClient(cfg *config.Config) remote.Client {
	retry := remote.DefaultRetryConfig()
	retry.MaxRetries = cfg.RetryMax
	return remote.NewRetryClient(remote.NewHTTPClient(cfg.BaseURL, cfg.Timeout.Std()), retry)
}

// newLogger builds the diagnostics logger. Command output goes to stdout;
// logs never do.
func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "xolex",
	Short: "Xolex field client",
	Long: `Xolex is the field client for the Xolex logistics platform. Browse
operations, and confirm receipt of in-transit expeditions by scanning their
code or typing the tracking ID.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug diagnostics to stderr")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(operationsCmd)
	rootCmd.AddCommand(receiveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(configCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
