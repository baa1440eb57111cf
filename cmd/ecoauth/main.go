// Command ecoauth signs in to the EcoChallenge API and issues authenticated calls
// from the terminal. Credentials persist in the configured store between runs.
//
// Configuration comes from an optional YAML file (-c) plus ECOAUTH_* environment
// variables; --base-url and --store-file override both.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ecochallenge/ecoauth"
	"github.com/ecochallenge/ecoauth/credstore"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the flags and the Manager shared by every subcommand.
type app struct {
	configPath string
	baseURL    string
	storeFile  string
	logLevel   string
	auditJSON  bool

	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	manager *ecoauth.Manager
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:           "ecoauth",
		Short:         "EcoChallenge API session client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.open()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.manager == nil {
				return nil
			}
			return a.manager.Close()
		},
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file path (YAML)")
	flags.StringVar(&a.baseURL, "base-url", "", "API base URL (overrides config)")
	flags.StringVar(&a.storeFile, "store-file", "", "credential file (overrides config, selects the file store)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flags.BoolVar(&a.auditJSON, "audit", false, "write audit events as JSON lines to stderr")

	cmd.AddCommand(
		a.loginCmd(),
		a.registerCmd(),
		a.resetCmd(),
		a.logoutCmd(),
		a.statusCmd(),
		a.whoamiCmd(),
		a.refreshCmd(),
		a.getCmd(),
		a.listCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ecoauth version %s\n", version)
			},
		},
	)
	return cmd
}

func (a *app) open() error {
	cfg, err := ecoauth.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.storeFile != "" {
		cfg.Store.Backend = credstore.BackendFile
		cfg.Store.FilePath = a.storeFile
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.auditJSON {
		cfg.Audit.Enabled = true
	}

	b := ecoauth.New().
		WithConfig(cfg).
		WithLogger(newLogger(a.errOut, cfg.Log))
	if a.auditJSON {
		b = b.WithAuditSink(ecoauth.NewJSONWriterSink(a.errOut))
	}
	m, err := b.Build()
	if err != nil {
		return err
	}
	a.manager = m
	return nil
}

func newLogger(w io.Writer, cfg ecoauth.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
