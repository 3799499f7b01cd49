package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vango-go/nova-live/pkg/config"
	"github.com/vango-go/nova-live/pkg/credentials"
	"github.com/vango-go/nova-live/pkg/store"
)

type rootOptions struct {
	verbose bool
	dataDir string
}

func newRootCmd(std streams) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "nova",
		Short: "Nova - realtime voice assistant on Gemini Live",
		Long: `Nova runs a realtime voice session with Gemini Live and lets the model
act on this machine through a catalog of tools.

Examples:
  nova key set
  nova run
  nova chat --audio none
  nova tools`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "override NOVA_DATA_DIR")

	root.AddCommand(
		newRunCmd(opts, std),
		newChatCmd(opts, std),
		newToolsCmd(opts, std),
		newKeyCmd(opts, std),
		newConfigCmd(opts, std),
	)
	return root
}

// loadConfig reads the environment and applies the global flags.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	return cfg, nil
}

func (o *rootOptions) logger(std streams, cfg config.Config) *slog.Logger {
	return newLogger(std.errOut, cfg, o.verbose)
}

// openStore opens the configured document store backend.
func openStore(cfg config.Config) (*store.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		b, err := store.OpenSQLite(cfg.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store.New(b), nil
	default:
		b, err := store.NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return store.New(b), nil
	}
}

func credentialProvider(cfg config.Config, st *store.Store, logger *slog.Logger) *credentials.Provider {
	return &credentials.Provider{Store: st, DisableKeyring: cfg.DisableKeyring, Logger: logger}
}

// withStore runs fn with the configured store and closes it afterwards.
func (o *rootOptions) withStore(ctx context.Context, std streams, fn func(context.Context, config.Config, *store.Store, *slog.Logger) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger := o.logger(std, cfg)
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, cfg, st, logger)
}
