package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/vango-go/nova-live/pkg/config"
	"github.com/vango-go/nova-live/pkg/credentials"
	"github.com/vango-go/nova-live/pkg/host"
	"github.com/vango-go/nova-live/pkg/store"
	"github.com/vango-go/nova-live/pkg/tools"
	"github.com/vango-go/nova-live/pkg/tools/builtin"
)

func newToolsCmd(root *rootOptions, std streams) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the model may call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withStore(cmd.Context(), std, func(ctx context.Context, cfg config.Config, st *store.Store, logger *slog.Logger) error {
				h := host.New(host.Config{Logger: logger})
				reg, err := builtin.NewRegistry(builtinDeps(cfg, st, h, nil, logger))
				if err != nil {
					return err
				}
				gate, err := newGate(ctx, cfg)
				if err != nil {
					return err
				}
				return printCatalog(ctx, std.out, reg, gate)
			})
		},
	}
}

// printCatalog lists each tool with the verdict the gate gives a bare call.
func printCatalog(ctx context.Context, w io.Writer, reg *tools.Registry, gate tools.Gate) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPOLICY\tDESCRIPTION")
	for _, decl := range reg.Declarations() {
		verdict := tools.VerdictAllow
		if gate != nil {
			d, err := gate.Decide(ctx, tools.Call{Name: decl.Name, Args: map[string]any{}})
			if err != nil {
				return err
			}
			verdict = d.Verdict
		}
		desc := decl.Description
		if i := strings.IndexAny(desc, ".\n"); i > 0 {
			desc = desc[:i]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", decl.Name, verdict, desc)
	}
	return tw.Flush()
}

func newKeyCmd(root *rootOptions, std streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the Gemini API key",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set [key]",
			Short: "Store the API key in the OS keyring (or the data dir)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return root.withStore(cmd.Context(), std, func(ctx context.Context, cfg config.Config, st *store.Store, logger *slog.Logger) error {
					var key string
					if len(args) == 1 {
						key = args[0]
					} else {
						var err error
						if key, err = readSecret(std, "Gemini API key: "); err != nil {
							return err
						}
					}
					source, err := credentialProvider(cfg, st, logger).Set(ctx, key)
					if err != nil {
						return err
					}
					fmt.Fprintf(std.out, "API key stored (%s)\n", source)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the stored API key",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return root.withStore(cmd.Context(), std, func(ctx context.Context, cfg config.Config, st *store.Store, logger *slog.Logger) error {
					if err := credentialProvider(cfg, st, logger).Clear(ctx); err != nil {
						return err
					}
					fmt.Fprintln(std.out, "API key removed")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show where the API key comes from, masked",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return root.withStore(cmd.Context(), std, func(ctx context.Context, cfg config.Config, st *store.Store, logger *slog.Logger) error {
					key, source, err := credentialProvider(cfg, st, logger).Resolve(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(std.out, "%s (%s)\n", credentials.Mask(key), source)
					return nil
				})
			},
		},
	)
	return cmd
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret(std streams, prompt string) (string, error) {
	if f, ok := std.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(std.errOut, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(std.errOut)
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(std.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// configView is the printable form of the effective configuration.
type configView struct {
	DataDir         string         `yaml:"data_dir"`
	Store           string         `yaml:"store"`
	Model           string         `yaml:"model"`
	Voice           string         `yaml:"voice"`
	Thinking        bool           `yaml:"thinking"`
	ThinkingBudget  int            `yaml:"thinking_budget"`
	SilenceDuration string         `yaml:"silence_duration"`
	GoogleSearch    bool           `yaml:"google_search"`
	DedupWindow     string         `yaml:"dedup_window"`
	ToolTimeout     string         `yaml:"tool_timeout"`
	AllowShell      bool           `yaml:"allow_shell"`
	ConfirmMessages bool           `yaml:"confirm_messages"`
	PolicyFile      string         `yaml:"policy_file,omitempty"`
	Audio           string         `yaml:"audio"`
	Assistant       any            `yaml:"assistant"`
	Persona         config.Persona `yaml:"persona,omitempty"`
}

func newConfigCmd(root *rootOptions, std streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withStore(cmd.Context(), std, func(ctx context.Context, cfg config.Config, st *store.Store, _ *slog.Logger) error {
				persona, err := config.LoadPersona(cfg.PersonaFile)
				if err != nil {
					return err
				}
				ac, err := st.AssistantConfig(ctx)
				if err != nil {
					return err
				}
				voice := cfg.Voice
				if voice == "" {
					vc, err := st.VoiceConfig(ctx)
					if err != nil {
						return err
					}
					voice = vc.VoiceName
				}
				view := configView{
					DataDir:         cfg.DataDir,
					Store:           string(cfg.Store),
					Model:           cfg.Model,
					Voice:           voice,
					Thinking:        cfg.ThinkingEnabled,
					ThinkingBudget:  cfg.ThinkingBudget,
					SilenceDuration: cfg.SilenceDuration.String(),
					GoogleSearch:    cfg.GoogleSearch,
					DedupWindow:     cfg.DedupWindow.String(),
					ToolTimeout:     cfg.ToolTimeout.String(),
					AllowShell:      cfg.AllowShell,
					ConfirmMessages: cfg.ConfirmMessages,
					PolicyFile:      cfg.PolicyFile,
					Audio:           string(cfg.Audio),
					Assistant:       ac,
					Persona:         persona,
				}
				enc := yaml.NewEncoder(std.out)
				enc.SetIndent(2)
				if err := enc.Encode(view); err != nil {
					return err
				}
				return enc.Close()
			})
		},
	})
	return cmd
}
