package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/nova-live/pkg/assistant"
	"github.com/vango-go/nova-live/pkg/config"
	"github.com/vango-go/nova-live/pkg/core/live"
	"github.com/vango-go/nova-live/pkg/store"
)

// chatDrainTimeout bounds how long chat waits for the reply after stdin ends.
const chatDrainTimeout = 30 * time.Second

type sessionOptions struct {
	audio      string
	chat       bool
	muted      bool
	noThinking bool
	attach     []string
}

func newRunCmd(root *rootOptions, std streams) *cobra.Command {
	opts := &sessionOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a voice session",
		Long: `Start a realtime voice session. Speak to Nova through the microphone;
typed lines are sent as text turns. Commands: /mute, /unmute, /hardmute,
/unhardmute, /thinking on|off, /attach <path>, /detach, /levels, /logs, /quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withStore(cmd.Context(), std, func(ctx context.Context, cfg config.Config, st *store.Store, logger *slog.Logger) error {
				return runSession(ctx, cfg, st, logger, std, root.verbose, opts)
			})
		},
	}
	addSessionFlags(cmd, opts)
	return cmd
}

func newChatCmd(root *rootOptions, std streams) *cobra.Command {
	opts := &sessionOptions{chat: true}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send text turns from stdin",
		Long:  "Each stdin line is sent as a text turn. Audio output is optional; pass --audio none for a silent session.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withStore(cmd.Context(), std, func(ctx context.Context, cfg config.Config, st *store.Store, logger *slog.Logger) error {
				return runSession(ctx, cfg, st, logger, std, root.verbose, opts)
			})
		},
	}
	addSessionFlags(cmd, opts)
	return cmd
}

func addSessionFlags(cmd *cobra.Command, opts *sessionOptions) {
	cmd.Flags().StringVar(&opts.audio, "audio", "", "audio backend: auto, portaudio, ffmpeg, none (default NOVA_AUDIO)")
	cmd.Flags().BoolVar(&opts.muted, "mute", false, "start with the microphone muted")
	cmd.Flags().BoolVar(&opts.noThinking, "no-thinking", false, "disable the thought stream")
	cmd.Flags().StringSliceVar(&opts.attach, "attach", nil, "files to attach to the conversation")
}

func runSession(ctx context.Context, cfg config.Config, st *store.Store, logger *slog.Logger, std streams, verbose bool, opts *sessionOptions) error {
	backend := cfg.Audio
	if opts.audio != "" {
		backend = config.AudioBackend(strings.ToLower(opts.audio))
		cfg.Audio = backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if opts.noThinking {
		cfg.ThinkingEnabled = false
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	con := newConsole(std.in, std.out)
	a, err := newAssistant(ctx, cfg, st, appOptions{audio: backend, confirmer: con}, logger)
	if err != nil {
		return err
	}
	defer a.Disconnect()

	if len(opts.attach) > 0 {
		atts, err := loadAttachments(opts.attach)
		if err != nil {
			return err
		}
		a.SetAttachments(atts)
	}
	if opts.muted {
		a.SetMicMuted(true)
	}
	if err := a.Connect(ctx); err != nil {
		return err
	}

	r := newRenderer(std.out, verbose)
	lines := con.Lines()
	var drain <-chan time.Time
	draining := false
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-drain:
			return nil
		case ev := <-a.Events():
			r.render(ev)
			if sc, ok := ev.(*live.StatusChangedEvent); ok {
				switch sc.Status {
				case live.StatusDisconnected:
					return nil
				case live.StatusError:
					return fmt.Errorf("session ended: %s", sc.Error)
				}
			}
			if draining && assistantReplied(ev) {
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				lines = nil
				if opts.chat {
					draining = true
					drain = time.After(chatDrainTimeout)
				}
				continue
			}
			quit, err := handleLine(a, line, std)
			if err != nil {
				fmt.Fprintf(std.errOut, "nova: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// assistantReplied reports whether ev commits an assistant message.
func assistantReplied(ev live.Event) bool {
	mc, ok := ev.(*live.MessagesChangedEvent)
	if !ok || len(mc.Messages) == 0 {
		return false
	}
	last := mc.Messages[len(mc.Messages)-1]
	return last.Role == live.RoleAssistant && !last.IsStreaming
}

// handleLine runs a slash command or sends the line as a text turn.
func handleLine(a *assistant.Assistant, line string, std streams) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, a.SendText(line, false)
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/mute":
		a.SetMicMuted(true)
	case "/unmute":
		a.SetMicMuted(false)
	case "/hardmute":
		return false, a.SetHardMuted(true)
	case "/unhardmute":
		return false, a.SetHardMuted(false)
	case "/thinking":
		a.SetThinkingEnabled(arg != "off")
	case "/attach":
		atts, err := loadAttachments(strings.Fields(arg))
		if err != nil {
			return false, err
		}
		a.SetAttachments(append(a.Attachments(), atts...))
	case "/detach":
		a.SetAttachments(nil)
	case "/levels":
		out := a.OutputLevel()
		fmt.Fprintf(std.out, "mic %.3f  speaker rms %.3f peak %.3f\n", a.InputLevel(), out.RMS, out.Peak)
	case "/logs":
		for _, e := range a.Logs() {
			fmt.Fprintf(std.out, "%s [%s] %s\n", e.Timestamp.Format(time.TimeOnly), e.Severity, e.Message)
		}
	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
	return false, nil
}

// loadAttachments reads files into base64 attachments.
func loadAttachments(paths []string) ([]live.Attachment, error) {
	out := make([]live.Attachment, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", p, err)
		}
		mt := mime.TypeByExtension(filepath.Ext(p))
		if mt == "" {
			mt = http.DetectContentType(b)
		}
		if i := strings.Index(mt, ";"); i >= 0 {
			mt = mt[:i]
		}
		out = append(out, live.Attachment{
			Name:     filepath.Base(p),
			MIMEType: mt,
			Data:     base64.StdEncoding.EncodeToString(b),
		})
	}
	return out, nil
}
