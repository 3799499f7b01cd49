package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vango-go/nova-live/internal/dotenv"
	"github.com/vango-go/nova-live/pkg/config"
)

var version = "dev"

// streams are the process standard streams, swapped out in tests.
type streams struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newLogger(w io.Writer, cfg config.Config, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func envFiles() []string {
	files := []string{".env"}
	if dir, err := os.UserConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, "nova", ".env"))
	}
	return files
}

func runMain(ctx context.Context, args []string, std streams) int {
	if err := dotenv.LoadFirst(envFiles()...); err != nil {
		fmt.Fprintf(std.errOut, "nova: %v\n", err)
		return 1
	}
	root := newRootCmd(std)
	root.SetArgs(args)
	root.SetIn(std.in)
	root.SetOut(std.out)
	root.SetErr(std.errOut)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(std.errOut, "nova: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], streams{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}))
}
