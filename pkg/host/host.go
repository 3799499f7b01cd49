// Package host performs desktop actions on the local machine for the tool
// handlers: shell commands, launching items, notifications, screenshots,
// volume, processes, keyboard and window automation, and system facts.
//
// Everything goes through a Runner so the command lines chosen for each
// platform can be asserted without executing anything.
package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ErrUnsupported is returned when an action has no implementation on this platform.
var ErrUnsupported = errors.New("not supported on this platform")

// ExecResult is the outcome of one external command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (ExecResult, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Dir string
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (ExecResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, fmt.Errorf("%s exited with code %d: %w", name, res.ExitCode, err)
		}
		return res, fmt.Errorf("run %s: %w", name, err)
	}
	return res, nil
}

func (r ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Process is one row of the process table.
type Process struct {
	Name string  `json:"name"`
	PID  int     `json:"pid"`
	CPU  float64 `json:"cpu"`
	Mem  float64 `json:"mem"`
}

// ShellResult mirrors what the model sees for execute_shell_command.
type ShellResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Error   string `json:"error,omitempty"`
}

// Host is the set of desktop actions the tools rely on.
type Host interface {
	Shell(ctx context.Context, command string) ShellResult
	Open(ctx context.Context, target string) error
	Notify(ctx context.Context, title, body string) error
	Screenshot(ctx context.Context) ([]byte, error)
	AdjustVolume(ctx context.Context, action string, steps int) error
	Processes(ctx context.Context) ([]Process, error)
	Kill(ctx context.Context, pid int) error
	PressKey(ctx context.Context, key string) error
	TypeText(ctx context.Context, text string) error
	Window(ctx context.Context, action string) error
	SystemInfo(ctx context.Context) (map[string]any, error)
	ReadClipboard() (string, error)
	WriteClipboard(text string) error
}

// Config configures a System host.
type Config struct {
	Runner Runner
	// GOOS overrides runtime.GOOS, mostly for tests.
	GOOS string
	// ShellTimeout bounds execute_shell_command. Default: 30s.
	ShellTimeout time.Duration
	// TempDir receives screenshots before they are read back. Default: os.TempDir().
	TempDir string

	Notifier  Notifier
	Clipboard Clipboard
	Logger    *slog.Logger
}

// System is the Host for the machine the process runs on.
type System struct {
	run       Runner
	goos      string
	shellTO   time.Duration
	tempDir   string
	notifier  Notifier
	clipboard Clipboard
	logger    *slog.Logger

	readFile func(string) ([]byte, error)
}

// New creates a System host.
func New(cfg Config) *System {
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	if cfg.ShellTimeout <= 0 {
		cfg.ShellTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clipboard == nil {
		cfg.Clipboard = SystemClipboard{}
	}
	s := &System{
		run:       cfg.Runner,
		goos:      cfg.GOOS,
		shellTO:   cfg.ShellTimeout,
		tempDir:   cfg.TempDir,
		notifier:  cfg.Notifier,
		clipboard: cfg.Clipboard,
		logger:    cfg.Logger,
		readFile:  os.ReadFile,
	}
	if s.notifier == nil {
		s.notifier = &commandNotifier{sys: s}
		if s.goos == "linux" {
			s.notifier = &DBusNotifier{AppName: "Nova", Fallback: s.notifier, Logger: cfg.Logger}
		}
	}
	return s
}

// GOOS reports the platform the host issues commands for.
func (s *System) GOOS() string { return s.goos }

// Shell runs command through the platform shell and reports its output.
// A non-zero exit is reported in the result, not as an error.
func (s *System) Shell(ctx context.Context, command string) ShellResult {
	ctx, cancel := context.WithTimeout(ctx, s.shellTO)
	defer cancel()

	name, args := "sh", []string{"-c", command}
	if s.goos == "windows" {
		name, args = "powershell", []string{"-NoProfile", "-Command", command}
	}
	res, err := s.run.Run(ctx, name, args...)
	out := ShellResult{Success: err == nil, Stdout: res.Stdout, Stderr: res.Stderr}
	if err != nil {
		out.Error = err.Error()
		if ctx.Err() != nil {
			out.Error = fmt.Sprintf("command timed out after %s", s.shellTO)
		}
	}
	return out
}

// Open launches an application, file or URL with the desktop's default handler.
func (s *System) Open(ctx context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("target is empty")
	}
	switch s.goos {
	case "darwin":
		if isURLOrPath(target) {
			return s.runQuiet(ctx, "open", target)
		}
		return s.runQuiet(ctx, "open", "-a", target)
	case "windows":
		return s.runQuiet(ctx, "cmd", "/c", "start", "", target)
	default:
		if isURLOrPath(target) {
			return s.runQuiet(ctx, "xdg-open", target)
		}
		if _, err := s.run.LookPath(target); err == nil {
			return s.startDetached(ctx, target)
		}
		return s.runQuiet(ctx, "gtk-launch", target)
	}
}

// startDetached launches an application binary without waiting for it.
func (s *System) startDetached(ctx context.Context, bin string) error {
	return s.runQuiet(ctx, "sh", "-c", "nohup "+shellQuote(bin)+" >/dev/null 2>&1 &")
}

func (s *System) Notify(ctx context.Context, title, body string) error {
	return s.notifier.Notify(ctx, title, body)
}

func (s *System) ReadClipboard() (string, error) { return s.clipboard.ReadAll() }

func (s *System) WriteClipboard(text string) error { return s.clipboard.WriteAll(text) }

// AdjustVolume changes the output volume. action is up, down or mute; steps
// is the number of two-percent increments.
func (s *System) AdjustVolume(ctx context.Context, action string, steps int) error {
	if steps < 1 {
		steps = 1
	}
	pct := steps * 2
	switch s.goos {
	case "darwin":
		var script string
		switch action {
		case "up":
			script = fmt.Sprintf("set volume output volume ((output volume of (get volume settings)) + %d)", pct)
		case "down":
			script = fmt.Sprintf("set volume output volume ((output volume of (get volume settings)) - %d)", pct)
		case "mute":
			script = "set volume output muted not (output muted of (get volume settings))"
		default:
			return fmt.Errorf("unknown volume action %q", action)
		}
		return s.runQuiet(ctx, "osascript", "-e", script)
	case "windows":
		key := map[string]string{"up": "175", "down": "174", "mute": "173"}[action]
		if key == "" {
			return fmt.Errorf("unknown volume action %q", action)
		}
		reps := steps
		if action == "mute" {
			reps = 1
		}
		cmd := strings.TrimSuffix(strings.Repeat("(new-object -com wscript.shell).SendKeys([char]"+key+"); ", reps), "; ")
		return s.runQuiet(ctx, "powershell", "-NoProfile", "-Command", cmd)
	default:
		switch action {
		case "up":
			return s.runQuiet(ctx, "pactl", "set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("+%d%%", pct))
		case "down":
			return s.runQuiet(ctx, "pactl", "set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("-%d%%", pct))
		case "mute":
			return s.runQuiet(ctx, "pactl", "set-sink-mute", "@DEFAULT_SINK@", "toggle")
		default:
			return fmt.Errorf("unknown volume action %q", action)
		}
	}
}

func (s *System) Kill(ctx context.Context, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if s.goos == "windows" {
		return s.runQuiet(ctx, "taskkill", "/F", "/PID", fmt.Sprint(pid))
	}
	return s.runQuiet(ctx, "kill", fmt.Sprint(pid))
}

// Window acts on the focused window: minimize, maximize, close or fullscreen.
func (s *System) Window(ctx context.Context, action string) error {
	switch s.goos {
	case "darwin":
		script := map[string]string{
			"minimize":   `tell application "System Events" to keystroke "m" using command down`,
			"maximize":   `tell application "System Events" to keystroke "f" using {control down, command down}`,
			"close":      `tell application "System Events" to keystroke "w" using command down`,
			"fullscreen": `tell application "System Events" to keystroke "f" using {control down, command down}`,
		}[action]
		if script == "" {
			return fmt.Errorf("unknown window action %q", action)
		}
		return s.runQuiet(ctx, "osascript", "-e", script)
	case "windows":
		return ErrUnsupported
	default:
		switch action {
		case "minimize":
			return s.runQuiet(ctx, "xdotool", "getactivewindow", "windowminimize")
		case "maximize":
			return s.runQuiet(ctx, "wmctrl", "-r", ":ACTIVE:", "-b", "toggle,maximized_vert,maximized_horz")
		case "close":
			return s.runQuiet(ctx, "xdotool", "getactivewindow", "windowclose")
		case "fullscreen":
			return s.runQuiet(ctx, "wmctrl", "-r", ":ACTIVE:", "-b", "toggle,fullscreen")
		default:
			return fmt.Errorf("unknown window action %q", action)
		}
	}
}

func (s *System) runQuiet(ctx context.Context, name string, args ...string) error {
	res, err := s.run.Run(ctx, name, args...)
	if err != nil {
		if msg := strings.TrimSpace(res.Stderr); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func isURLOrPath(target string) bool {
	if strings.Contains(target, "://") || strings.HasPrefix(target, "mailto:") {
		return true
	}
	if strings.HasSuffix(target, ":") && !strings.ContainsAny(target, `/\ `) {
		return true
	}
	return strings.ContainsAny(target, `/\`) || strings.HasPrefix(target, "~") || strings.Contains(target, ".")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
