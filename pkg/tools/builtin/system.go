package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/core"
	"github.com/vango-go/nova-live/pkg/host"
	"github.com/vango-go/nova-live/pkg/tools"
)

// VisualContextPrompt accompanies a screenshot sent back to the model.
const VisualContextPrompt = "[SYSTEM_VISUAL_CONTEXT] This is the screenshot I just captured. Please analyze what you see to answer my previous request."

func systemTools(d *Deps) []tools.Handler {
	return []tools.Handler{
		shellCommand(d),
		manageFiles(),
		openItem(d),
		getClipboard(d),
		setClipboard(d),
		takeScreenshot(d),
		sendNotification(d),
		getSystemInfo(d),
		getProcesses(d),
		killProcess(d),
		windowControl(d),
		keyboardPress(d),
		keyboardType(d),
		adjustVolume(d),
	}
}

func shellCommand(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "execute_shell_command",
		Description: `Executes a shell command on the user's computer. Use this for general system settings or advanced scripted tasks. FOR VOLUME CONTROL, ALWAYS USE THE dedicated "adjust_volume" TOOL instead.`,
		Parameters: object([]string{"command"}, map[string]*genai.Schema{
			"command": str("The shell command to execute."),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		command, err := tools.String(call.Args, "command", true)
		if err != nil {
			return tools.Result{}, err
		}
		return tools.Payload(map[string]any{"result": d.Host.Shell(ctx, command)}), nil
	})
}

func manageFiles() tools.Handler {
	ops := []string{"read-dir", "create-dir", "write-file", "read-file", "delete", "exists"}
	return handler(&genai.FunctionDeclaration{
		Name:        "manage_files",
		Description: "Manage files and folders (create, read, list, delete).",
		Parameters: object([]string{"operation", "path"}, map[string]*genai.Schema{
			"operation": str("", ops...),
			"path":      str("The absolute path to the file or folder."),
			"content":   str("Content to write (for write-file only)."),
		}),
	}, func(_ context.Context, call tools.Call) (tools.Result, error) {
		op, err := tools.Enum(call.Args, "operation", true, ops...)
		if err != nil {
			return tools.Result{}, err
		}
		raw, err := tools.String(call.Args, "path", true)
		if err != nil {
			return tools.Result{}, err
		}
		content, err := tools.String(call.Args, "content", false)
		if err != nil {
			return tools.Result{}, err
		}
		result, err := FileOp(op, ExpandPath(raw), content)
		if err != nil {
			return tools.Result{}, err
		}
		return tools.Payload(map[string]any{"result": result}), nil
	})
}

// FileOp performs one manage_files operation.
func FileOp(op, path, content string) (any, error) {
	switch op {
	case "read-dir":
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return names, nil
	case "create-dir":
		return true, os.MkdirAll(path, 0o755)
	case "write-file":
		return true, os.WriteFile(path, []byte(content), 0o644)
	case "read-file":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case "delete":
		if _, err := os.Lstat(path); err != nil {
			return nil, err
		}
		return true, os.RemoveAll(path)
	case "exists":
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return nil, err
		}
		return true, nil
	default:
		return nil, core.NewValidationError("unknown operation "+op, "operation")
	}
}

// ExpandPath resolves a leading "~" to the home directory.
func ExpandPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}

func openItem(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "open_item",
		Description: `Opens an application, file, or URL on the user's computer. Examples: "gedit", "firefox", "~/Documents/resume.pdf", "https://google.com". For WhatsApp, just use "whatsapp".`,
		Parameters: object([]string{"target"}, map[string]*genai.Schema{
			"target": str("The path to the file/app or the URL to open."),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		target, err := tools.String(call.Args, "target", true)
		if err != nil {
			return tools.Result{}, err
		}
		if strings.EqualFold(strings.TrimSpace(target), "whatsapp") {
			target = "whatsapp:"
		} else {
			target = ExpandPath(target)
		}
		if err := d.Host.Open(ctx, target); err != nil {
			return tools.Result{}, err
		}
		return tools.Reply("Opened successfully"), nil
	})
}

func getClipboard(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "get_clipboard",
		Description: "Reads the current text contents of the system clipboard.",
		Parameters:  object(nil, nil),
	}, func(context.Context, tools.Call) (tools.Result, error) {
		text, err := d.Host.ReadClipboard()
		if err != nil {
			return tools.Result{}, err
		}
		return tools.Payload(map[string]any{"text": text}), nil
	})
}

func setClipboard(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "set_clipboard",
		Description: "Writes text content to the system clipboard.",
		Parameters: object([]string{"text"}, map[string]*genai.Schema{
			"text": str("Text to copy to clipboard"),
		}),
	}, func(_ context.Context, call tools.Call) (tools.Result, error) {
		text, err := tools.String(call.Args, "text", false)
		if err != nil {
			return tools.Result{}, err
		}
		if err := d.Host.WriteClipboard(text); err != nil {
			return tools.Result{}, err
		}
		return tools.Payload(map[string]any{"success": true}), nil
	})
}

func takeScreenshot(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "take_screenshot",
		Description: "Captures a screenshot of the user's screen and adds it to your visual context.",
		Parameters:  object(nil, nil),
	}, func(ctx context.Context, _ tools.Call) (tools.Result, error) {
		jpeg, err := d.Host.Screenshot(ctx)
		if err != nil {
			return tools.Result{}, err
		}
		res := tools.Reply("Screenshot captured and added to my visual context. I am processing it now.")
		if d.Turns != nil {
			res.After = d.ScreenshotDelay
			res.FollowUp = func() {
				parts := []*genai.Part{
					{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: jpeg}},
					{Text: VisualContextPrompt},
				}
				if err := d.Turns.SendTurn(parts, true); err != nil {
					d.Logger.Warn("screenshot follow-up failed", "error", err)
				}
			}
		}
		return res, nil
	})
}

func sendNotification(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "send_notification",
		Description: "Sends a system notification to the user's desktop.",
		Parameters: object([]string{"title", "body"}, map[string]*genai.Schema{
			"title": str("Notification title"),
			"body":  str("Notification message body"),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		title, err := tools.String(call.Args, "title", true)
		if err != nil {
			return tools.Result{}, err
		}
		body, err := tools.String(call.Args, "body", false)
		if err != nil {
			return tools.Result{}, err
		}
		if err := d.Host.Notify(ctx, title, body); err != nil {
			return tools.Result{}, err
		}
		return tools.Payload(map[string]any{"success": true}), nil
	})
}

func getSystemInfo(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "get_system_info",
		Description: "Gets detailed system information: CPU, RAM, GPU, OS, Network, Battery.",
		Parameters:  object(nil, nil),
	}, func(ctx context.Context, _ tools.Call) (tools.Result, error) {
		info, err := d.Host.SystemInfo(ctx)
		if err != nil {
			return tools.Result{}, err
		}
		return tools.Payload(info), nil
	})
}

func getProcesses(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "get_processes",
		Description: "Gets a list of running processes sorted by CPU usage. Useful for diagnosing performance issues.",
		Parameters:  object(nil, nil),
	}, func(ctx context.Context, _ tools.Call) (tools.Result, error) {
		procs, err := d.Host.Processes(ctx)
		if err != nil {
			return tools.Result{}, err
		}
		return tools.Payload(map[string]any{"processes": procs}), nil
	})
}

func killProcess(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "kill_process",
		Description: "Terminates a running process by its PID or by name. ALWAYS ask user for confirmation before using this.",
		Parameters: object(nil, map[string]*genai.Schema{
			"pid":  num("Process ID to terminate"),
			"name": str("Process name to terminate (every matching process is killed)"),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		pid, err := tools.Int(call.Args, "pid", false, 0)
		if err != nil {
			return tools.Result{}, err
		}
		name, err := tools.String(call.Args, "name", false)
		if err != nil {
			return tools.Result{}, err
		}
		if pid == 0 && name == "" {
			return tools.Result{}, core.NewValidationError("pid or name is required", "pid")
		}
		if pid < 0 {
			return tools.Result{}, core.NewValidationError("pid must be positive", "pid")
		}
		if pid > 0 {
			if err := d.Host.Kill(ctx, pid); err != nil {
				return tools.Result{}, err
			}
			return tools.Payload(map[string]any{"success": true}), nil
		}

		procs, err := d.Host.Processes(ctx)
		if err != nil {
			return tools.Result{}, err
		}
		var killed []int
		for _, p := range procs {
			if !sameProcessName(p.Name, name) {
				continue
			}
			if err := d.Host.Kill(ctx, p.PID); err != nil {
				return tools.Result{}, err
			}
			killed = append(killed, p.PID)
		}
		if len(killed) == 0 {
			return tools.Result{}, core.NewValidationError(fmt.Sprintf("no running process named %q", name), "name")
		}
		return tools.Payload(map[string]any{"success": true, "killed": killed}), nil
	})
}

func sameProcessName(a, b string) bool {
	trim := func(s string) string {
		return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".exe")
	}
	return trim(a) == trim(b)
}

func windowControl(d *Deps) tools.Handler {
	actions := []string{"minimize", "maximize", "close", "fullscreen"}
	return handler(&genai.FunctionDeclaration{
		Name:        "window_control",
		Description: "Controls the focused window (minimize, maximize, close, fullscreen).",
		Parameters: object([]string{"action"}, map[string]*genai.Schema{
			"action": str("Window action to perform", actions...),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		action, err := tools.Enum(call.Args, "action", true, actions...)
		if err != nil {
			return tools.Result{}, err
		}
		if err := d.Host.Window(ctx, action); err != nil {
			return tools.Result{}, err
		}
		return tools.Payload(map[string]any{"success": true}), nil
	})
}

func keyboardPress(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "keyboard_press",
		Description: "Presses a specific key on the keyboard. Use this to press Enter after typing a message, navigate with arrow keys, or use keyboard shortcuts.",
		Parameters: object([]string{"key"}, map[string]*genai.Schema{
			"key": str("Key to press. Supported: " + strings.Join(host.Keys, ", ")),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		key, err := tools.String(call.Args, "key", true)
		if err != nil {
			return tools.Result{}, err
		}
		delayed := strings.EqualFold(strings.TrimSpace(key), "enter")
		if delayed {
			if err := sleep(ctx, d.EnterDelay); err != nil {
				return tools.Result{}, err
			}
		}
		if err := d.Host.PressKey(ctx, key); err != nil {
			return tools.Result{}, err
		}
		return tools.Payload(map[string]any{"success": true, "key": key, "delayed": delayed}), nil
	})
}

func keyboardType(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "keyboard_type",
		Description: "Types text using the keyboard and optionally presses Enter afterward.",
		Parameters: object([]string{"text"}, map[string]*genai.Schema{
			"text":       str("Text to type"),
			"pressEnter": boolean("If true, presses Enter after typing"),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		text, err := tools.String(call.Args, "text", true)
		if err != nil {
			return tools.Result{}, err
		}
		pressEnter, err := tools.Bool(call.Args, "pressEnter", false)
		if err != nil {
			return tools.Result{}, err
		}
		if err := d.Host.TypeText(ctx, text); err != nil {
			return tools.Result{}, err
		}
		if pressEnter {
			if err := sleep(ctx, d.TypeEnterDelay); err != nil {
				return tools.Result{}, err
			}
			if err := d.Host.PressKey(ctx, "enter"); err != nil {
				return tools.Result{}, err
			}
		}
		return tools.Payload(map[string]any{"success": true, "typed": text, "enterPressed": pressEnter}), nil
	})
}

func adjustVolume(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "adjust_volume",
		Description: "Adjusts the system volume (up, down, or mute).",
		Parameters: object([]string{"action"}, map[string]*genai.Schema{
			"action": str("The action to perform.", "up", "down", "mute"),
			"amount": num("The amount to increase or decrease (default is 5)."),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		action, err := tools.Enum(call.Args, "action", true, "up", "down", "mute")
		if err != nil {
			return tools.Result{}, err
		}
		amount, err := tools.Number(call.Args, "amount", false, 5)
		if err != nil {
			return tools.Result{}, err
		}
		if err := d.Host.AdjustVolume(ctx, action, VolumeSteps(amount)); err != nil {
			return tools.Result{}, err
		}
		return tools.Reply("Volume adjusted successfully."), nil
	})
}

// VolumeSteps converts a requested amount into key-press repetitions, one
// per two points, between 1 and 10.
func VolumeSteps(amount float64) int {
	n := int(amount / 2)
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("interrupted while waiting: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
