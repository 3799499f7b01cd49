package host

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/godbus/dbus/v5"
)

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// DBusNotifier talks to org.freedesktop.Notifications on the session bus.
// When the bus is unavailable it defers to Fallback.
type DBusNotifier struct {
	AppName  string
	Timeout  int32 // milliseconds; -1 lets the server decide
	Fallback Notifier
	Logger   *slog.Logger
}

func (n *DBusNotifier) Notify(ctx context.Context, title, body string) error {
	err := n.notify(ctx, title, body)
	if err == nil {
		return nil
	}
	if n.Fallback == nil {
		return err
	}
	if n.Logger != nil {
		n.Logger.Debug("dbus notification failed, falling back", "error", err)
	}
	return n.Fallback.Notify(ctx, title, body)
}

func (n *DBusNotifier) notify(ctx context.Context, title, body string) error {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	timeout := n.Timeout
	if timeout == 0 {
		timeout = -1
	}
	obj := conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.CallWithContext(ctx, "org.freedesktop.Notifications.Notify", 0,
		n.AppName, uint32(0), "", title, body, []string{}, map[string]dbus.Variant{}, timeout)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}

// commandNotifier shells out to the platform notification helper.
type commandNotifier struct {
	sys *System
}

func (n *commandNotifier) Notify(ctx context.Context, title, body string) error {
	switch n.sys.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleString(body), appleString(title))
		return n.sys.runQuiet(ctx, "osascript", "-e", script)
	case "windows":
		ps := fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms; $n = New-Object System.Windows.Forms.NotifyIcon; $n.Icon = [System.Drawing.SystemIcons]::Information; $n.Visible = $true; $n.ShowBalloonTip(5000, '%s', '%s', 'Info'); Start-Sleep -Seconds 6; $n.Dispose()`,
			psEscape(title), psEscape(body))
		return n.sys.runQuiet(ctx, "powershell", "-NoProfile", "-Command", ps)
	default:
		return n.sys.runQuiet(ctx, "notify-send", "--app-name=Nova", title, body)
	}
}

func appleString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func psEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Clipboard reads and writes plain text.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// SystemClipboard is the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) ReadAll() (string, error) {
	if clipboard.Unsupported {
		return "", fmt.Errorf("clipboard: %w", ErrUnsupported)
	}
	return clipboard.ReadAll()
}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard: %w", ErrUnsupported)
	}
	return clipboard.WriteAll(text)
}
