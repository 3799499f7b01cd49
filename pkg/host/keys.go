package host

import (
	"context"
	"fmt"
	"strings"
)

// Keys lists the key names PressKey understands. Anything else is passed
// through to the platform tool unchanged.
var Keys = []string{
	"enter", "tab", "escape", "backspace", "delete",
	"up", "down", "left", "right", "home", "end", "pageup", "pagedown",
	"f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9", "f10", "f11", "f12",
	"ctrl+a", "ctrl+c", "ctrl+v", "ctrl+x", "ctrl+z", "ctrl+s", "ctrl+enter",
	"alt+f4", "alt+tab",
}

var xdotoolKeys = map[string]string{
	"enter":      "Return",
	"tab":        "Tab",
	"escape":     "Escape",
	"backspace":  "BackSpace",
	"delete":     "Delete",
	"up":         "Up",
	"down":       "Down",
	"left":       "Left",
	"right":      "Right",
	"home":       "Home",
	"end":        "End",
	"pageup":     "Prior",
	"pagedown":   "Next",
	"ctrl+enter": "ctrl+Return",
	"alt+f4":     "alt+F4",
	"alt+tab":    "alt+Tab",
}

var sendKeys = map[string]string{
	"enter":      "{ENTER}",
	"tab":        "{TAB}",
	"escape":     "{ESC}",
	"backspace":  "{BACKSPACE}",
	"delete":     "{DELETE}",
	"up":         "{UP}",
	"down":       "{DOWN}",
	"left":       "{LEFT}",
	"right":      "{RIGHT}",
	"home":       "{HOME}",
	"end":        "{END}",
	"pageup":     "{PGUP}",
	"pagedown":   "{PGDN}",
	"ctrl+a":     "^a",
	"ctrl+c":     "^c",
	"ctrl+v":     "^v",
	"ctrl+x":     "^x",
	"ctrl+z":     "^z",
	"ctrl+s":     "^s",
	"ctrl+enter": "^{ENTER}",
	"alt+f4":     "%{F4}",
	"alt+tab":    "%{TAB}",
}

// AppleScript key codes for non-character keys.
var appleKeyCodes = map[string]int{
	"enter":     36,
	"tab":       48,
	"escape":    53,
	"backspace": 51,
	"delete":    117,
	"up":        126,
	"down":      125,
	"left":      123,
	"right":     124,
	"home":      115,
	"end":       119,
	"pageup":    116,
	"pagedown":  121,
	"f1":        122, "f2": 120, "f3": 99, "f4": 118, "f5": 96, "f6": 97,
	"f7": 98, "f8": 100, "f9": 101, "f10": 109, "f11": 103, "f12": 111,
}

// XdotoolKey translates a key name into an xdotool keysym.
func XdotoolKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if v, ok := xdotoolKeys[k]; ok {
		return v
	}
	if len(k) >= 2 && k[0] == 'f' && isDigits(k[1:]) {
		return "F" + k[1:]
	}
	return key
}

// SendKeysKey translates a key name into Windows SendKeys syntax.
func SendKeysKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if v, ok := sendKeys[k]; ok {
		return v
	}
	if len(k) >= 2 && k[0] == 'f' && isDigits(k[1:]) {
		return "{F" + k[1:] + "}"
	}
	return key
}

// PressKey presses one key or shortcut in the focused window.
func (s *System) PressKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("key is empty")
	}
	switch s.goos {
	case "darwin":
		return s.runQuiet(ctx, "osascript", "-e", appleKeyScript(key))
	case "windows":
		return s.runQuiet(ctx, "powershell", "-NoProfile", "-Command",
			"Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait('"+psEscape(SendKeysKey(key))+"')")
	default:
		return s.runQuiet(ctx, "xdotool", "key", "--clearmodifiers", XdotoolKey(key))
	}
}

// TypeText types text into the focused window.
func (s *System) TypeText(ctx context.Context, text string) error {
	switch s.goos {
	case "darwin":
		return s.runQuiet(ctx, "osascript", "-e", `tell application "System Events" to keystroke `+appleString(text))
	case "windows":
		return s.runQuiet(ctx, "powershell", "-NoProfile", "-Command",
			"Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait('"+psEscape(EscapeSendKeys(text))+"')")
	default:
		return s.runQuiet(ctx, "xdotool", "type", "--delay", "12", "--", text)
	}
}

// EscapeSendKeys quotes the characters SendKeys treats as syntax.
func EscapeSendKeys(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '+', '^', '%', '~', '(', ')', '[', ']', '{', '}':
			b.WriteByte('{')
			b.WriteRune(r)
			b.WriteByte('}')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func appleKeyScript(key string) string {
	k := strings.ToLower(key)
	var mods []string
	for {
		switch {
		case strings.HasPrefix(k, "ctrl+"):
			mods = append(mods, "command down")
			k = k[len("ctrl+"):]
			continue
		case strings.HasPrefix(k, "alt+"):
			mods = append(mods, "option down")
			k = k[len("alt+"):]
			continue
		}
		break
	}
	using := ""
	if len(mods) == 1 {
		using = " using " + mods[0]
	} else if len(mods) > 1 {
		using = " using {" + strings.Join(mods, ", ") + "}"
	}
	if code, ok := appleKeyCodes[k]; ok {
		return fmt.Sprintf(`tell application "System Events" to key code %d%s`, code, using)
	}
	return `tell application "System Events" to keystroke ` + appleString(k) + using
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
