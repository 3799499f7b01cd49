package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/nova-live/pkg/assistant"
	"github.com/vango-go/nova-live/pkg/config"
	"github.com/vango-go/nova-live/pkg/core/live"
	"github.com/vango-go/nova-live/pkg/tools"
)

// isolate points every path the CLI reads at a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	t.Setenv("NOVA_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("NOVA_DISABLE_KEYRING", "true")
	t.Setenv("GEMINI_API_KEY", "")
	t.Chdir(dir)
	return dir
}

func run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), args, streams{in: strings.NewReader(stdin), out: &stdout, errOut: &stderr})
	return code, stdout.String(), stderr.String()
}

func TestRunMain_ReturnsNonZeroOnInvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("NOVA_STORE", "postgres")

	code, _, stderr := run(t, "", "config", "show")
	if code != 1 {
		t.Fatalf("exitCode=%d, want 1", code)
	}
	if !strings.Contains(stderr, "NOVA_STORE") {
		t.Fatalf("stderr=%q, want NOVA_STORE error", stderr)
	}
}

func TestRunMain_LoadsDotenvFromWorkingDir(t *testing.T) {
	dir := isolate(t)
	t.Setenv("NOVA_MODEL", "")
	os.Unsetenv("NOVA_MODEL")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("NOVA_MODEL=gemini-from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	code, stdout, stderr := run(t, "", "config", "show")
	if code != 0 {
		t.Fatalf("exitCode=%d stderr=%q", code, stderr)
	}
	if !strings.Contains(stdout, "model: gemini-from-dotenv") {
		t.Fatalf("stdout=%q, want dotenv model", stdout)
	}
}

func TestConfigShow_PrintsStoreVoice(t *testing.T) {
	isolate(t)
	t.Setenv("NOVA_VOICE", "")

	code, stdout, stderr := run(t, "", "config", "show")
	if code != 0 {
		t.Fatalf("exitCode=%d stderr=%q", code, stderr)
	}
	for _, want := range []string{"voice: Charon", "store: file", "tool_timeout: 10s", "assistant:"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestKey_SetShowClearWithoutKeyring(t *testing.T) {
	isolate(t)

	code, stdout, stderr := run(t, "AIzaSecretValue1234\n", "key", "set")
	if code != 0 {
		t.Fatalf("set exitCode=%d stderr=%q", code, stderr)
	}
	if !strings.Contains(stdout, "(file)") {
		t.Fatalf("set stdout=%q, want file source", stdout)
	}

	code, stdout, _ = run(t, "", "key", "show")
	if code != 0 {
		t.Fatalf("show exitCode=%d", code)
	}
	if strings.Contains(stdout, "AIzaSecret") || !strings.Contains(stdout, "1234 (file)") {
		t.Fatalf("show stdout=%q, want masked key", stdout)
	}

	if code, _, stderr = run(t, "", "key", "clear"); code != 0 {
		t.Fatalf("clear exitCode=%d stderr=%q", code, stderr)
	}
	code, _, stderr = run(t, "", "key", "show")
	if code != 1 || !strings.Contains(stderr, "nova key set") {
		t.Fatalf("show after clear: exitCode=%d stderr=%q", code, stderr)
	}
}

func TestKey_SetRejectsEmptyInput(t *testing.T) {
	isolate(t)

	code, _, stderr := run(t, "\n", "key", "set")
	if code != 1 {
		t.Fatalf("exitCode=%d, want 1", code)
	}
	if !strings.Contains(stderr, "non-empty") {
		t.Fatalf("stderr=%q", stderr)
	}
}

func TestTools_ListsCatalogWithPolicy(t *testing.T) {
	isolate(t)
	t.Setenv("NOVA_ALLOW_SHELL", "false")

	code, stdout, stderr := run(t, "", "tools")
	if code != 0 {
		t.Fatalf("exitCode=%d stderr=%q", code, stderr)
	}
	if !strings.HasPrefix(stdout, "NAME") {
		t.Fatalf("stdout=%q, want header", stdout)
	}
	var shellLine string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, "execute_shell_command ") {
			shellLine = line
		}
	}
	if !strings.Contains(shellLine, string(tools.VerdictDeny)) {
		t.Fatalf("execute_shell_command line=%q, want deny", shellLine)
	}
	if !strings.Contains(stdout, "store_memory") {
		t.Fatalf("stdout missing store_memory:\n%s", stdout)
	}
}

func TestNewLogger_VerboseOverridesLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger(&buf, config.Config{LogLevel: "error", LogFormat: "json"}, true)
	logger.Debug("ping", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"ping"`) {
		t.Fatalf("log=%q, want json debug line", buf.String())
	}

	buf.Reset()
	newLogger(&buf, config.Config{LogLevel: "warn"}, false).Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
}

func TestLoadAttachments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	atts, err := loadAttachments([]string{path})
	if err != nil {
		t.Fatalf("loadAttachments: %v", err)
	}
	if len(atts) != 1 {
		t.Fatalf("len=%d, want 1", len(atts))
	}
	if atts[0].Name != "notes.txt" || atts[0].MIMEType != "text/plain" {
		t.Fatalf("attachment=%+v", atts[0])
	}
	if atts[0].Data != base64.StdEncoding.EncodeToString([]byte("hello")) {
		t.Fatalf("data=%q", atts[0].Data)
	}

	if _, err := loadAttachments([]string{filepath.Join(dir, "missing.bin")}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func newOfflineAssistant(t *testing.T) *assistant.Assistant {
	t.Helper()
	a, err := assistant.New(assistant.Dependencies{
		APIKey: func(context.Context) (string, error) { return "", errors.New("offline") },
	})
	if err != nil {
		t.Fatalf("assistant.New: %v", err)
	}
	return a
}

func TestHandleLine(t *testing.T) {
	t.Parallel()

	a := newOfflineAssistant(t)
	var out bytes.Buffer
	std := streams{out: &out, errOut: io.Discard}

	if quit, err := handleLine(a, "   ", std); quit || err != nil {
		t.Fatalf("blank line: quit=%v err=%v", quit, err)
	}
	if _, err := handleLine(a, "hello", std); !errors.Is(err, assistant.ErrNotConnected) {
		t.Fatalf("text while disconnected: err=%v", err)
	}
	if _, err := handleLine(a, "/mute", std); err != nil {
		t.Fatalf("/mute: %v", err)
	}
	if _, err := handleLine(a, "/bogus", std); err == nil {
		t.Fatalf("expected unknown command error")
	}

	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := handleLine(a, "/attach "+path, std); err != nil {
		t.Fatalf("/attach: %v", err)
	}
	if n := len(a.Attachments()); n != 1 {
		t.Fatalf("attachments=%d, want 1", n)
	}
	if _, err := handleLine(a, "/detach", std); err != nil {
		t.Fatalf("/detach: %v", err)
	}
	if n := len(a.Attachments()); n != 0 {
		t.Fatalf("attachments=%d after detach", n)
	}

	if _, err := handleLine(a, "/logs", std); err != nil {
		t.Fatalf("/logs: %v", err)
	}
	if !strings.Contains(out.String(), "Microphone Muted") {
		t.Fatalf("/logs output=%q", out.String())
	}

	out.Reset()
	if _, err := handleLine(a, "/levels", std); err != nil {
		t.Fatalf("/levels: %v", err)
	}
	if got := out.String(); got != "mic 0.000  speaker rms 0.000 peak 0.000\n" {
		t.Fatalf("/levels output=%q", got)
	}

	if quit, _ := handleLine(a, "/quit", std); !quit {
		t.Fatalf("/quit did not quit")
	}
}

func TestRenderer_PrintsCommittedMessagesOnce(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	r := newRenderer(&out, false)
	now := time.Now()
	r.render(&live.MessagesChangedEvent{Messages: []live.Message{
		{ID: "1", Role: live.RoleUser, Text: "hi", Timestamp: now},
		{ID: "2", Role: live.RoleAssistant, Text: "Hel", IsStreaming: true, Timestamp: now},
	}})
	r.render(&live.MessagesChangedEvent{Messages: []live.Message{
		{ID: "1", Role: live.RoleUser, Text: "hi", Timestamp: now},
		{ID: "2", Role: live.RoleAssistant, Text: "Hello", Thought: "greet", Timestamp: now},
	}})
	r.render(&live.LogEvent{Entry: live.LogEntry{Severity: live.SeverityInfo, Message: "quiet"}})

	got := out.String()
	want := "USER: hi\nASSISTANT: Hello\n"
	if got != want {
		t.Fatalf("output=%q, want %q", got, want)
	}
}

func TestDescribeArtifact_SummarizesLargeValues(t *testing.T) {
	t.Parallel()

	got := describeArtifact(map[string]any{
		"path":  "/tmp/shot.png",
		"image": strings.Repeat("A", 2000),
		"w":     640,
	})
	if got != "image=<2.0 kB> path=/tmp/shot.png w=640" {
		t.Fatalf("describeArtifact=%q", got)
	}
}

// lockedBuffer is a bytes.Buffer safe for concurrent writes and reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConsole_ConfirmTakesNextLine(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()
	out := &lockedBuffer{}
	con := newConsole(pr, out)

	type answer struct {
		ok  bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		ok, err := con.Confirm(context.Background(), tools.Call{Name: "send_whatsapp"}, "messages need approval")
		done <- answer{ok, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "Allow send_whatsapp") {
		if time.Now().After(deadline) {
			t.Fatalf("prompt never printed: %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := io.WriteString(pw, "y\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-done:
		if got.err != nil || !got.ok {
			t.Fatalf("Confirm=%v,%v want true,nil", got.ok, got.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Confirm did not return")
	}

	go func() { _, _ = io.WriteString(pw, "next\n") }()
	select {
	case line := <-con.Lines():
		if line != "next" {
			t.Fatalf("line=%q, want next", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("line not routed to chat loop")
	}
}

func TestConsole_ConfirmHonorsContext(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()
	con := newConsole(pr, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := con.Confirm(ctx, tools.Call{Name: "execute_shell_command"}, "shell")
	if ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Confirm=%v,%v want false,deadline", ok, err)
	}
}
