package builtin

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/core/live"
	"github.com/vango-go/nova-live/pkg/host"
	"github.com/vango-go/nova-live/pkg/store"
	"github.com/vango-go/nova-live/pkg/tools"
	"github.com/vango-go/nova-live/pkg/tools/safety"
)

type fakeHost struct {
	mu      sync.Mutex
	actions []string
	clip    string
	shot    []byte
	err     error
}

func (h *fakeHost) record(s string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, s)
	return h.err
}

func (h *fakeHost) Shell(_ context.Context, command string) host.ShellResult {
	h.record("shell " + command)
	return host.ShellResult{Success: true, Stdout: "ok"}
}
func (h *fakeHost) Open(_ context.Context, target string) error { return h.record("open " + target) }
func (h *fakeHost) Notify(_ context.Context, title, body string) error {
	return h.record("notify " + title + "|" + body)
}
func (h *fakeHost) Screenshot(context.Context) ([]byte, error) { return h.shot, h.err }
func (h *fakeHost) AdjustVolume(_ context.Context, action string, steps int) error {
	return h.record("volume " + action + " " + strings.Repeat("+", steps))
}
func (h *fakeHost) Processes(context.Context) ([]host.Process, error) {
	return []host.Process{{Name: "nova", PID: 7, CPU: 1.5}}, nil
}
func (h *fakeHost) Kill(_ context.Context, pid int) error { return h.record(fmt.Sprintf("kill %d", pid)) }
func (h *fakeHost) PressKey(_ context.Context, key string) error {
	return h.record("key " + key)
}
func (h *fakeHost) TypeText(_ context.Context, text string) error { return h.record("type " + text) }
func (h *fakeHost) Window(_ context.Context, action string) error {
	return h.record("window " + action)
}
func (h *fakeHost) SystemInfo(context.Context) (map[string]any, error) {
	return map[string]any{"os": map[string]any{"platform": "linux"}}, nil
}
func (h *fakeHost) ReadClipboard() (string, error) { return h.clip, nil }
func (h *fakeHost) WriteClipboard(text string) error {
	h.clip = text
	return nil
}

func (h *fakeHost) log() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.actions...)
}

type fakeMessenger struct {
	name, phone, message string
}

func (m *fakeMessenger) SendWhatsApp(_ context.Context, name, phone, message string) (string, error) {
	m.name, m.phone, m.message = name, phone, message
	if phone != "" {
		return host.MethodDeepLink, nil
	}
	return host.MethodKeyboard, nil
}

type fakeImager struct{}

func (fakeImager) GenerateImage(context.Context, string) ([]byte, string, error) {
	return []byte("png-bytes"), "image/png", nil
}

type fakeTurns struct {
	mu    sync.Mutex
	parts []*genai.Part
	done  bool
}

func (f *fakeTurns) SendTurn(parts []*genai.Part, turnComplete bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parts, f.done = parts, turnComplete
	return nil
}

type staticAttachments []live.Attachment

func (s staticAttachments) Attachments() []live.Attachment { return s }

type harness struct {
	reg       *tools.Registry
	host      *fakeHost
	store     *store.Store
	artifacts []*live.ArtifactEvent
	mu        sync.Mutex
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	h := &harness{host: &fakeHost{}, store: store.New(backend)}
	d := Deps{
		Store:          h.store,
		Host:           h.host,
		EnterDelay:     -1,
		TypeEnterDelay: -1,
		DownloadsDir:   t.TempDir(),
		Emit: func(ev live.Event) {
			if a, ok := ev.(*live.ArtifactEvent); ok {
				h.mu.Lock()
				h.artifacts = append(h.artifacts, a)
				h.mu.Unlock()
			}
		},
	}
	if mutate != nil {
		mutate(&d)
	}
	h.reg, err = NewRegistry(d)
	require.NoError(t, err)
	return h
}

func (h *harness) call(t *testing.T, name string, args map[string]any) (tools.Result, error) {
	t.Helper()
	handler, ok := h.reg.Get(name)
	require.True(t, ok, "tool %s not registered", name)
	if args == nil {
		args = map[string]any{}
	}
	return handler.Execute(context.Background(), tools.Call{ID: "c1", Name: name, Args: args})
}

func (h *harness) lastArtifact() *live.ArtifactEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.artifacts) == 0 {
		return nil
	}
	return h.artifacts[len(h.artifacts)-1]
}

func TestRegistry_CatalogDependsOnCollaborators(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Images = fakeImager{}
		d.Messenger = &fakeMessenger{}
	})
	for _, name := range []string{
		"store_memory", "get_memories", "add_note", "read_notes", "add_task", "read_tasks", "update_dashboard",
		"execute_shell_command", "manage_files", "open_item", "get_clipboard", "set_clipboard",
		"take_screenshot", "send_notification", "get_system_info", "get_processes", "kill_process",
		"window_control", "keyboard_press", "keyboard_type", "adjust_volume",
		"http_request", "play_youtube_video", "start_navigation",
		"render_diagram", "read_attached_files", "generate_image", "send_whatsapp", "turn_off",
	} {
		assert.True(t, h.reg.Has(name), name)
	}

	bare, err := NewRegistry(Deps{})
	require.NoError(t, err)
	assert.False(t, bare.Has("store_memory"))
	assert.False(t, bare.Has("execute_shell_command"))
	assert.False(t, bare.Has("send_whatsapp"))
	assert.True(t, bare.Has("turn_off"))
	assert.True(t, bare.Has("render_diagram"))
}

func TestMemoryTools(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.call(t, "store_memory", map[string]any{"content": "likes black coffee"})
	require.NoError(t, err)
	assert.Equal(t, "Memory stored successfully.", res.Response["result"])
	require.NotNil(t, h.lastArtifact())
	assert.Equal(t, "memories", h.lastArtifact().Kind)

	res, err = h.call(t, "get_memories", nil)
	require.NoError(t, err)
	mems := res.Response["memories"].([]store.Memory)
	require.Len(t, mems, 1)
	assert.Equal(t, "likes black coffee", mems[0].Content)

	_, err = h.call(t, "store_memory", nil)
	assert.Error(t, err)
}

func TestNotesAndTasks(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.call(t, "add_note", map[string]any{"title": "Groceries", "content": "milk, eggs", "category": "Personal"})
	require.NoError(t, err)
	_, err = h.call(t, "add_note", map[string]any{"title": "Standup", "content": "ship the release", "category": "Work"})
	require.NoError(t, err)

	res, err := h.call(t, "read_notes", map[string]any{"query": "MILK"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Response["count"])

	res, err = h.call(t, "read_notes", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Response["count"])

	_, err = h.call(t, "add_task", map[string]any{"text": "call mom", "priority": "high"})
	require.NoError(t, err)
	_, err = h.call(t, "add_task", map[string]any{"text": "water plants"})
	require.NoError(t, err)
	_, err = h.call(t, "add_task", map[string]any{"text": "x", "priority": "urgent"})
	assert.Error(t, err)

	res, err = h.call(t, "read_tasks", nil)
	require.NoError(t, err)
	assert.Equal(t, "all", res.Response["filter"])
	assert.Equal(t, 2, res.Response["count"])

	res, err = h.call(t, "read_tasks", map[string]any{"filter": "high"})
	require.NoError(t, err)
	tasks := res.Response["tasks"].([]store.Task)
	require.Len(t, tasks, 1)
	assert.Equal(t, "call mom", tasks[0].Text)

	res, err = h.call(t, "read_tasks", map[string]any{"filter": "completed"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Response["count"])
}

func TestFilterNotes_EmptyQueryCapsAtTen(t *testing.T) {
	notes := make([]store.Note, 15)
	assert.Len(t, FilterNotes(notes, "  "), maxUnfilteredNotes)
}

func TestUpdateDashboard(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.call(t, "update_dashboard", map[string]any{
		"headlines": []any{"a", "b", "c"},
		"weather":   map[string]any{"today": "72°F, Clear", "tomorrow": "Rain", "dayAfter": "Sun"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Dashboard updated successfully.", res.Response["result"])
	art := h.lastArtifact()
	require.NotNil(t, art)
	assert.Equal(t, "dashboard", art.Kind)
	assert.Equal(t, []string{"a", "b", "c"}, art.Payload["headlines"])

	_, err = h.call(t, "update_dashboard", map[string]any{"headlines": []any{"a"}})
	assert.Error(t, err)
}

func TestManageFiles(t *testing.T) {
	h := newHarness(t, nil)
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	file := filepath.Join(dir, "a.txt")

	res, err := h.call(t, "manage_files", map[string]any{"operation": "create-dir", "path": dir})
	require.NoError(t, err)
	assert.Equal(t, true, res.Response["result"])

	_, err = h.call(t, "manage_files", map[string]any{"operation": "write-file", "path": file, "content": "hello"})
	require.NoError(t, err)

	res, err = h.call(t, "manage_files", map[string]any{"operation": "read-file", "path": file})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Response["result"])

	res, err = h.call(t, "manage_files", map[string]any{"operation": "read-dir", "path": dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.Response["result"])

	_, err = h.call(t, "manage_files", map[string]any{"operation": "delete", "path": file})
	require.NoError(t, err)
	res, err = h.call(t, "manage_files", map[string]any{"operation": "exists", "path": file})
	require.NoError(t, err)
	assert.Equal(t, false, res.Response["result"])

	_, err = h.call(t, "manage_files", map[string]any{"operation": "read-file", "path": file})
	assert.Error(t, err)
	_, err = h.call(t, "manage_files", map[string]any{"operation": "chmod", "path": file})
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Documents"), ExpandPath("~/Documents"))
	assert.Equal(t, "/tmp/x", ExpandPath(" /tmp/x "))
}

func TestSystemTools_DelegateToHost(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.call(t, "execute_shell_command", map[string]any{"command": "uptime"})
	require.NoError(t, err)
	assert.True(t, res.Response["result"].(host.ShellResult).Success)

	res, err = h.call(t, "open_item", map[string]any{"target": "WhatsApp"})
	require.NoError(t, err)
	assert.Equal(t, "Opened successfully", res.Response["result"])

	_, err = h.call(t, "set_clipboard", map[string]any{"text": "copied"})
	require.NoError(t, err)
	res, err = h.call(t, "get_clipboard", nil)
	require.NoError(t, err)
	assert.Equal(t, "copied", res.Response["text"])

	_, err = h.call(t, "send_notification", map[string]any{"title": "Hi", "body": "there"})
	require.NoError(t, err)
	_, err = h.call(t, "kill_process", map[string]any{"pid": float64(42)})
	require.NoError(t, err)
	_, err = h.call(t, "kill_process", map[string]any{"pid": float64(-1)})
	assert.Error(t, err)
	res, err = h.call(t, "kill_process", map[string]any{"name": "Nova.exe"})
	require.NoError(t, err)
	assert.Equal(t, []int{7}, res.Response["killed"])
	_, err = h.call(t, "kill_process", map[string]any{"name": "ghost"})
	assert.Error(t, err)
	_, err = h.call(t, "kill_process", nil)
	assert.Error(t, err)
	_, err = h.call(t, "window_control", map[string]any{"action": "minimize"})
	require.NoError(t, err)
	_, err = h.call(t, "window_control", map[string]any{"action": "spin"})
	assert.Error(t, err)

	res, err = h.call(t, "get_processes", nil)
	require.NoError(t, err)
	assert.Len(t, res.Response["processes"], 1)

	res, err = h.call(t, "get_system_info", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Response, "os")

	assert.Equal(t, []string{
		"shell uptime",
		"open whatsapp:",
		"notify Hi|there",
		"kill 42",
		"kill 7",
		"window minimize",
	}, h.host.log())
}

func TestKeyboardTools(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.call(t, "keyboard_press", map[string]any{"key": "enter"})
	require.NoError(t, err)
	assert.Equal(t, true, res.Response["delayed"])

	res, err = h.call(t, "keyboard_press", map[string]any{"key": "tab"})
	require.NoError(t, err)
	assert.Equal(t, false, res.Response["delayed"])

	res, err = h.call(t, "keyboard_type", map[string]any{"text": "hello", "pressEnter": true})
	require.NoError(t, err)
	assert.Equal(t, true, res.Response["enterPressed"])
	assert.Equal(t, []string{"key enter", "key tab", "type hello", "key enter"}, h.host.log())
}

func TestKeyboardPress_EnterDelayHonorsContext(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.EnterDelay = time.Hour })
	handler, _ := h.reg.Get("keyboard_press")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := handler.Execute(ctx, tools.Call{Name: "keyboard_press", Args: map[string]any{"key": "enter"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.host.log())
}

func TestAdjustVolume_Steps(t *testing.T) {
	assert.Equal(t, 2, VolumeSteps(5))
	assert.Equal(t, 1, VolumeSteps(1))
	assert.Equal(t, 10, VolumeSteps(100))

	h := newHarness(t, nil)
	res, err := h.call(t, "adjust_volume", map[string]any{"action": "up"})
	require.NoError(t, err)
	assert.Equal(t, "Volume adjusted successfully.", res.Response["result"])
	assert.Equal(t, []string{"volume up ++"}, h.host.log())

	h.host.err = errors.New("pactl missing")
	_, err = h.call(t, "adjust_volume", map[string]any{"action": "mute"})
	assert.Error(t, err)
}

func TestTakeScreenshot_FollowUpSendsImageTurn(t *testing.T) {
	turns := &fakeTurns{}
	h := newHarness(t, func(d *Deps) { d.Turns = turns })
	h.host.shot = []byte{0xFF, 0xD8, 0xFF}

	res, err := h.call(t, "take_screenshot", nil)
	require.NoError(t, err)
	assert.Equal(t, "Screenshot captured and added to my visual context. I am processing it now.", res.Response["result"])
	require.NotNil(t, res.FollowUp)
	assert.Equal(t, 100*time.Millisecond, res.After)

	res.FollowUp()
	require.Len(t, turns.parts, 2)
	assert.Equal(t, "image/jpeg", turns.parts[0].InlineData.MIMEType)
	assert.Equal(t, h.host.shot, turns.parts[0].InlineData.Data)
	assert.Equal(t, VisualContextPrompt, turns.parts[1].Text)
	assert.True(t, turns.done)
}

func TestHTTPRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo", r.Header.Get("X-Token"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(r.Method + " ok"))
	}))
	defer srv.Close()

	h := newHarness(t, func(d *Deps) {
		d.HTTP = safety.Guard{AllowPrivate: true}.NewRestrictedHTTPClient(nil)
	})
	res, err := h.call(t, "http_request", map[string]any{
		"url":     srv.URL,
		"method":  "post",
		"headers": map[string]any{"X-Token": "abc"},
		"body":    "{}",
	})
	require.NoError(t, err)
	assert.Equal(t, true, res.Response["success"])
	assert.Equal(t, http.StatusCreated, res.Response["status"])
	assert.Equal(t, "POST ok", res.Response["data"])
	assert.Equal(t, "abc", res.Response["headers"].(map[string]any)["x-echo"])

	_, err = h.call(t, "http_request", map[string]any{"url": srv.URL, "method": "TRACE"})
	assert.Error(t, err)
}

func TestHTTPRequest_DefaultClientBlocksLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	h := newHarness(t, nil)
	_, err := h.call(t, "http_request", map[string]any{"url": srv.URL})
	assert.Error(t, err)
}

func TestPlayYouTube(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		_, _ = w.Write([]byte(`<a href="/watch?v=dQw4w9WgXcQ">x</a><a href="/watch?v=zzzzzzzzzzz">`))
	}))
	defer srv.Close()

	h := newHarness(t, func(d *Deps) { d.YouTubeSearchURL = srv.URL + "/results" })
	res, err := h.call(t, "play_youtube_video", map[string]any{"query": "lofi hip hop"})
	require.NoError(t, err)
	assert.Equal(t, "lofi hip hop", gotQuery)
	assert.Equal(t, "dQw4w9WgXcQ", res.Response["videoId"])
	assert.Equal(t, "youtube", h.lastArtifact().Kind)
	assert.Equal(t, []string{"open https://www.youtube.com/watch?v=dQw4w9WgXcQ"}, h.host.log())
}

func TestPlayYouTube_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("nothing here"))
	}))
	defer srv.Close()

	_, err := FindYouTubeVideo(context.Background(), srv.Client(), srv.URL, "x")
	assert.Error(t, err)
}

func TestStartNavigation(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.call(t, "start_navigation", map[string]any{"destination": "Eiffel Tower"})
	require.NoError(t, err)
	assert.Equal(t, "Navigation to Eiffel Tower started. The map is now visible on screen.", res.Response["result"])
	assert.Equal(t, "navigation", h.lastArtifact().Kind)
	assert.Equal(t, []string{"open https://www.google.com/maps/dir/?api=1&destination=Eiffel+Tower"}, h.host.log())
}

func TestRenderDiagramAndGenerateImage(t *testing.T) {
	var downloads string
	h := newHarness(t, func(d *Deps) {
		d.Images = fakeImager{}
		d.Now = func() time.Time { return time.UnixMilli(1700000000000) }
		downloads = d.DownloadsDir
	})

	res, err := h.call(t, "render_diagram", map[string]any{"code": "graph TD; A-->B;", "type": "flowchart"})
	require.NoError(t, err)
	assert.Equal(t, "Diagram rendered successfully in the Visual Intelligence Hub.", res.Response["result"])
	assert.Equal(t, "diagram", h.lastArtifact().Kind)

	res, err = h.call(t, "generate_image", map[string]any{"prompt": "a cat"})
	require.NoError(t, err)
	assert.Equal(t, "Image generated and auto-saved to Downloads folder.", res.Response["result"])
	data, err := os.ReadFile(filepath.Join(downloads, "nova_ai_1700000000000.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image", h.lastArtifact().Kind)
}

func TestReadAttachedFiles(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.call(t, "read_attached_files", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Response["fileCount"])

	long := strings.Repeat("a", MaxAttachmentChars+5)
	files := staticAttachments{
		{Name: "notes.txt", MIMEType: "text/plain", Data: base64.StdEncoding.EncodeToString([]byte("hello"))},
		{Name: "big.md", MIMEType: "text/markdown", Data: "data:text/markdown;base64," + base64.StdEncoding.EncodeToString([]byte(long))},
		{Name: "photo.png", MIMEType: "image/png", Data: "AAAA"},
	}
	h = newHarness(t, func(d *Deps) { d.Attachments = files })
	res, err = h.call(t, "read_attached_files", nil)
	require.NoError(t, err)
	out := res.Response["files"].([]map[string]any)
	require.Len(t, out, 3)
	assert.Equal(t, "hello", out[0]["content"])
	assert.True(t, strings.HasSuffix(out[1]["content"].(string), "...[TRUNCATED]"))
	assert.Len(t, out[1]["content"], MaxAttachmentChars+len("...[TRUNCATED]"))
	assert.Equal(t, binaryAttachment, out[2]["content"])
	assert.Equal(t, 3, out[2]["index"])
}

func TestSendWhatsApp_UsesStoredPhone(t *testing.T) {
	m := &fakeMessenger{}
	h := newHarness(t, func(d *Deps) { d.Messenger = m })

	res, err := h.call(t, "send_whatsapp", map[string]any{"contactName": "Usman Ahmed", "message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, host.MethodKeyboard, res.Response["method"])
	assert.Equal(t, "success", res.Response["status"])

	_, err = h.store.AddContact(context.Background(), "Mom", "+15550100")
	require.NoError(t, err)
	res, err = h.call(t, "send_whatsapp", map[string]any{"contactName": "mom", "message": "on my way"})
	require.NoError(t, err)
	assert.Equal(t, host.MethodDeepLink, res.Response["method"])
	assert.Equal(t, "+15550100", m.phone)
	assert.Equal(t, "The WhatsApp message automation for mom has been executed successfully.", res.Response["result"])
}

func TestTurnOff_SchedulesShutdown(t *testing.T) {
	var reason string
	h := newHarness(t, func(d *Deps) { d.Shutdown = func(_ context.Context, r string) { reason = r } })
	res, err := h.call(t, "turn_off", nil)
	require.NoError(t, err)
	assert.Equal(t, "Shutdown initiated.", res.Response["message"])
	assert.Equal(t, 2*time.Second, res.After)
	res.FollowUp()
	assert.Equal(t, "turn_off", reason)
}

type sessionTag struct{}

func TestTurnOff_ShutdownCarriesCallContext(t *testing.T) {
	var got any
	h := newHarness(t, func(d *Deps) {
		d.Shutdown = func(ctx context.Context, _ string) { got = ctx.Value(sessionTag{}) }
	})
	handler, ok := h.reg.Get("turn_off")
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), sessionTag{}, "first"))
	res, err := handler.Execute(ctx, tools.Call{ID: "c1", Name: "turn_off", Args: map[string]any{}})
	require.NoError(t, err)
	cancel()

	res.FollowUp()
	assert.Equal(t, "first", got)
}
