package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Document names. They match the file names used by the desktop app.
const (
	DocMemories          = "memories.json"
	DocUserProfile       = "user_profile.json"
	DocDashboardSettings = "dashboard_settings.json"
	DocDashboard         = "dashboard.json"
	DocHistory           = "history.json"
	DocContacts          = "contacts.json"
	DocNotes             = "notes.json"
	DocTasks             = "tasks.json"
	DocSecretKey         = "secret_key.json"
	DocVoiceConfig       = "voice_config.json"
	DocAssistantConfig   = "assistant_config.json"
)

// MaxHistory is the number of messages history.json retains.
const MaxHistory = 200

type Memory struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	Timestamp int64  `json:"timestamp"`
}

type Note struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	Date      string `json:"date"`
	Timestamp int64  `json:"timestamp"`
}

type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Priority  string `json:"priority"`
	Timestamp int64  `json:"timestamp"`
}

type HistoryEntry struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Thought   string `json:"thought,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type DashboardSettings struct {
	Location  string   `json:"location"`
	Interests []string `json:"interests"`
}

// Weather is the three-day summary shown on the dashboard.
type Weather struct {
	Today    string `json:"today"`
	Tomorrow string `json:"tomorrow"`
	DayAfter string `json:"dayAfter"`
}

type Dashboard struct {
	Headlines []string `json:"headlines"`
	Weather   Weather  `json:"weather"`
	UpdatedAt int64    `json:"updatedAt"`
}

type VoiceConfig struct {
	VoiceName string  `json:"voiceName"`
	Volume    float64 `json:"volume"`
}

type AssistantConfig struct {
	AssistantName string `json:"assistantName" yaml:"assistant_name"`
	WakeWord      string `json:"wakeWord" yaml:"wake_word"`
	VoiceTone     string `json:"voiceTone" yaml:"voice_tone"`
}

type SecretKey struct {
	APIKey    string `json:"apiKey"`
	UpdatedAt int64  `json:"updatedAt"`
}

func DefaultVoiceConfig() VoiceConfig {
	return VoiceConfig{VoiceName: "Charon", Volume: 0.8}
}

func DefaultAssistantConfig() AssistantConfig {
	return AssistantConfig{AssistantName: "Nova", WakeWord: "nova", VoiceTone: "jarvis"}
}

// Store is the typed document API. Read-modify-write operations are
// serialized so concurrent tool calls do not lose updates.
type Store struct {
	backend Backend
	mu      sync.Mutex
	now     func() time.Time
}

func New(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) stamp() int64 {
	return s.now().UnixMilli()
}

// Memories returns stored memories, newest first.
func (s *Store) Memories(ctx context.Context) ([]Memory, error) {
	var out []Memory
	_, err := load(ctx, s.backend, DocMemories, &out)
	return orEmpty(out), err
}

// AddMemory prepends a memory. An empty category defaults to "personal".
func (s *Store) AddMemory(ctx context.Context, content, category string) ([]Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.Memories(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(category) == "" {
		category = "personal"
	}
	m := Memory{ID: uuid.NewString(), Content: content, Category: category, Timestamp: s.stamp()}
	updated := append([]Memory{m}, current...)
	return updated, save(ctx, s.backend, DocMemories, updated)
}

func (s *Store) SaveMemories(ctx context.Context, memories []Memory) error {
	return save(ctx, s.backend, DocMemories, orEmpty(memories))
}

// Notes returns stored notes, newest first.
func (s *Store) Notes(ctx context.Context) ([]Note, error) {
	var out []Note
	_, err := load(ctx, s.backend, DocNotes, &out)
	return orEmpty(out), err
}

// AddNote prepends a note. An empty category defaults to "General".
func (s *Store) AddNote(ctx context.Context, title, content, category string) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.Notes(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(category) == "" {
		category = "General"
	}
	now := s.now()
	n := Note{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		Category:  category,
		Date:      now.Format("2006-01-02"),
		Timestamp: now.UnixMilli(),
	}
	updated := append([]Note{n}, current...)
	return updated, save(ctx, s.backend, DocNotes, updated)
}

// Tasks returns stored tasks, newest first.
func (s *Store) Tasks(ctx context.Context) ([]Task, error) {
	var out []Task
	_, err := load(ctx, s.backend, DocTasks, &out)
	return orEmpty(out), err
}

// AddTask prepends a pending task. An empty priority defaults to "medium".
func (s *Store) AddTask(ctx context.Context, text, priority string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(priority) == "" {
		priority = "medium"
	}
	t := Task{ID: uuid.NewString(), Text: text, Priority: priority, Timestamp: s.stamp()}
	updated := append([]Task{t}, current...)
	return updated, save(ctx, s.backend, DocTasks, updated)
}

// CompleteTask marks the task with id as done.
func (s *Store) CompleteTask(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.Tasks(ctx)
	if err != nil {
		return false, err
	}
	for i := range tasks {
		if tasks[i].ID == id {
			tasks[i].Completed = true
			return true, save(ctx, s.backend, DocTasks, tasks)
		}
	}
	return false, nil
}

// History returns persisted conversation messages, oldest first.
func (s *Store) History(ctx context.Context) ([]HistoryEntry, error) {
	var out []HistoryEntry
	_, err := load(ctx, s.backend, DocHistory, &out)
	return orEmpty(out), err
}

// AppendHistory appends entries, skipping ids already present, and keeps the
// newest MaxHistory.
func (s *Store) AppendHistory(ctx context.Context, entries ...HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.History(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(current))
	for _, e := range current {
		seen[e.ID] = struct{}{}
	}
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup && e.ID != "" {
			continue
		}
		current = append(current, e)
	}
	if len(current) > MaxHistory {
		current = current[len(current)-MaxHistory:]
	}
	return save(ctx, s.backend, DocHistory, current)
}

func (s *Store) ClearHistory(ctx context.Context) error {
	return s.backend.Delete(ctx, DocHistory)
}

// UserProfile returns free-form profile facts.
func (s *Store) UserProfile(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	_, err := load(ctx, s.backend, DocUserProfile, &out)
	return out, err
}

func (s *Store) SaveUserProfile(ctx context.Context, profile map[string]any) error {
	return save(ctx, s.backend, DocUserProfile, profile)
}

func (s *Store) Contacts(ctx context.Context) ([]Contact, error) {
	var out []Contact
	_, err := load(ctx, s.backend, DocContacts, &out)
	return orEmpty(out), err
}

// AddContact appends a contact.
func (s *Store) AddContact(ctx context.Context, name, phone string) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.Contacts(ctx)
	if err != nil {
		return nil, err
	}
	updated := append(current, Contact{ID: uuid.NewString(), Name: name, Phone: phone})
	return updated, save(ctx, s.backend, DocContacts, updated)
}

// FindContact matches name case-insensitively, preferring exact matches.
func (s *Store) FindContact(ctx context.Context, name string) (Contact, bool, error) {
	contacts, err := s.Contacts(ctx)
	if err != nil {
		return Contact{}, false, err
	}
	q := strings.ToLower(strings.TrimSpace(name))
	for _, c := range contacts {
		if strings.ToLower(c.Name) == q {
			return c, true, nil
		}
	}
	for _, c := range contacts {
		if q != "" && strings.Contains(strings.ToLower(c.Name), q) {
			return c, true, nil
		}
	}
	return Contact{}, false, nil
}

func (s *Store) DashboardSettings(ctx context.Context) (DashboardSettings, error) {
	out := DashboardSettings{Interests: []string{}}
	_, err := load(ctx, s.backend, DocDashboardSettings, &out)
	return out, err
}

func (s *Store) SaveDashboardSettings(ctx context.Context, settings DashboardSettings) error {
	return save(ctx, s.backend, DocDashboardSettings, settings)
}

// UpdateDashboard replaces the headlines and weather shown on the dashboard.
func (s *Store) UpdateDashboard(ctx context.Context, headlines []string, weather Weather) (Dashboard, error) {
	d := Dashboard{Headlines: orEmpty(headlines), Weather: weather, UpdatedAt: s.stamp()}
	return d, save(ctx, s.backend, DocDashboard, d)
}

func (s *Store) Dashboard(ctx context.Context) (Dashboard, error) {
	var out Dashboard
	_, err := load(ctx, s.backend, DocDashboard, &out)
	out.Headlines = orEmpty(out.Headlines)
	return out, err
}

// VoiceConfig returns the voice settings, filling defaults for missing fields.
func (s *Store) VoiceConfig(ctx context.Context) (VoiceConfig, error) {
	def := DefaultVoiceConfig()
	out := VoiceConfig{Volume: -1}
	found, err := load(ctx, s.backend, DocVoiceConfig, &out)
	if err != nil || !found {
		return def, err
	}
	if out.VoiceName == "" {
		out.VoiceName = def.VoiceName
	}
	if out.Volume < 0 {
		out.Volume = def.Volume
	}
	return out, nil
}

func (s *Store) SaveVoiceConfig(ctx context.Context, cfg VoiceConfig) error {
	return save(ctx, s.backend, DocVoiceConfig, cfg)
}

// AssistantConfig returns the persona settings. A missing document is
// created with defaults.
func (s *Store) AssistantConfig(ctx context.Context) (AssistantConfig, error) {
	var out AssistantConfig
	found, err := load(ctx, s.backend, DocAssistantConfig, &out)
	if err != nil {
		return DefaultAssistantConfig(), err
	}
	if !found {
		def := DefaultAssistantConfig()
		return def, save(ctx, s.backend, DocAssistantConfig, def)
	}
	def := DefaultAssistantConfig()
	if out.AssistantName == "" {
		out.AssistantName = def.AssistantName
	}
	if out.WakeWord == "" {
		out.WakeWord = def.WakeWord
	}
	if out.VoiceTone == "" {
		out.VoiceTone = def.VoiceTone
	}
	return out, nil
}

func (s *Store) SaveAssistantConfig(ctx context.Context, cfg AssistantConfig) error {
	return save(ctx, s.backend, DocAssistantConfig, cfg)
}

// SecretKey returns the stored API key document, if any.
func (s *Store) SecretKey(ctx context.Context) (SecretKey, bool, error) {
	var out SecretKey
	found, err := load(ctx, s.backend, DocSecretKey, &out)
	return out, found && out.APIKey != "", err
}

func (s *Store) SaveSecretKey(ctx context.Context, apiKey string) error {
	return save(ctx, s.backend, DocSecretKey, SecretKey{APIKey: apiKey, UpdatedAt: s.stamp()})
}

func (s *Store) DeleteSecretKey(ctx context.Context) error {
	return s.backend.Delete(ctx, DocSecretKey)
}

func orEmpty[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
