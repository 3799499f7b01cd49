package live

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity classifies a system log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityTool    Severity = "tool"
)

// DefaultLogCapacity is the number of entries a SystemLog retains.
const DefaultLogCapacity = 100

// LogEntry is one user-facing system log line.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  Severity       `json:"type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// SystemLog is a fixed-size circular log. It automatically overwrites old entries when full.
type SystemLog struct {
	mu       sync.Mutex
	entries  []LogEntry
	size     int
	writePos int
	filled   int

	now      func() time.Time
	onAppend func(LogEntry)
}

// NewSystemLog creates a log holding up to capacity entries.
func NewSystemLog(capacity int) *SystemLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &SystemLog{
		entries: make([]LogEntry, capacity),
		size:    capacity,
		now:     time.Now,
	}
}

// OnAppend registers a callback invoked after each append, outside the lock.
func (l *SystemLog) OnAppend(fn func(LogEntry)) {
	l.mu.Lock()
	l.onAppend = fn
	l.mu.Unlock()
}

// Add appends an entry and returns it.
func (l *SystemLog) Add(severity Severity, message string, details map[string]any) LogEntry {
	if l == nil {
		return LogEntry{}
	}
	l.mu.Lock()
	entry := LogEntry{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}
	l.entries[l.writePos] = entry
	l.writePos = (l.writePos + 1) % l.size
	if l.filled < l.size {
		l.filled++
	}
	fn := l.onAppend
	l.mu.Unlock()

	if fn != nil {
		fn(entry)
	}
	return entry
}

// Entries returns all retained entries in chronological order.
func (l *SystemLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.filled < l.size {
		out := make([]LogEntry, l.filled)
		copy(out, l.entries[:l.filled])
		return out
	}
	out := make([]LogEntry, l.size)
	firstPart := l.size - l.writePos
	copy(out[:firstPart], l.entries[l.writePos:])
	copy(out[firstPart:], l.entries[:l.writePos])
	return out
}

// Len returns the number of retained entries.
func (l *SystemLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filled
}

// Clear drops all entries.
func (l *SystemLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writePos = 0
	l.filled = 0
	for i := range l.entries {
		l.entries[i] = LogEntry{}
	}
}
