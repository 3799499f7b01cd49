package live

import (
	"strings"
	"time"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the transcript.
type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	Thought     string    `json:"thought,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	IsStreaming bool      `json:"isStreaming,omitempty"`
}

// isDuplicate reports whether msgs already holds text from role within window of now.
func isDuplicate(msgs []Message, role Role, text string, now time.Time, window time.Duration) bool {
	text = strings.TrimSpace(text)
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != role || strings.TrimSpace(m.Text) != text {
			continue
		}
		if now.Sub(m.Timestamp) < window {
			return true
		}
	}
	return false
}

// insertUser places a user message before a trailing assistant message, so
// the user's words precede the reply they prompted.
func insertUser(msgs []Message, m Message) []Message {
	n := len(msgs)
	if n > 0 && msgs[n-1].Role == RoleAssistant {
		out := make([]Message, 0, n+1)
		out = append(out, msgs[:n-1]...)
		out = append(out, m, msgs[n-1])
		return out
	}
	return append(msgs, m)
}

// streamingTail returns the index of the trailing streaming assistant message, or -1.
func streamingTail(msgs []Message) int {
	n := len(msgs)
	if n > 0 && msgs[n-1].Role == RoleAssistant && msgs[n-1].IsStreaming {
		return n - 1
	}
	return -1
}
