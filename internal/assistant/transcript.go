package assistant

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTranscriptLimit bounds a transcript.
const DefaultTranscriptLimit = 200

// Sender of a transcript message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is the bounded chat history shown to the user. The oldest
// messages are dropped once the limit is reached.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
	limit    int
	now      func() time.Time
}

// NewTranscript returns a transcript seeded with the greeting.
func NewTranscript(limit int) *Transcript {
	if limit <= 0 {
		limit = DefaultTranscriptLimit
	}
	t := &Transcript{limit: limit, now: time.Now}
	t.Reset()
	return t
}

// Append adds a message and returns it.
func (t *Transcript) Append(sender Sender, text string) Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := Message{ID: uuid.NewString(), Text: text, Sender: sender, Timestamp: t.now().UTC()}
	t.messages = append(t.messages, m)
	if over := len(t.messages) - t.limit; over > 0 {
		t.messages = append([]Message(nil), t.messages[over:]...)
	}
	return m
}

// Messages returns a copy of the transcript, oldest first.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.messages...)
}

// Reset clears the history back to the greeting.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = []Message{{ID: uuid.NewString(), Text: Greeting, Sender: SenderAI, Timestamp: t.now().UTC()}}
}
