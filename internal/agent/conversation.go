package agent

import (
	"sync"
	"time"

	"github.com/soyeahso/mirror/internal/llm"
)

// Entry is one role-tagged message in the conversation.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Recorder observes appended entries. index is the entry's position in the
// conversation. It is called outside the conversation lock.
type Recorder func(index int, e Entry)

// Conversation is the ordered, append-only history replayed to the model on
// every completion. It is safe for concurrent use.
type Conversation struct {
	mu       sync.Mutex
	entries  []Entry
	recorder Recorder
}

// NewConversation creates a conversation holding the given seed entries.
func NewConversation(seed ...Entry) *Conversation {
	entries := make([]Entry, len(seed))
	copy(entries, seed)
	return &Conversation{entries: entries}
}

// SeedEntries returns the entries every conversation starts with: the
// system prompt and a notice carrying the local time.
func SeedEntries(now time.Time) []Entry {
	return []Entry{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleSystem, Content: DateNotice(now)},
	}
}

// WithRecorder installs fn to observe subsequent appends and returns c.
func (c *Conversation) WithRecorder(fn Recorder) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = fn
	return c
}

// Append adds one entry atomically.
func (c *Conversation) Append(e Entry) {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	index := len(c.entries) - 1
	rec := c.recorder
	c.mu.Unlock()

	if rec != nil {
		rec(index, e)
	}
}

// Snapshot returns a copy of all entries in insertion order.
func (c *Conversation) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Messages converts entries to completion messages.
func Messages(entries []Entry) []llm.Message {
	msgs := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, llm.Message{Role: e.Role, Content: e.Content})
	}
	return msgs
}
