// Package session records interactive lookup transcripts and exports
// them as JSON. A transcript is an ordered list of timestamped entries
// tagged with the speaking role, wrapped in an envelope that carries
// the session id.
package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one utterance in a transcript.
type Entry struct {
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Envelope is the exported JSON document.
type Envelope struct {
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	ExportedAt time.Time `json:"exported_at"`
	Entries    []Entry   `json:"entries"`
}

// Transcript accumulates entries for one interactive session. All
// methods are safe for concurrent use.
type Transcript struct {
	mu        sync.Mutex
	id        string
	startedAt time.Time
	entries   []Entry
	now       func() time.Time
}

// New creates an empty transcript with a fresh session id.
func New() *Transcript {
	return &Transcript{
		id:        uuid.New().String(),
		startedAt: time.Now().UTC(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ID returns the session id assigned at creation.
func (t *Transcript) ID() string {
	return t.id
}

// StartedAt returns when the transcript was created.
func (t *Transcript) StartedAt() time.Time {
	return t.startedAt
}

// RecordUser appends a user utterance.
func (t *Transcript) RecordUser(message string) {
	t.record(RoleUser, message)
}

// RecordAssistant appends an engine response.
func (t *Transcript) RecordAssistant(message string) {
	t.record(RoleAssistant, message)
}

func (t *Transcript) record(role Role, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{
		Role:      role,
		Message:   message,
		Timestamp: t.now(),
	})
}

// Len returns the number of recorded entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entries returns a copy of the recorded entries in order.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Export writes the transcript as indented JSON.
func (t *Transcript) Export(w io.Writer) error {
	t.mu.Lock()
	env := Envelope{
		SessionID:  t.id,
		StartedAt:  t.startedAt,
		ExportedAt: t.now(),
		Entries:    make([]Entry, len(t.entries)),
	}
	copy(env.Entries, t.entries)
	t.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// SaveTo exports the transcript into dir, creating it if needed, and
// returns the written file's path. The filename carries the save time
// down to the second.
func (t *Transcript) SaveTo(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}

	name := fmt.Sprintf("conversation_%s.json", t.now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create transcript file: %w", err)
	}
	if err := t.Export(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write transcript: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close transcript file: %w", err)
	}
	return path, nil
}
