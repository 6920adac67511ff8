package chatlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Policy selects where successive writes of one session land.
type Policy string

const (
	// PerTurn names every write after the clock at write time, producing one
	// snapshot file per turn. Writes within the same second share a name and
	// the later, longer snapshot replaces the earlier one.
	PerTurn Policy = "per_turn"
	// PerSession names the file after the session start, so every write
	// replaces the same file.
	PerSession Policy = "per_session"
)

const timestampLayout = "20060102_150405"

// ParsePolicy maps a configuration value to a Policy. Empty means PerTurn.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PerTurn:
		return PerTurn, nil
	case PerSession:
		return PerSession, nil
	default:
		return "", fmt.Errorf("unknown chat log policy %q", s)
	}
}

// entry is the on-disk shape of a turn; timestamps are not written.
type entry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Writer serializes whole sessions as pretty-printed JSON arrays.
type Writer struct {
	dir    string
	policy Policy
	now    func() time.Time
}

// NewWriter creates a writer rooted at dir. A nil clock means time.Now.
func NewWriter(dir string, policy Policy, now func() time.Time) *Writer {
	if dir == "" {
		dir = "chat_logs"
	}
	if policy == "" {
		policy = PerTurn
	}
	if now == nil {
		now = time.Now
	}
	return &Writer{dir: dir, policy: policy, now: now}
}

// Path returns the destination the next Write of s would use.
func (w *Writer) Path(s Session) string {
	var stamp time.Time
	switch w.policy {
	case PerSession:
		stamp = s.StartedAt
	default:
		stamp = w.now()
	}
	name := fmt.Sprintf("chat_%s_%s.json", s.DocumentID, stamp.Format(timestampLayout))
	return filepath.Join(w.dir, name)
}

// Write persists every turn of s and returns the file written.
func (w *Writer) Write(s Session) (string, error) {
	data, err := Marshal(s)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating chat log directory: %w", err)
	}
	dest := w.Path(s)
	tmp, err := os.CreateTemp(w.dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return dest, nil
}

// Marshal renders the session as an indented JSON array of question/answer
// objects. Non-ASCII and HTML characters are written verbatim.
func Marshal(s Session) ([]byte, error) {
	entries := make([]entry, len(s.turns))
	for i, t := range s.turns {
		entries[i] = entry{Question: t.Question, Answer: t.Answer}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("encoding chat log: %w", err)
	}
	return buf.Bytes(), nil
}
