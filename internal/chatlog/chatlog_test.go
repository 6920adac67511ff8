package chatlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 10, 17, 14, 5, 9, 0, time.UTC)

// steppingClock returns start, start+step, start+2*step, ...
func steppingClock(step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func TestAppend_DoesNotTouchPreviousSession(t *testing.T) {
	s0 := NewSession("report", start)
	assert.NotEmpty(t, s0.ID)
	assert.Equal(t, 0, s0.Len())

	s1 := Append(s0, Turn{Question: "q1", Answer: "a1"})
	s2 := Append(s1, Turn{Question: "q2", Answer: "a2"})
	s2b := Append(s1, Turn{Question: "other", Answer: "branch"})

	assert.Equal(t, 0, s0.Len())
	assert.Equal(t, 1, s1.Len())
	require.Equal(t, 2, s2.Len())
	assert.Equal(t, "q1", s2.Turns()[0].Question)
	assert.Equal(t, "q2", s2.Turns()[1].Question)
	assert.Equal(t, "other", s2b.Turns()[1].Question)
	assert.Equal(t, s0.ID, s2.ID)

	turns := s2.Turns()
	turns[0].Question = "mutated"
	assert.Equal(t, "q1", s2.Turns()[0].Question)
}

func TestMarshal_Format(t *testing.T) {
	s := Append(NewSession("report", start), Turn{Question: "Qué es <X>?", Answer: "X & Y — ünïcode", CreatedAt: start})
	s = Append(s, Turn{Question: "q2", Answer: "a2"})

	data, err := Marshal(s)
	require.NoError(t, err)

	want := "[\n" +
		"  {\n" +
		"    \"question\": \"Qué es <X>?\",\n" +
		"    \"answer\": \"X & Y — ünïcode\"\n" +
		"  },\n" +
		"  {\n" +
		"    \"question\": \"q2\",\n" +
		"    \"answer\": \"a2\"\n" +
		"  }\n" +
		"]\n"
	assert.Equal(t, want, string(data))
	assert.NotContains(t, string(data), "created")
}

func TestMarshal_EmptySession(t *testing.T) {
	data, err := Marshal(NewSession("report", start))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func readEntries(t *testing.T, path string) []entry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []entry
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestWriter_PerTurnWritesOneSnapshotPerTurn(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, PerTurn, steppingClock(time.Second))

	s := NewSession("report", start)
	var paths []string
	for _, q := range []string{"q1", "q2", "q3"} {
		s = Append(s, Turn{Question: q, Answer: "a-" + q})
		p, err := w.Write(s)
		require.NoError(t, err)
		paths = append(paths, p)
	}

	assert.Equal(t, filepath.Join(dir, "chat_report_20261017_140509.json"), paths[0])
	assert.Equal(t, filepath.Join(dir, "chat_report_20261017_140510.json"), paths[1])
	assert.Equal(t, filepath.Join(dir, "chat_report_20261017_140511.json"), paths[2])

	for i, p := range paths {
		entries := readEntries(t, p)
		assert.Len(t, entries, i+1, "each snapshot holds every turn so far")
	}

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestWriter_PerTurnSameSecondKeepsLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, PerTurn, func() time.Time { return start })

	s := Append(NewSession("report", start), Turn{Question: "q1", Answer: "a1"})
	p1, err := w.Write(s)
	require.NoError(t, err)
	s = Append(s, Turn{Question: "q2", Answer: "a2"})
	p2, err := w.Write(s)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Len(t, readEntries(t, p2), 2)
}

func TestWriter_PerSessionRewritesOneFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, PerSession, steppingClock(time.Minute))

	s := NewSession("report", start)
	var last string
	for i := 0; i < 3; i++ {
		s = Append(s, Turn{Question: "q", Answer: "a"})
		p, err := w.Write(s)
		require.NoError(t, err)
		last = p
	}

	assert.Equal(t, filepath.Join(dir, "chat_report_20261017_140509.json"), last)
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Len(t, readEntries(t, last), 3)
}

func TestWriter_UnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	w := NewWriter(filepath.Join(blocker, "logs"), PerTurn, nil)
	_, err := w.Write(Append(NewSession("d", start), Turn{Question: "q", Answer: "a"}))
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PerTurn, p)

	p, err = ParsePolicy("per_session")
	require.NoError(t, err)
	assert.Equal(t, PerSession, p)

	_, err = ParsePolicy("hourly")
	assert.Error(t, err)
}
