// Package transcript holds conversation transcript entries and renders them
// as a flat text export.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Source identifies who produced a transcript entry.
type Source string

const (
	SourceUser  Source = "user"
	SourceAgent Source = "agent"
)

// Entry is one captured conversation turn. Entries are never mutated after
// they are appended.
type Entry struct {
	Source     Source    `json:"source"`
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
}

// Label is the speaker label used in exports.
func (e Entry) Label() string {
	if e.Source == SourceUser {
		return "User"
	}
	return "AI"
}

const entrySeparator = "\n\n"

// Export renders entries as "<Label>: <text>" blocks separated by a blank
// line. It has no side effects; an empty slice yields an empty document.
func Export(entries []Entry) []byte {
	if len(entries) == 0 {
		return []byte{}
	}
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString(entrySeparator)
		}
		b.WriteString(entry.Label())
		b.WriteString(": ")
		b.WriteString(entry.Text)
	}
	return []byte(b.String())
}

// Filename returns the suggested export file name for t.
// Colons in the ISO-8601 timestamp are replaced so the name is valid on
// every common filesystem.
func Filename(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	stamp = strings.ReplaceAll(stamp, ":", "-")
	return "conversation-transcript-" + stamp + ".txt"
}

// WriteFile writes the export of entries into dir and returns the file path.
func WriteFile(dir string, entries []Entry, now time.Time) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir %q: %w", dir, err)
	}
	path := filepath.Join(dir, Filename(now))
	if err := os.WriteFile(path, Export(entries), 0o600); err != nil {
		return "", fmt.Errorf("write transcript %q: %w", path, err)
	}
	return path, nil
}
