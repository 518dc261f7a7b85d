// Package transcript parses recorded interaction logs for deterministic
// replay. A log is JSONL, one timestamped interaction per line.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/lazypower/affinity/internal/dynamics"
)

// Interaction types.
const (
	TypeUser  = "user"  // a user message
	TypeAgent = "agent" // an agent message the user has not answered
	TypeTick  = "tick"  // time passing with no message
)

// Line is one raw JSONL record.
type Line struct {
	At        string          `json:"at"`
	Type      string          `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // string or []ContentItem
	Event     dynamics.Event  `json:"event"`
}

// ContentItem is one block of a structured message body.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Entry is a parsed interaction.
type Entry struct {
	At        time.Time
	Type      string
	UserID    string
	SessionID string
	Text      string
	Event     dynamics.Event
}

var systemReminderRe = regexp.MustCompile(`<system-reminder>[\s\S]*?</system-reminder>`)

// ParseFile reads a JSONL log and returns its entries in file order.
// Malformed lines are skipped.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return parse(f)
}

// ParseLines parses log content from a string.
func ParseLines(content string) ([]Entry, error) {
	return parse(strings.NewReader(content))
}

func parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseLine([]byte(line))
		if err != nil {
			continue // skip malformed lines
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return entries, nil
}

func parseLine(line []byte) (*Entry, error) {
	var l Line
	if err := json.Unmarshal(line, &l); err != nil {
		return nil, err
	}

	switch l.Type {
	case TypeUser, TypeAgent, TypeTick:
	default:
		return nil, nil
	}

	at, err := time.Parse(time.RFC3339Nano, l.At)
	if err != nil {
		return nil, fmt.Errorf("parse at: %w", err)
	}

	text := systemReminderRe.ReplaceAllString(extractText(l.Content), "")
	ev := l.Event
	ev.UserMessageReceived = l.Type == TypeUser

	return &Entry{
		At:        at.UTC(),
		Type:      l.Type,
		UserID:    l.UserID,
		SessionID: l.SessionID,
		Text:      strings.TrimSpace(text),
		Event:     ev,
	}, nil
}

// extractText handles the polymorphic content field.
// It may be a plain string or an array of ContentItem.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	// Try as string first
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	// Try as array of content items
	var items []ContentItem
	if err := json.Unmarshal(raw, &items); err == nil {
		var texts []string
		for _, item := range items {
			if item.Type == "text" && item.Text != "" {
				texts = append(texts, item.Text)
			}
		}
		return strings.Join(texts, "\n")
	}

	return ""
}

// Step is an entry with the hours elapsed since the previous entry for the
// same relationship.
type Step struct {
	Entry
	ElapsedHours float64
}

// Steps derives elapsed time per relationship. Entries without IDs take
// defaultUser and defaultSession. The first entry of a relationship has zero
// elapsed time; a timestamp earlier than its predecessor also yields zero.
func Steps(entries []Entry, defaultUser, defaultSession string) []Step {
	type key struct{ user, session string }
	last := make(map[key]time.Time)

	steps := make([]Step, 0, len(entries))
	for _, e := range entries {
		if e.UserID == "" {
			e.UserID = defaultUser
		}
		if e.SessionID == "" {
			e.SessionID = defaultSession
		}
		k := key{e.UserID, e.SessionID}

		var hours float64
		if prev, ok := last[k]; ok && e.At.After(prev) {
			hours = e.At.Sub(prev).Hours()
		}
		if prev, ok := last[k]; !ok || e.At.After(prev) {
			last[k] = e.At
		}
		steps = append(steps, Step{Entry: e, ElapsedHours: hours})
	}
	return steps
}

// CountByType returns how many entries have each type.
func CountByType(entries []Entry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Type]++
	}
	return counts
}
