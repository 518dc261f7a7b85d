package transcript

import (
	"fmt"
	"strings"
)

const (
	firstLastTextMax = 200
	midTextMax       = 60
)

// Condense renders entries as a short timeline, one line per entry:
// - user text is kept up to 200 chars for the first and last message
// - other user text is cut to 60 chars + "..."
// - agent and tick lines carry no text
func Condense(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}

	var users []int
	for i, e := range entries {
		if e.Type == TypeUser {
			users = append(users, i)
		}
	}

	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "[%s] %-5s", e.At.Format("2006-01-02 15:04"), strings.ToUpper(e.Type))
		if e.UserID != "" {
			fmt.Fprintf(&b, " %s/%s", e.UserID, e.SessionID)
		}
		if e.Type == TypeUser && e.Text != "" {
			limit := midTextMax
			if i == users[0] || i == users[len(users)-1] {
				limit = firstLastTextMax
			}
			b.WriteString(" ")
			b.WriteString(truncate(e.Text, limit))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
