package batch

import "fmt"

// ErrorLog accumulates per-element and per-batch failures for one ingestion phase.
// Entries are messages, not errors: they are reported, never returned.
type ErrorLog struct {
	entries []string
}

// Add records a formatted message.
func (l *ErrorLog) Add(format string, args ...any) {
	if len(args) == 0 {
		l.entries = append(l.entries, format)
		return
	}
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

// Len reports the number of recorded messages.
func (l *ErrorLog) Len() int { return len(l.entries) }

// Messages returns a copy of the recorded messages in insertion order.
func (l *ErrorLog) Messages() []string {
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}
