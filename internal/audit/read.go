package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Query selects entries from a log. Zero fields match everything.
type Query struct {
	CallerUID *int
	Event     string
	Limit     int
}

func (q Query) match(e AuditEntry) bool {
	if q.CallerUID != nil && e.Caller.UID != *q.CallerUID {
		return false
	}
	if q.Event != "" && e.Event != q.Event {
		return false
	}
	return true
}

// Tail returns the most recent entries matching q, oldest first. Lines
// that do not parse are skipped.
func Tail(path string, q Query) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if q.match(e) {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read log: %w", err)
	}

	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[len(entries)-q.Limit:]
	}
	return entries, nil
}
