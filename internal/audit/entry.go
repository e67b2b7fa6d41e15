package audit

// Event kinds recorded in the log.
const (
	EventResolve = "resolve"
	EventCheck   = "check"
	EventFilter  = "filter"
)

// AuditCaller is the caller identity recorded with each entry.
type AuditCaller struct {
	PID     int    `json:"pid"`
	UID     int    `json:"uid"`
	Package string `json:"package,omitempty"`
}

// AuditEntry is one line in the hash-chained JSONL audit log.
// All fields are structs or slices (no maps) to guarantee deterministic
// json.Marshal output for reproducible hashing.
type AuditEntry struct {
	Timestamp string      `json:"ts"`
	RequestID string      `json:"request_id"`
	Event     string      `json:"event"`
	Caller    AuditCaller `json:"caller"`
	Level     string      `json:"level"`
	Rule      string      `json:"rule,omitempty"`
	Failed    []string    `json:"failed,omitempty"`
	Targets   []int       `json:"targets,omitempty"`
	Visible   []int       `json:"visible,omitempty"`
	FactsHash string      `json:"facts_hash"`
	PrevHash  string      `json:"prev_hash"`
}
