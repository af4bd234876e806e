package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeAuditRecorded is emitted after an audit record is appended.
	EventTypeAuditRecorded = "swarm.audit.recorded"
)

// AuditEvent is a transport-neutral event payload for an appended audit record.
type AuditEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	UserID        string    `json:"user_id"`
	AgentID       string    `json:"agent_id,omitempty"`
	Action        string    `json:"action"`
	TargetType    string    `json:"target_type,omitempty"`
	TargetID      string    `json:"target_id,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}
