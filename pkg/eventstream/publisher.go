package eventstream

import "context"

// Publisher mirrors appended audit records to an event stream. The audit
// log has already committed when PublishAudit runs, so a failure is logged
// and never undoes the operation.
type Publisher interface {
	PublishAudit(ctx context.Context, event *AuditEvent) error
	Close() error
}
