package eventstream

import (
	"errors"
	"fmt"
)

var (
	// ErrNilAuditEvent indicates a nil audit event payload was provided to a publisher.
	ErrNilAuditEvent = errors.New("nil audit event")

	// ErrInvalidAuditEvent is returned for events missing a routing field.
	ErrInvalidAuditEvent = errors.New("invalid audit event")
)

// Validate checks what every publisher relies on: the event type for
// headers and the user id as partition key.
func Validate(event *AuditEvent) error {
	switch {
	case event == nil:
		return ErrNilAuditEvent
	case event.EventType == "":
		return fmt.Errorf("%w: missing event_type", ErrInvalidAuditEvent)
	case event.UserID == "":
		return fmt.Errorf("%w: missing user_id", ErrInvalidAuditEvent)
	case event.Action == "":
		return fmt.Errorf("%w: missing action", ErrInvalidAuditEvent)
	}
	return nil
}
