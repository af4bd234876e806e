package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/swarm/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals AuditEvent with snake_case keys and omits empty optionals", func() {
		event := eventstream.AuditEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeAuditRecorded,
			EventID:       "evt_123",
			EmittedAt:     time.Unix(1735689600, 0).UTC(),
			UserID:        "default",
			Action:        "cleanup",
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKeyWithValue("event_type", "swarm.audit.recorded"))
		Expect(got).To(HaveKeyWithValue("user_id", "default"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).NotTo(HaveKey("agent_id"))
		Expect(got).NotTo(HaveKey("target_id"))
	})

	DescribeTable("Validate",
		func(event *eventstream.AuditEvent, want error) {
			err := eventstream.Validate(event)
			if want == nil {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(err).To(MatchError(want))
		},
		Entry("nil", nil, eventstream.ErrNilAuditEvent),
		Entry("no event type", &eventstream.AuditEvent{UserID: "u", Action: "a"}, eventstream.ErrInvalidAuditEvent),
		Entry("no user", &eventstream.AuditEvent{EventType: eventstream.EventTypeAuditRecorded, Action: "a"}, eventstream.ErrInvalidAuditEvent),
		Entry("no action", &eventstream.AuditEvent{EventType: eventstream.EventTypeAuditRecorded, UserID: "u"}, eventstream.ErrInvalidAuditEvent),
		Entry("complete", &eventstream.AuditEvent{EventType: eventstream.EventTypeAuditRecorded, UserID: "u", Action: "a"}, nil),
	)
})
