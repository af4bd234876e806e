// Package nop provides the publisher used when no Kafka brokers are
// configured.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/swarm/pkg/eventstream"
)

// Publisher validates events like a real stream would and then drops them.
type Publisher struct {
	dropped atomic.Int64
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishAudit rejects malformed events and counts the rest.
func (p *Publisher) PublishAudit(_ context.Context, event *eventstream.AuditEvent) error {
	if err := eventstream.Validate(event); err != nil {
		return err
	}
	p.dropped.Add(1)
	return nil
}

// Dropped reports how many valid events were discarded.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Publisher) Close() error {
	return nil
}
