// Package enrich provides an asynchronous worker pool that computes memory
// embeddings after the memory write has already been answered.
//
// Jobs carry the inserted row's id so the embedding always lands on the
// memory that produced it. Delivery is best effort: a full queue drops the
// job and embedding failures are logged and swallowed.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/swarm/pkg/embeddings"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Outcomes reported to Config.Observe.
const (
	OutcomeStored  = "stored"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	MemoryID int64
	UserID   string
	Content  string
}

// Sink stores a computed embedding on its memory row.
type Sink interface {
	SetEmbedding(ctx context.Context, id int64, embedding []float32) error
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Embedder generates the embeddings.
	Embedder embeddings.Embedder

	// Sink persists them.
	Sink Sink

	// NumWorkers is the number of background workers in the pool (defaults to 3).
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Observe, when set, is called with the outcome of every job.
	Observe func(outcome string)

	Logger *slog.Logger
}

// Pool processes embedding jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Embedder == nil || c.Sink == nil {
		return nil, fmt.Errorf("enrich pool requires an embedder and a sink")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("embedding job queued", "memory_id", job.MemoryID)
		return true
	default:
		p.logger.Warn("embedding job not queued, queue full, job dropped",
			"memory_id", job.MemoryID,
			"user_id", job.UserID,
		)
		p.observe(OutcomeDropped)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("enrich worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("enrich worker stopped", "worker_id", id)
}

// processJob embeds the memory content and attaches it to the row. Errors
// are logged but never returned.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	embedding, err := p.config.Embedder.Embed(ctx, job.Content)
	if err != nil {
		p.logger.Warn("failed to generate embedding",
			"memory_id", job.MemoryID,
			"error", err,
		)
		p.observe(OutcomeFailed)
		return
	}

	if err := p.config.Sink.SetEmbedding(ctx, job.MemoryID, embedding); err != nil {
		p.logger.Warn("failed to store embedding",
			"memory_id", job.MemoryID,
			"error", err,
		)
		p.observe(OutcomeFailed)
		return
	}

	p.logger.Debug("stored embedding",
		"memory_id", job.MemoryID,
		"embedding_dim", len(embedding),
	)
	p.observe(OutcomeStored)
}

func (p *Pool) observe(outcome string) {
	if p.config.Observe != nil {
		p.config.Observe(outcome)
	}
}
