package cache

import (
	"context"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
)

// Queue is the bounded FIFO cache used when the stream does not fit.
type Queue struct {
	ch         chan *frame.Record
	putTimeout time.Duration
	getTimeout time.Duration
	counters
}

// NewQueue creates a FIFO holding at most capacity records.
func NewQueue(capacity int, putTimeout, getTimeout time.Duration) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:         make(chan *frame.Record, capacity),
		putTimeout: putTimeout,
		getTimeout: getTimeout,
	}
}

// Put enqueues rec, waiting up to the put timeout for space. On timeout the
// record is dropped and ErrCacheFull returned.
func (q *Queue) Put(ctx context.Context, _ int64, rec *frame.Record) error {
	select {
	case q.ch <- rec:
		q.puts.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(q.putTimeout)
	defer timer.Stop()

	select {
	case q.ch <- rec:
		q.puts.Add(1)
		return nil
	case <-timer.C:
		q.drops.Add(1)
		return ErrCacheFull
	case <-ctx.Done():
		q.drops.Add(1)
		return ctx.Err()
	}
}

// Get dequeues the oldest record, waiting up to the get timeout.
func (q *Queue) Get(ctx context.Context, _ int64) (*frame.Record, error) {
	select {
	case rec := <-q.ch:
		q.gets.Add(1)
		return rec, nil
	default:
	}

	timer := time.NewTimer(q.getTimeout)
	defer timer.Stop()

	select {
	case rec := <-q.ch:
		q.gets.Add(1)
		return rec, nil
	case <-timer.C:
		q.misses.Add(1)
		return nil, ErrCacheEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) Len() int   { return len(q.ch) }
func (q *Queue) Cap() int   { return cap(q.ch) }
func (q *Queue) Mode() Mode { return ModeQueue }

// Stats returns a snapshot of the queue's counters
func (q *Queue) Stats() Stats {
	return q.snapshot(ModeQueue, cap(q.ch), len(q.ch))
}
