// Package cache holds publish-ready frame records between the producer and
// the publisher.
//
// Two strategies exist. Table mode is used when the whole logical stream fits
// in the cache: records are stored by id and recycled forever, and reads never
// block. Queue mode is used when it does not: records flow through a bounded
// FIFO, the producer drops records it cannot enqueue in time, and an empty
// read after a timeout tells the publisher the stream is exhausted.
package cache

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
)

var (
	// ErrCacheEmpty is returned by a queue read that timed out, and by a
	// table read before anything has been stored.
	ErrCacheEmpty = errors.New("frame cache empty")

	// ErrCacheFull is returned by a queue write that timed out. The record
	// has been dropped.
	ErrCacheFull = errors.New("frame cache full")
)

// Mode selects the cache strategy
type Mode string

const (
	ModeTable Mode = "table"
	ModeQueue Mode = "queue"
)

// Cache is the store shared by producer and publisher.
type Cache interface {
	// Put stores rec under id. Table mode never blocks. Queue mode ignores
	// id, blocks up to its put timeout and returns ErrCacheFull when the
	// record had to be dropped.
	Put(ctx context.Context, id int64, rec *frame.Record) error

	// Get returns the record to publish next. Table mode resolves id
	// against the stream length and falls back to slot 0. Queue mode ignores
	// id, blocks up to its get timeout and returns ErrCacheEmpty.
	Get(ctx context.Context, id int64) (*frame.Record, error)

	Len() int
	Cap() int
	Mode() Mode
	Stats() Stats
}

// Stats is a snapshot of cache activity
type Stats struct {
	Mode   Mode   `json:"mode"`
	Cap    int    `json:"capacity"`
	Len    int    `json:"length"`
	Puts   uint64 `json:"puts"`
	Gets   uint64 `json:"gets"`
	Drops  uint64 `json:"drops"`
	Misses uint64 `json:"misses"`
}

type counters struct {
	puts   atomic.Uint64
	gets   atomic.Uint64
	drops  atomic.Uint64
	misses atomic.Uint64
}

func (c *counters) snapshot(mode Mode, capacity, length int) Stats {
	return Stats{
		Mode:   mode,
		Cap:    capacity,
		Len:    length,
		Puts:   c.puts.Load(),
		Gets:   c.gets.Load(),
		Drops:  c.drops.Load(),
		Misses: c.misses.Load(),
	}
}

// SelectMode picks table mode when totalFrames fits into capacity. An
// unbounded stream (totalFrames <= 0) always needs a queue.
func SelectMode(totalFrames, capacity int) Mode {
	if totalFrames > 0 && totalFrames <= capacity {
		return ModeTable
	}
	return ModeQueue
}
