package cache

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
)

// Table is the keyed-overwrite cache used when the whole stream fits.
type Table struct {
	mu       sync.RWMutex
	slots    map[int64]*frame.Record
	capacity int
	nFrames  int
	counters
}

// NewTable creates a table holding up to capacity records for a stream of
// nFrames frames. nFrames is clamped to capacity.
func NewTable(capacity, nFrames int) *Table {
	if capacity < 1 {
		capacity = 1
	}
	if nFrames < 1 || nFrames > capacity {
		nFrames = capacity
	}
	return &Table{
		slots:    make(map[int64]*frame.Record, nFrames),
		capacity: capacity,
		nFrames:  nFrames,
	}
}

// Put overwrites the slot for id
func (t *Table) Put(_ context.Context, id int64, rec *frame.Record) error {
	key := id % int64(t.capacity)
	t.mu.Lock()
	t.slots[key] = rec
	t.mu.Unlock()
	t.puts.Add(1)
	return nil
}

// Get returns the record for id modulo the stream length. A slot the
// producer has not filled yet resolves to slot 0, so early in a run frame 0
// may be published repeatedly.
func (t *Table) Get(_ context.Context, id int64) (*frame.Record, error) {
	key := id % int64(t.nFrames)
	if key < 0 {
		key += int64(t.nFrames)
	}

	t.mu.RLock()
	rec, ok := t.slots[key]
	if !ok {
		rec, ok = t.slots[0]
		t.misses.Add(1)
	}
	t.mu.RUnlock()

	if !ok {
		return nil, ErrCacheEmpty
	}
	t.gets.Add(1)
	return rec, nil
}

// Len returns the number of filled slots
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots)
}

func (t *Table) Cap() int   { return t.capacity }
func (t *Table) Mode() Mode { return ModeTable }

// Stats returns a snapshot of the table's counters
func (t *Table) Stats() Stats {
	return t.snapshot(ModeTable, t.capacity, t.Len())
}
