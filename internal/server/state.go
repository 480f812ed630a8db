package server

import (
	"context"
	"sync"
	"time"
)

// Phase is the publisher's position in its state machine
type Phase string

const (
	PhaseWaitingStart Phase = "waiting_start"
	PhasePublishing   Phase = "publishing"
	PhaseDraining     Phase = "draining"
	PhaseStopped      Phase = "stopped"
)

// Snapshot is a consistent copy of the run state
type Snapshot struct {
	CurrentFrameID  int64
	Published       int64
	Generated       int64
	StartTime       time.Time
	LastPublishTime time.Time
	Phase           Phase
	ProducerDone    bool
	Done            bool
	Err             error
}

// RunState is the state shared by the producer and the publisher. The done
// flag is set once and never cleared; setting it cancels the run context so
// blocked cache operations and pending sleeps wake up.
type RunState struct {
	mu sync.Mutex

	currentFrameID  int64
	published       int64
	generated       int64
	startTime       time.Time
	lastPublishTime time.Time
	phase           Phase
	producerDone    bool
	done            bool
	err             error

	final  Snapshot
	doneCh chan struct{}
	cancel context.CancelFunc
}

// NewRunState creates the state for one run. cancel is invoked when the run
// is marked done.
func NewRunState(cancel context.CancelFunc) *RunState {
	return &RunState{
		phase:  PhaseWaitingStart,
		doneCh: make(chan struct{}),
		cancel: cancel,
	}
}

// Done reports whether the run has been marked done
func (s *RunState) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// DoneChan is closed when the run is marked done
func (s *RunState) DoneChan() <-chan struct{} {
	return s.doneCh
}

// MarkDone sets the done flag and captures the final snapshot. Only the first
// call has an effect; it returns true for that call.
func (s *RunState) MarkDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markDoneLocked()
}

func (s *RunState) markDoneLocked() bool {
	if s.done {
		return false
	}
	s.done = true
	s.final = s.snapshotLocked()
	close(s.doneCh)
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

// Fail records err as the fatal error of the run and marks it done. An error
// arriving after the run is done is ignored.
func (s *RunState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.err = err
	s.markDoneLocked()
}

// Err returns the fatal error, if any
func (s *RunState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CurrentFrameID returns the id of the last published frame
func (s *RunState) CurrentFrameID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFrameID
}

// NextFrameID advances and returns the frame id
func (s *RunState) NextFrameID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentFrameID++
	return s.currentFrameID
}

// RecordPublish counts a published frame at t. The first publish seeds the
// start time. It returns the updated count and the start time.
func (s *RunState) RecordPublish(t time.Time) (int64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published++
	s.lastPublishTime = t
	if s.published == 1 {
		s.startTime = t
	}
	return s.published, s.startTime
}

// AddGenerated counts a frame built by the producer
func (s *RunState) AddGenerated() {
	s.mu.Lock()
	s.generated++
	s.mu.Unlock()
}

// SetProducerDone records that the producer has exited
func (s *RunState) SetProducerDone() {
	s.mu.Lock()
	s.producerDone = true
	s.mu.Unlock()
}

// ProducerDone reports whether the producer has exited
func (s *RunState) ProducerDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.producerDone
}

// SetPhase moves the publisher to p
func (s *RunState) SetPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Phase returns the publisher phase
func (s *RunState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Snapshot returns the live state
func (s *RunState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Final returns the state captured when the run was first marked done, or
// the live state if it is still running.
func (s *RunState) Final() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		return s.snapshotLocked()
	}
	f := s.final
	f.Err = s.err
	return f
}

func (s *RunState) snapshotLocked() Snapshot {
	return Snapshot{
		CurrentFrameID:  s.currentFrameID,
		Published:       s.published,
		Generated:       s.generated,
		StartTime:       s.startTime,
		LastPublishTime: s.lastPublishTime,
		Phase:           s.phase,
		ProducerDone:    s.producerDone,
		Done:            s.done,
		Err:             s.err,
	}
}
