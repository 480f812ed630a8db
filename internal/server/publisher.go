package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/cache"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
)

// PublisherSettings are the pacing and stop parameters of the publish loop
type PublisherSettings struct {
	// Period between frames; 0 publishes as fast as possible.
	Period time.Duration
	// Runtime budget measured from the first published frame; 0 is unlimited.
	Runtime time.Duration
	// TotalFrames ends a queue-mode run once published; 0 is unbounded.
	TotalFrames int64
	StartDelay  time.Duration
	// ReportPeriod emits a progress report every N frames; <= 0 disables.
	ReportPeriod int64
}

// Publisher is the rate-paced loop moving records from the cache to the
// channel.
type Publisher struct {
	cache    cache.Cache
	channel  ChannelPublisher
	meta     *Metadata
	state    *RunState
	reporter Reporter
	settings PublisherSettings
	now      func() time.Time
}

// NewPublisher creates a publisher
func NewPublisher(c cache.Cache, ch ChannelPublisher, meta *Metadata, state *RunState, reporter Reporter, settings PublisherSettings) *Publisher {
	return &Publisher{
		cache:    c,
		channel:  ch,
		meta:     meta,
		state:    state,
		reporter: reporter,
		settings: settings,
		now:      time.Now,
	}
}

type cycleResult int

const (
	cycleContinue cycleResult = iota
	cycleSkip
	cycleStop
)

// Run waits out the start delay, then publishes one frame per cycle until a
// stop condition is met or the run is marked done. It returns the fatal
// error that ended the run, if any.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.state.SetPhase(PhaseStopped)

	p.state.SetPhase(PhaseWaitingStart)
	if !sleep(ctx, p.settings.StartDelay) || p.state.Done() {
		return nil
	}
	p.state.SetPhase(PhasePublishing)
	logger.WithComponent("publisher").Info().
		Dur("period", p.settings.Period).
		Str("cache_mode", string(p.cache.Mode())).
		Msg("Publishing started")

	for {
		if p.state.Done() {
			return nil
		}

		res, wait, err := p.cycle(ctx)
		if err != nil {
			return err
		}
		switch res {
		case cycleStop:
			return nil
		case cycleSkip:
			wait = emptyTableRetry
		}

		if wait > 0 && !sleep(ctx, wait) {
			return nil
		}
	}
}

// cycle runs one publish cycle and returns how long to wait before the next.
func (p *Publisher) cycle(ctx context.Context) (cycleResult, time.Duration, error) {
	queue := p.cache.Mode() == cache.ModeQueue
	if queue && p.state.ProducerDone() && p.state.Phase() == PhasePublishing {
		p.state.SetPhase(PhaseDraining)
	}
	if !queue && p.cache.Len() == 0 {
		// nothing produced yet; metadata goes out with the first frame
		return cycleSkip, 0, nil
	}

	t, err := p.meta.Publish(p.meta.Sample())
	if err != nil {
		return p.fail(err)
	}

	rec, err := p.cache.Get(ctx, p.state.CurrentFrameID())
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrCacheEmpty) && queue:
			p.reporter.Report("Server exiting after emptying queue")
			p.state.MarkDone()
			return cycleStop, 0, nil
		case errors.Is(err, cache.ErrCacheEmpty):
			return cycleSkip, 0, nil
		case ctx.Err() != nil:
			return cycleStop, 0, nil
		default:
			return p.fail(err)
		}
	}

	out := rec.Stamped(p.state.NextFrameID(), t)
	if err := p.channel.PublishFrame(out); err != nil {
		return p.fail(fmt.Errorf("%w: frame %d: %v", ErrChannelPublish, out.UniqueID, err))
	}

	last := p.now()
	n, start := p.state.RecordPublish(last)

	if queue && p.settings.TotalFrames > 0 && n >= p.settings.TotalFrames {
		p.reporter.Report(fmt.Sprintf("Server exiting after publishing %d", n))
		p.state.MarkDone()
		return cycleStop, 0, nil
	}

	var (
		runtime   time.Duration
		frameRate float64
	)
	if n > 1 {
		runtime = last.Sub(start)
		if s := runtime.Seconds(); s > 0 {
			frameRate = float64(n-1) / s
		}
	}
	if p.settings.ReportPeriod > 0 && n%p.settings.ReportPeriod == 0 {
		p.reporter.Report(fmt.Sprintf("Published frame id %6d @ %.3fs (frame rate: %.4ffps; runtime: %.3fs)",
			out.UniqueID, unixSeconds(last), frameRate, runtime.Seconds()))
	}

	if p.settings.Runtime > 0 && runtime > p.settings.Runtime {
		p.reporter.Report(fmt.Sprintf("Server exiting after reaching runtime of %.3f seconds", runtime.Seconds()))
		p.state.MarkDone()
		return cycleStop, 0, nil
	}

	if p.settings.Period > 0 {
		next := start.Add(time.Duration(n) * p.settings.Period)
		return cycleContinue, next.Sub(p.now()) - DelayCorrection, nil
	}
	return cycleContinue, 0, nil
}

// fail ends the run with err unless it is already shutting down, in which
// case the error is an expected race and is dropped.
func (p *Publisher) fail(err error) (cycleResult, time.Duration, error) {
	if p.state.Done() {
		return cycleStop, 0, nil
	}
	logger.WithComponent("publisher").Error().Err(err).Msg("Publishing failed")
	p.state.Fail(err)
	return cycleStop, 0, err
}

// sleep waits for d or until ctx is cancelled; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
