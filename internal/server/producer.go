package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/DetectorSim/internal/cache"
	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/bryanchriswhite/DetectorSim/internal/source"
)

// Producer reads frames from the sources, builds records and fills the cache.
type Producer struct {
	sources  []source.Source
	builder  *frame.Builder
	cache    cache.Cache
	state    *RunState
	reporter Reporter
	// total frames to produce; 0 means unbounded
	total int64
}

// NewProducer creates a producer over sources
func NewProducer(sources []source.Source, c cache.Cache, state *RunState, reporter Reporter, total int) *Producer {
	return &Producer{
		sources:  sources,
		builder:  frame.NewBuilder(),
		cache:    c,
		state:    state,
		reporter: reporter,
		total:    int64(total),
	}
}

// Run produces until the run is done, the requested total is reached, or the
// sources have nothing more to give. In table mode the sources are read once;
// in queue mode they are re-read from the start until one of the other
// conditions holds. It returns the number of frames generated.
func (p *Producer) Run(ctx context.Context) int64 {
	log := logger.WithComponent("producer")
	defer p.state.SetProducerDone()

	var (
		frameID int64
		tmpl    *frame.Record
	)

	for !p.state.Done() {
		exhausted := false
		produced := 0

		for _, src := range p.sources {
			d := src.Describe()
			for i := 0; !d.Bounded() || i < d.FrameCount; i++ {
				if p.state.Done() || p.reached(frameID) {
					break
				}

				raw, err := src.FrameAt(i)
				if err != nil {
					if !errors.Is(err, source.ErrNoFrame) {
						log.Error().Err(err).Int("index", i).Msg("Failed to read frame")
					}
					exhausted = true
					break
				}

				rec, err := p.builder.Build(frameID, raw, tmpl)
				if err != nil {
					log.Error().Err(err).Int("index", i).Msg("Skipping source")
					break
				}
				tmpl = rec

				if err := p.cache.Put(ctx, frameID, rec); err != nil {
					switch {
					case errors.Is(err, cache.ErrCacheFull):
						log.Debug().Int64("frame_id", frameID).Msg("Cache full, frame dropped")
					case ctx.Err() != nil:
						p.finish(frameID)
						return frameID
					default:
						log.Error().Err(err).Int64("frame_id", frameID).Msg("Failed to cache frame")
					}
				}
				frameID++
				produced++
				p.state.AddGenerated()
			}
		}

		if p.state.Done() || p.cache.Mode() == cache.ModeTable || exhausted ||
			produced == 0 || p.reached(frameID) {
			break
		}
	}

	p.finish(frameID)
	return frameID
}

func (p *Producer) reached(frameID int64) bool {
	return p.total > 0 && frameID >= p.total
}

func (p *Producer) finish(generated int64) {
	p.reporter.Report(fmt.Sprintf("Frame producer is done after %d generated frames", generated))
}
