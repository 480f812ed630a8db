package source

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
)

// RandomConfig configures the in-memory random generator
type RandomConfig struct {
	Frames  int
	Width   int
	Height  int
	Element frame.ElementType
	Minimum *float64
	Maximum *float64
	// Seed of 0 picks a time based seed.
	Seed int64
	// Stamp burns the frame index into each generated frame.
	Stamp bool
}

// Random holds a fixed set of randomly generated frames.
type Random struct {
	desc   frame.Descriptor
	frames [][]byte
	lo, hi float64
}

// NewRandom generates cfg.Frames frames up front
func NewRandom(cfg RandomConfig) (*Random, error) {
	if cfg.Frames <= 0 || cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid random frame geometry: %d frames of %dx%d", cfg.Frames, cfg.Width, cfg.Height)
	}
	if !cfg.Element.Valid() {
		return nil, fmt.Errorf("invalid datatype for random frames")
	}

	lo, hi := cfg.Element.Range()
	if cfg.Minimum != nil {
		lo = math.Max(lo, *cfg.Minimum)
	}
	if cfg.Maximum != nil {
		hi = math.Min(hi, *cfg.Maximum)
	}
	if hi < lo {
		return nil, fmt.Errorf("invalid value range [%v,%v]", lo, hi)
	}
	if !cfg.Element.IsFloat() {
		lo, hi = math.Ceil(lo), math.Floor(hi)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))

	log := logger.WithComponent("source")
	log.Info().Msg("Generating random frames")

	n := cfg.Width * cfg.Height
	size := n * cfg.Element.Size()
	r := &Random{
		desc: frame.Descriptor{
			FrameCount: cfg.Frames,
			Width:      cfg.Width,
			Height:     cfg.Height,
			Element:    cfg.Element,
		},
		frames: make([][]byte, cfg.Frames),
		lo:     lo,
		hi:     hi,
	}

	for f := range r.frames {
		buf := make([]byte, size)
		for i := 0; i < n; i++ {
			frame.PutValue(buf, i, cfg.Element, r.draw(rng, cfg.Element))
		}
		if cfg.Stamp {
			stampIndex(buf, cfg.Width, cfg.Height, cfg.Element, f, hi)
		}
		r.frames[f] = buf
	}

	log.Info().
		Str("shape", fmt.Sprintf("(%d, %d)", cfg.Height, cfg.Width)).
		Str("range", fmt.Sprintf("[%v,%v]", lo, hi)).
		Int("frames", cfg.Frames).
		Msg("Generated random frames")
	return r, nil
}

// draw picks a value uniformly from [lo, hi); integer types exclude hi
// unless the range is a single value.
func (r *Random) draw(rng *rand.Rand, t frame.ElementType) float64 {
	span := r.hi - r.lo
	if t.IsFloat() {
		return r.lo + rng.Float64()*span
	}
	if span < 1 {
		return r.lo
	}
	return r.lo + math.Floor(rng.Float64()*span)
}

// Describe reports the generated frame set
func (r *Random) Describe() frame.Descriptor {
	return r.desc
}

// FrameAt returns generated frame index
func (r *Random) FrameAt(index int) (*frame.RawFrame, error) {
	if index < 0 || index >= len(r.frames) {
		return nil, ErrNoFrame
	}
	return frame.Mono(r.frames[index], r.desc.Width, r.desc.Height, r.desc.Element), nil
}
