// Package server runs the frame pipeline: a producer filling the frame cache
// from the configured sources, and a rate-paced publisher draining it onto the
// output channel together with simulated metadata.
package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/cache"
	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/bryanchriswhite/DetectorSim/internal/source"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	ShutdownDelay     = 1 * time.Second
	MinCacheSize      = 1
	CacheTimeout      = 1 * time.Second
	DelayCorrection   = 100 * time.Microsecond
	NotificationDelay = 100 * time.Millisecond
	BytesInMegabyte   = 1_000_000

	emptyTableRetry = 10 * time.Millisecond
)

// ErrChannelPublish wraps every failure reported by a transport
var ErrChannelPublish = errors.New("channel publish failed")

// Reporter receives operator-facing status lines. Calls may come from any
// goroutine.
type Reporter interface {
	Report(text string)
}

// Announcer is implemented by reporters that distinguish permanent lines
// (banner, final statistics) from the redrawn status line.
type Announcer interface {
	Announce(text string)
}

// ScalarPublisher publishes a named scalar value with a timestamp
type ScalarPublisher interface {
	PublishScalar(name string, value float64, ts time.Time) error
}

// ChannelPublisher is the output transport for frames and scalars
type ChannelPublisher interface {
	ScalarPublisher
	PublishFrame(rec *frame.Record) error
	Start() error
	Stop() error
}

// Notifier writes a one-off value to a named channel
type Notifier interface {
	Notify(channel, value string) error
}

// Config is the run configuration consumed by the server
type Config struct {
	ChannelName      string
	FrameRate        float64
	Runtime          time.Duration
	NFrames          int
	CacheSize        int
	StartDelay       time.Duration
	ReportPeriod     int
	MetadataChannels []string
	NotifyChannel    string
	NotifyValue      string
}

// Option customizes a Server
type Option func(*Server)

// WithReporter sets the status reporter
func WithReporter(r Reporter) Option {
	return func(s *Server) { s.reporter = r }
}

// WithLegacyTransport sets the transport for ca:// and bare metadata channels.
// Without it they go out on the output channel publisher.
func WithLegacyTransport(p ScalarPublisher) Option {
	return func(s *Server) { s.legacy = p }
}

// WithNotifier sets the transport used for the start notification
func WithNotifier(n Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithShutdownDelay overrides the grace delay Stop waits
func WithShutdownDelay(d time.Duration) Option {
	return func(s *Server) { s.shutdownDelay = d }
}

// Info describes the stream a server was configured for
type Info struct {
	RunID                      string           `json:"run_id"`
	ChannelName                string           `json:"channel_name"`
	InputFrames                int              `json:"input_frames"`
	Descriptor                 frame.Descriptor `json:"descriptor"`
	CacheMode                  cache.Mode       `json:"cache_mode"`
	CacheSize                  int              `json:"cache_size"`
	FrameRate                  float64          `json:"frame_rate"`
	UncompressedFrameSize      int              `json:"uncompressed_frame_size"`
	CompressedFrameSize        int              `json:"compressed_frame_size"`
	ExpectedDataRateMBps       float64          `json:"expected_data_rate_mbps"`
	ExpectedCompressedRateMBps float64          `json:"expected_compressed_data_rate_mbps"`
}

// Server owns one run of the pipeline.
type Server struct {
	cfg      Config
	sources  []source.Source
	channel  ChannelPublisher
	legacy   ScalarPublisher
	notifier Notifier
	reporter Reporter

	info          Info
	cache         cache.Cache
	state         *RunState
	producer      *Producer
	publisher     *Publisher
	shutdownDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	startErr  error
	stats     Stats
}

// New sizes the cache for the sources and wires producer and publisher.
func New(cfg Config, sources []source.Source, channel ChannelPublisher, opts ...Option) (*Server, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no frame sources configured")
	}
	if channel == nil {
		return nil, fmt.Errorf("no channel publisher configured")
	}
	if cfg.FrameRate < 0 {
		return nil, fmt.Errorf("invalid frame rate %v", cfg.FrameRate)
	}

	s := &Server{
		cfg:           cfg,
		sources:       sources,
		channel:       channel,
		shutdownDelay: ShutdownDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		s.reporter = logReporter{}
	}
	if s.legacy == nil {
		s.legacy = channel
	}

	cacheSize := max(cfg.CacheSize, MinCacheSize)
	total := inputFrames(sources)
	bounded := total > 0
	if cfg.NFrames > 0 && (total == 0 || cfg.NFrames < total) {
		total = cfg.NFrames
	}

	var period time.Duration
	cacheTimeout := CacheTimeout
	if cfg.FrameRate > 0 {
		period = time.Duration(float64(time.Second) / cfg.FrameRate)
		cacheTimeout = max(CacheTimeout, period)
	}

	// Frames of an unbounded source are never revisited, so they stream
	// through a queue even when n_frames would fit the table.
	mode := cache.ModeQueue
	if bounded {
		mode = cache.SelectMode(total, cacheSize)
	}
	if mode == cache.ModeTable {
		s.cache = cache.NewTable(cacheSize, total)
	} else {
		s.cache = cache.NewQueue(cacheSize, cfg.StartDelay+cacheTimeout, cacheTimeout)
	}

	desc := sources[0].Describe()
	s.info = Info{
		RunID:                 uuid.NewString(),
		ChannelName:           cfg.ChannelName,
		InputFrames:           total,
		Descriptor:            desc,
		CacheMode:             mode,
		CacheSize:             cacheSize,
		FrameRate:             cfg.FrameRate,
		UncompressedFrameSize: desc.UncompressedFrameSize(),
		CompressedFrameSize:   compressedFrameSize(sources[0], desc),
	}
	s.info.ExpectedDataRateMBps = dataRate(s.info.UncompressedFrameSize, cfg.FrameRate)
	s.info.ExpectedCompressedRateMBps = dataRate(s.info.CompressedFrameSize, cfg.FrameRate)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.state = NewRunState(s.cancel)
	meta := NewMetadata(cfg.MetadataChannels, channel, s.legacy)
	s.producer = NewProducer(sources, s.cache, s.state, s.reporter, total)
	s.publisher = NewPublisher(s.cache, channel, meta, s.state, s.reporter, PublisherSettings{
		Period:       period,
		Runtime:      cfg.Runtime,
		TotalFrames:  int64(total),
		StartDelay:   cfg.StartDelay,
		ReportPeriod: int64(cfg.ReportPeriod),
	})

	logger.WithComponent("server").Info().
		Str("run_id", s.info.RunID).
		Str("channel", cfg.ChannelName).
		Int("input_frames", total).
		Str("cache_mode", string(mode)).
		Int("cache_size", cacheSize).
		Dur("cache_timeout", cacheTimeout).
		Msg("Server configured")
	return s, nil
}

// inputFrames sums the frame counts of bounded sources. Any unbounded source
// makes the stream unbounded (0).
func inputFrames(sources []source.Source) int {
	total := 0
	for _, src := range sources {
		d := src.Describe()
		if !d.Bounded() {
			return 0
		}
		total += d.FrameCount
	}
	return total
}

// compressedFrameSize is the payload size of the first frame when the source
// serves compressed chunks, otherwise the uncompressed size.
func compressedFrameSize(src source.Source, desc frame.Descriptor) int {
	if desc.Codec == "" {
		return desc.UncompressedFrameSize()
	}
	raw, err := src.FrameAt(0)
	if err != nil || raw.Codec == "" {
		return desc.UncompressedFrameSize()
	}
	return len(raw.Data)
}

func dataRate(frameSize int, frameRate float64) float64 {
	return float64(frameSize) * frameRate / BytesInMegabyte
}

// Info returns the static description of the run
func (s *Server) Info() Info {
	return s.info
}

// Cache returns the frame cache
func (s *Server) Cache() cache.Cache {
	return s.cache
}

// Done is closed once the run has ended on its own or through Stop
func (s *Server) Done() <-chan struct{} {
	return s.state.DoneChan()
}

// Start starts the channel endpoint and launches the producer and the
// publisher. It does not block; the publisher waits out the start delay on
// its own goroutine.
func (s *Server) Start() error {
	s.startOnce.Do(func() {
		s.startErr = s.start()
	})
	return s.startErr
}

func (s *Server) start() error {
	if err := s.channel.Start(); err != nil {
		s.state.MarkDone()
		return fmt.Errorf("failed to start channel: %w", err)
	}

	s.banner()
	s.notify()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.producer.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.publisher.Run(s.ctx)
	}()

	logger.WithComponent("server").Info().
		Dur("start_delay", s.cfg.StartDelay).
		Msg("Server started")
	return nil
}

func (s *Server) banner() {
	i := s.info
	codec := i.Descriptor.Codec
	if codec == "" {
		codec = "none"
	}
	s.announce(fmt.Sprintf("Number of input frames: %d (size: %dx%d, %s, type: %s, compressor: %s, compressed size: %s)",
		i.InputFrames, i.Descriptor.Width, i.Descriptor.Height,
		humanize.Bytes(uint64(i.UncompressedFrameSize)), i.Descriptor.Element,
		codec, humanize.Bytes(uint64(i.CompressedFrameSize))))
	s.announce(fmt.Sprintf("Frame cache type: %s (cache size: %d)", i.CacheMode, i.CacheSize))
	s.announce(fmt.Sprintf("Expected data rate: %.4f MBps (uncompressed: %.4f MBps)",
		i.ExpectedCompressedRateMBps, i.ExpectedDataRateMBps))
}

func (s *Server) notify() {
	if s.cfg.NotifyChannel == "" || s.cfg.NotifyValue == "" || s.notifier == nil {
		return
	}
	time.Sleep(NotificationDelay)
	if err := s.notifier.Notify(s.cfg.NotifyChannel, s.cfg.NotifyValue); err != nil {
		s.announce(fmt.Sprintf("Could not set notification channel %s to %s: %v", s.cfg.NotifyChannel, s.cfg.NotifyValue, err))
		return
	}
	s.announce(fmt.Sprintf("Set notification channel %s to %s", s.cfg.NotifyChannel, s.cfg.NotifyValue))
}

func (s *Server) announce(text string) {
	if a, ok := s.reporter.(Announcer); ok {
		a.Announce(text)
		return
	}
	s.reporter.Report(text)
}

// Stop marks the run done, stops the channel, waits the shutdown grace delay
// and reports the final statistics. Later calls return the same statistics.
func (s *Server) Stop() Stats {
	s.stopOnce.Do(func() {
		log := logger.WithComponent("server")
		s.state.MarkDone()

		if err := s.channel.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop channel")
		}

		time.Sleep(s.shutdownDelay)
		s.waitTasks()

		s.stats = s.buildStats(s.state.Final())
		s.announce(fmt.Sprintf("Server runtime: %.4f seconds", s.stats.Runtime.Seconds()))
		s.announce(fmt.Sprintf("Published frames: %6d @ %.4f fps", s.stats.Published, s.stats.FrameRate))
		s.announce(fmt.Sprintf("Data rate: %.4f MBps", s.stats.DataRateMBps))

		log.Info().
			Str("run_id", s.stats.RunID).
			Int64("published", s.stats.Published).
			Float64("frame_rate", s.stats.FrameRate).
			Uint64("drops", s.stats.CacheDrops).
			Msg("Server stopped")
	})
	return s.stats
}

// waitTasks gives the producer and publisher one more grace period to
// observe done.
func (s *Server) waitTasks() {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(s.shutdownDelay):
		logger.WithComponent("server").Warn().Msg("Tasks still running after shutdown delay")
	}
}

// Stats returns live statistics while the run is going and the statistics
// captured at completion afterwards.
func (s *Server) Stats() Stats {
	return s.buildStats(s.state.Final())
}

func (s *Server) buildStats(snap Snapshot) Stats {
	var (
		runtime   time.Duration
		frameRate float64
	)
	if snap.Published > 0 {
		runtime = snap.LastPublishTime.Sub(snap.StartTime)
	}
	if snap.Published > 1 && runtime > 0 {
		frameRate = float64(snap.Published-1) / runtime.Seconds()
	}
	cs := s.cache.Stats()

	st := Stats{
		RunID:                  s.info.RunID,
		ChannelName:            s.info.ChannelName,
		CacheMode:              s.info.CacheMode,
		StartTime:              snap.StartTime,
		Runtime:                runtime,
		Published:              snap.Published,
		Generated:              snap.Generated,
		LastFrameID:            snap.CurrentFrameID,
		FrameRate:              frameRate,
		RequestedFrameRate:     s.cfg.FrameRate,
		DataRateMBps:           dataRate(s.info.UncompressedFrameSize, frameRate),
		CompressedDataRateMBps: dataRate(s.info.CompressedFrameSize, frameRate),
		CacheDrops:             cs.Drops,
		CacheMisses:            cs.Misses,
		Phase:                  snap.Phase,
		Done:                   snap.Done,
		Err:                    snap.Err,
	}
	if math.IsInf(st.FrameRate, 0) || math.IsNaN(st.FrameRate) {
		st.FrameRate = 0
	}
	if snap.Err != nil {
		st.Error = snap.Err.Error()
	}
	return st
}

type logReporter struct{}

func (logReporter) Report(text string) {
	logger.WithComponent("server").Info().Msg(text)
}
