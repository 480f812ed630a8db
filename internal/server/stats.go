package server

import (
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/cache"
)

// Stats summarizes a run
type Stats struct {
	RunID                  string        `json:"run_id"`
	ChannelName            string        `json:"channel_name"`
	CacheMode              cache.Mode    `json:"cache_mode"`
	StartTime              time.Time     `json:"start_time"`
	Runtime                time.Duration `json:"runtime_ns"`
	Published              int64         `json:"published"`
	Generated              int64         `json:"generated"`
	LastFrameID            int64         `json:"last_frame_id"`
	FrameRate              float64       `json:"frame_rate"`
	RequestedFrameRate     float64       `json:"requested_frame_rate"`
	DataRateMBps           float64       `json:"data_rate_mbps"`
	CompressedDataRateMBps float64       `json:"compressed_data_rate_mbps"`
	CacheDrops             uint64        `json:"cache_drops"`
	CacheMisses            uint64        `json:"cache_misses"`
	Phase                  Phase         `json:"phase"`
	Done                   bool          `json:"done"`
	Error                  string        `json:"error,omitempty"`
	Err                    error         `json:"-"`
}
