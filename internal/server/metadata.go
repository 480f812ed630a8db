package server

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/logger"
)

const (
	primaryPrefix = "pva://"
	legacyPrefix  = "ca://"
)

// Metadata generates one random scalar per configured channel each publish
// cycle. Channels named pva://NAME go out on the primary transport with the
// frame's timestamp; ca://NAME and bare names go out on the legacy transport
// before that timestamp is taken.
type Metadata struct {
	primary   []string
	legacy    []string
	primaryTx ScalarPublisher
	legacyTx  ScalarPublisher
	value     func() float64
	now       func() time.Time
}

// NewMetadata splits channels by transport prefix
func NewMetadata(channels []string, primary, legacy ScalarPublisher) *Metadata {
	m := &Metadata{
		primaryTx: primary,
		legacyTx:  legacy,
		value:     rand.Float64,
		now:       time.Now,
	}
	for _, c := range channels {
		c = strings.TrimSpace(c)
		switch {
		case c == "":
		case strings.HasPrefix(c, primaryPrefix):
			m.primary = append(m.primary, strings.TrimPrefix(c, primaryPrefix))
		case strings.HasPrefix(c, legacyPrefix):
			m.legacy = append(m.legacy, strings.TrimPrefix(c, legacyPrefix))
		default:
			m.legacy = append(m.legacy, c)
		}
	}

	logger.WithComponent("metadata").Debug().
		Strs("primary", m.primary).
		Strs("legacy", m.legacy).
		Msg("Metadata channels configured")
	return m
}

// Channels returns the primary and legacy channel names without prefixes
func (m *Metadata) Channels() (primary, legacy []string) {
	return m.primary, m.legacy
}

// Sample draws a value in [0,1) for every channel
func (m *Metadata) Sample() map[string]float64 {
	sample := make(map[string]float64, len(m.primary)+len(m.legacy))
	for _, c := range m.legacy {
		sample[c] = m.value()
	}
	for _, c := range m.primary {
		sample[c] = m.value()
	}
	return sample
}

// Publish sends sample and returns the timestamp frames of this cycle must
// carry.
func (m *Metadata) Publish(sample map[string]float64) (time.Time, error) {
	for _, c := range m.legacy {
		if m.legacyTx == nil {
			break
		}
		if err := m.legacyTx.PublishScalar(c, sample[c], m.now()); err != nil {
			return time.Time{}, fmt.Errorf("%w: metadata %s: %v", ErrChannelPublish, c, err)
		}
	}

	t := m.now()
	for _, c := range m.primary {
		if m.primaryTx == nil {
			break
		}
		if err := m.primaryTx.PublishScalar(c, sample[c], t); err != nil {
			return t, fmt.Errorf("%w: metadata %s: %v", ErrChannelPublish, c, err)
		}
	}
	return t, nil
}
