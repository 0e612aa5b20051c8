package metricsync

import (
	"math"
	"time"

	"promoflow/pkg/config"
)

const (
	MinInterval = 15 * time.Minute
	MaxInterval = 720 * time.Minute

	volatileChangeRate = 0.1
	stableChangeRate   = 0.01
	stableSnapshots    = 3
	backoffFactor      = 1.5
)

// Policy holds the base interval of each age tier.
type Policy struct {
	NewInterval    time.Duration
	RecentInterval time.Duration
	OldInterval    time.Duration
}

var DefaultPolicy = Policy{
	NewInterval:    30 * time.Minute,
	RecentInterval: 120 * time.Minute,
	OldInterval:    360 * time.Minute,
}

func PolicyFromConfig(cfg *config.Config) Policy {
	p := DefaultPolicy
	if cfg.Sync.NewInterval > 0 {
		p.NewInterval = cfg.Sync.NewInterval
	}
	if cfg.Sync.RecentInterval > 0 {
		p.RecentInterval = cfg.Sync.RecentInterval
	}
	if cfg.Sync.OldInterval > 0 {
		p.OldInterval = cfg.Sync.OldInterval
	}
	return p
}

// Base returns the tier interval for content of the given age.
func (p Policy) Base(age time.Duration) time.Duration {
	switch {
	case age < 24*time.Hour:
		return p.NewInterval
	case age < 7*24*time.Hour:
		return p.RecentInterval
	default:
		return p.OldInterval
	}
}

// ChangeRate is the relative change between two engagement totals. A move
// away from zero counts as a full change.
func ChangeRate(older, newer int64) float64 {
	if older == 0 {
		if newer > 0 {
			return 1
		}
		return 0
	}
	return math.Abs(float64(newer-older)) / float64(older)
}

// NextInterval picks the delay until the next metrics sync. snapshots are
// ordered newest first; only the latest two drive the adjustment.
func NextInterval(age time.Duration, snapshots []*MetricSnapshot, p Policy) time.Duration {
	interval := p.Base(age)

	if len(snapshots) >= 2 {
		rate := ChangeRate(snapshots[1].Total(), snapshots[0].Total())
		switch {
		case rate > volatileChangeRate:
			interval /= 2
		case rate < stableChangeRate && len(snapshots) >= stableSnapshots:
			interval = time.Duration(float64(interval) * backoffFactor)
		}
	}

	return clamp(interval)
}

func clamp(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}
