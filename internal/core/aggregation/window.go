package aggregation

import (
	"fmt"
	"time"
)

// Window kinds.
const (
	KindTumbling = "tumbling"
	KindSliding  = "sliding"
	KindSession  = "session"
)

// WindowSpec describes how events are grouped into windows for one
// aggregation definition.
type WindowSpec struct {
	// Kind is one of tumbling, sliding, session.
	Kind string

	// Duration is the window length. Required for tumbling and sliding,
	// ignored for session (session length is gap-driven).
	Duration time.Duration

	// SlideInterval is how often a sliding window re-emits while still
	// accumulating. Only meaningful for sliding.
	SlideInterval time.Duration

	// SessionGap is the maximum idle time between events before a session
	// is considered ended. Only meaningful for session.
	SessionGap time.Duration

	// MaxEvents is an optional hard cap: when a buffer reaches this many
	// events the window closes immediately regardless of elapsed time.
	// Zero means uncapped. Checked on every append, before any time-based
	// closure rule, for every window kind.
	MaxEvents int
}

// Validate checks the spec for internal consistency.
func (w WindowSpec) Validate() error {
	switch w.Kind {
	case KindTumbling:
		if w.Duration <= 0 {
			return fmt.Errorf("tumbling window requires duration > 0")
		}
	case KindSliding:
		if w.Duration <= 0 {
			return fmt.Errorf("sliding window requires duration > 0")
		}
		if w.SlideInterval <= 0 {
			return fmt.Errorf("sliding window requires slide_interval > 0")
		}
		if w.SlideInterval > w.Duration {
			return fmt.Errorf("slide_interval %s exceeds window duration %s", w.SlideInterval, w.Duration)
		}
	case KindSession:
		if w.SessionGap <= 0 {
			return fmt.Errorf("session window requires session_gap > 0")
		}
	default:
		return fmt.Errorf("unknown window kind %q (must be tumbling, sliding, or session)", w.Kind)
	}
	if w.MaxEvents < 0 {
		return fmt.Errorf("max_events must be >= 0, got %d", w.MaxEvents)
	}
	return nil
}

// ParseWindowDuration parses a duration string used in window specs.
// Supports Go duration syntax (e.g., "10s", "1m", "1h") plus "Xd" for days.
func ParseWindowDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration must not be empty")
	}

	// Handle "d" suffix (days), not supported by time.ParseDuration.
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if days <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}
