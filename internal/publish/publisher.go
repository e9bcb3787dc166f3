package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weir-lab/project-weir/internal/core/aggregation"
)

// Publisher is the downstream sink for closed aggregation windows. The
// engine treats Publish as a potentially slow I/O call: it is never invoked
// while buffer state is held, and failures get exactly one immediate retry
// before the result is counted as lost and dropped.
type Publisher interface {
	Publish(ctx context.Context, res *aggregation.Result) error
}

// Error wraps a downstream publish failure.
type Error struct {
	Sink string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish to %s failed: %v", e.Sink, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// LogPublisher writes results to the structured log. The default sink when
// no external consumer is wired in.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher { return &LogPublisher{} }

func (p *LogPublisher) Publish(_ context.Context, res *aggregation.Result) error {
	slog.Info("[Publisher] Window closed",
		"aggregation", res.AggregationName,
		"partition_key", res.PartitionKey,
		"window_kind", res.WindowKind,
		"window_start", res.WindowStart,
		"window_end", res.WindowEnd,
		"event_count", res.EventCount,
		"cause", res.Cause,
		"metrics", len(res.Metrics),
	)
	return nil
}
