package emit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rendis/stepwise/pkg/schema"
)

const DefaultStream = "stepwise:events"

// RedisStream appends every event to a Redis stream with XADD.
type RedisStream struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisStream creates a RedisStream emitter. maxLen <= 0 keeps the
// stream untrimmed.
func NewRedisStream(client redis.Cmdable, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

func (r *RedisStream) Emit(ctx context.Context, ev schema.Event) error {
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"id":        strconv.FormatUint(ev.ID, 10),
			"event":     string(ev.Event),
			"step":      ev.Step,
			"message":   ev.Message,
			"timestamp": ev.Timestamp.Format(time.RFC3339),
			"run_id":    ev.RunID,
			"workflow":  ev.Workflow,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	return r.client.XAdd(ctx, args).Err()
}

// ReadStream returns the events stored in a stream, oldest first.
func ReadStream(ctx context.Context, client redis.Cmdable, stream string) ([]schema.Event, error) {
	msgs, err := client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		return nil, err
	}
	out := make([]schema.Event, 0, len(msgs))
	for _, m := range msgs {
		ev := schema.Event{
			Event:    schema.EventType(str(m.Values["event"])),
			Step:     str(m.Values["step"]),
			Message:  str(m.Values["message"]),
			RunID:    str(m.Values["run_id"]),
			Workflow: str(m.Values["workflow"]),
		}
		ev.ID, _ = strconv.ParseUint(str(m.Values["id"]), 10, 64)
		ev.Timestamp, _ = time.Parse(time.RFC3339, str(m.Values["timestamp"]))
		out = append(out, ev)
	}
	return out, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
