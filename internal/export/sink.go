package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sink stores an encoded payload under name and returns where it ended up.
// A failed Write leaves nothing visible at the destination.
type Sink interface {
	Write(ctx context.Context, name string, format Format, data []byte) (string, error)
}

// FileSink writes payloads into Dir. Files appear atomically: data goes to
// a temporary file in the same directory which is synced and renamed.
type FileSink struct {
	Dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

func (s *FileSink) Write(ctx context.Context, name string, format Format, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	dest := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move export into place: %w", err)
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		return dest, nil
	}
	return abs, nil
}

// StreamAdder is the subset of the redis client the stream sink needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamSink publishes each payload as one stream entry, for consumers
// that import scraped products asynchronously.
type RedisStreamSink struct {
	client StreamAdder
	stream string
	maxLen int64
}

func NewRedisStreamSink(client StreamAdder, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = "stream:scraped_products"
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Write(ctx context.Context, name string, format Format, data []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"export_id":   uuid.New().String(),
			"filename":    name,
			"format":      string(format),
			"created_at":  time.Now().UTC().Format(time.RFC3339),
			"payload":     string(data),
			"payload_len": len(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to stream %s: %w", s.stream, err)
	}
	return fmt.Sprintf("redis://%s/%s", s.stream, id), nil
}
