package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maltedev/vendor-scraper/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStreamAdder struct {
	mock.Mock
}

func (m *MockStreamAdder) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if err := mockArgs.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("1700000000000-0")
	}
	return cmd
}

type failingPayload struct{}

func (failingPayload) Format() Format           { return FormatJSON }
func (failingPayload) Len() int                 { return 3 }
func (failingPayload) Encode(w io.Writer) error { return errors.New("boom") }

func TestDefaultFilename(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "scraped_products_20240309_140507.xlsx", DefaultFilename(DefaultPrefix, FormatXLSX, at))
	assert.Equal(t, "parts_20240309_140507.json", DefaultFilename("parts", FormatInventory, at))
}

func TestNewPipelineDefaults(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		opts       PipelineOptions
		wantPrefix string
	}{
		{"Empty options", PipelineOptions{}, DefaultPrefix},
		{"Custom prefix and logger", PipelineOptions{Prefix: "bom", Logger: custom}, "bom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(NewFileSink(t.TempDir()), tt.opts)
			assert.Equal(t, tt.wantPrefix, p.prefix)
			assert.NotNil(t, p.logger)
			assert.Nil(t, p.metrics)
		})
	}
}

func TestPipelineSaveToFile(t *testing.T) {
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	p := NewPipeline(NewFileSink(dir), PipelineOptions{Metrics: m})
	p.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }

	exporter, _ := NewExporter(FormatCSV)
	payload := exporter.ExportMultiple(sampleProducts(t))

	tests := []struct {
		name     string
		filename string
		expected string
	}{
		{"Default name", "", "scraped_products_20240309_140507.csv"},
		{"Explicit name", "parts.csv", "parts.csv"},
		{"Extension added", "parts-2024", "parts-2024.csv"},
		{"Directories stripped", "../../etc/passwd.csv", "passwd.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, err := p.Save(context.Background(), payload, tt.filename)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.expected), dest)

			data, err := os.ReadFile(dest)
			require.NoError(t, err)
			expected, err := Bytes(payload)
			require.NoError(t, err)
			assert.Equal(t, expected, data)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp file left behind")
	}

	assert.Equal(t, float64(4), testutil.ToFloat64(m.ExportsTotal.WithLabelValues("csv", "success")))
}

func TestPipelineEncodeFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(NewFileSink(dir), PipelineOptions{})

	_, err := p.Save(context.Background(), failingPayload{}, "out.json")

	var exportErr *ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, "encode", exportErr.Op)
	assert.Equal(t, "out.json", exportErr.Destination)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipelineSinkFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	p := NewPipeline(NewFileSink(blocker), PipelineOptions{})
	exporter, _ := NewExporter(FormatJSON)

	_, err := p.Save(context.Background(), exporter.ExportMultiple(nil), "out.json")

	var exportErr *ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, "write", exportErr.Op)
}

func TestFileSinkHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileSink(t.TempDir()).Write(ctx, "out.json", FormatJSON, []byte("[]"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStreamSink(t *testing.T) {
	ctx := context.Background()

	t.Run("Publishes payload", func(t *testing.T) {
		client := new(MockStreamAdder)
		client.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Stream == "stream:exports" &&
				args.MaxLen == 1000 && args.Approx &&
				args.Values.(map[string]interface{})["format"] == "inventory" &&
				args.Values.(map[string]interface{})["payload"] == "[]" &&
				args.Values.(map[string]interface{})["filename"] == "parts.json"
		})).Return(nil)

		sink := NewRedisStreamSink(client, "stream:exports", 1000)
		dest, err := sink.Write(ctx, "parts.json", FormatInventory, []byte("[]"))

		require.NoError(t, err)
		assert.Equal(t, "redis://stream:exports/1700000000000-0", dest)
		client.AssertExpectations(t)
	})

	t.Run("Redis error", func(t *testing.T) {
		client := new(MockStreamAdder)
		client.On("XAdd", ctx, mock.Anything).Return(errors.New("connection refused"))

		p := NewPipeline(NewRedisStreamSink(client, "", 0), PipelineOptions{})
		exporter, _ := NewExporter(FormatJSON)
		_, err := p.Save(ctx, exporter.ExportMultiple(nil), "")

		var exportErr *ExportError
		require.ErrorAs(t, err, &exportErr)
		assert.Equal(t, "write", exportErr.Op)
		assert.Contains(t, err.Error(), "stream:scraped_products")
	})
}
