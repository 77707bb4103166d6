package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/maltedev/vendor-scraper/internal/metrics"
)

const DefaultPrefix = "scraped_products"

// ExportError is a failed save; the payload itself is untouched and the
// call can be retried.
type ExportError struct {
	Op          string
	Destination string
	Err         error
}

func (e *ExportError) Error() string {
	if e.Destination == "" {
		return fmt.Sprintf("export %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("export %s %s: %v", e.Op, e.Destination, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

type PipelineOptions struct {
	Prefix  string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Pipeline encodes payloads and hands them to a sink.
type Pipeline struct {
	sink    Sink
	prefix  string
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPipeline(sink Sink, opts PipelineOptions) *Pipeline {
	// unset options take the defaults; same-typed structs always merge
	if err := mergo.Merge(&opts, PipelineOptions{Prefix: DefaultPrefix, Logger: slog.Default()}); err != nil {
		panic(err)
	}
	return &Pipeline{
		sink:    sink,
		prefix:  opts.Prefix,
		now:     time.Now,
		logger:  opts.Logger.With("component", "export"),
		metrics: opts.Metrics,
	}
}

// DefaultFilename is prefix_YYYYMMDD_HHMMSS.ext for the given time.
func DefaultFilename(prefix string, f Format, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, at.Format("20060102_150405"), f.Extension())
}

// Save encodes payload and writes it under filename, or under a timestamped
// default name when filename is empty. It returns the destination.
func (p *Pipeline) Save(ctx context.Context, payload Payload, filename string) (string, error) {
	format := payload.Format()

	name := filepath.Base(strings.TrimSpace(filename))
	if filename == "" || name == "." || name == string(filepath.Separator) {
		name = DefaultFilename(p.prefix, format, p.now())
	} else if filepath.Ext(name) == "" {
		name += "." + format.Extension()
	}

	data, err := Bytes(payload)
	if err != nil {
		p.metrics.ObserveExport(string(format), "failed", payload.Len())
		return "", &ExportError{Op: "encode", Destination: name, Err: err}
	}

	dest, err := p.sink.Write(ctx, name, format, data)
	if err != nil {
		p.metrics.ObserveExport(string(format), "failed", payload.Len())
		p.logger.Error("export failed", "filename", name, "format", format, "error", err)
		return "", &ExportError{Op: "write", Destination: name, Err: err}
	}

	p.metrics.ObserveExport(string(format), "success", payload.Len())
	p.logger.Info("exported products",
		"destination", dest,
		"format", format,
		"products", payload.Len(),
		"bytes", len(data),
	)
	return dest, nil
}
