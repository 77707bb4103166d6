package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/maltedev/vendor-scraper/internal/batch"
	"github.com/maltedev/vendor-scraper/internal/export"
	"github.com/maltedev/vendor-scraper/internal/registry"
	"github.com/maltedev/vendor-scraper/internal/scraper"
	"github.com/maltedev/vendor-scraper/internal/service"
)

// Backend is the subset of service.Service the handlers use.
type Backend interface {
	Vendors() []registry.VendorInfo
	DomainMappings() map[string]string
	Resolve(rawURL string) (string, bool)
	Scrape(ctx context.Context, req service.ScrapeRequest) (*batch.Result, error)
	ScrapeAndExport(ctx context.Context, req service.ExportRequest) (*service.ExportResult, error)
}

type Handlers struct {
	backend Backend
	logger  *slog.Logger
}

func NewHandlers(backend Backend, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		backend: backend,
		logger:  logger.With("component", "api"),
	}
}

// OverridesRequest carries per-request policy overrides. Durations use Go
// syntax ("500ms", "2s"); an absent field keeps the configured value and
// "0s" sets it to zero.
type OverridesRequest struct {
	RequestDelay *string `json:"request_delay"`
	Timeout      *string `json:"timeout"`
	MaxAttempts  *int    `json:"max_attempts"`
	BackoffBase  *string `json:"backoff_base"`
	MaxBackoff   *string `json:"max_backoff"`
}

type ScrapeRequest struct {
	URLs        []string         `json:"urls"`
	Vendor      string           `json:"vendor"`
	Overrides   OverridesRequest `json:"overrides"`
	Concurrency int              `json:"concurrency"`
}

type ExportRequest struct {
	ScrapeRequest
	Format   string `json:"format"`
	Filename string `json:"filename"`
	Sink     string `json:"sink"`
}

type SupportedResponse struct {
	URL       string `json:"url"`
	Supported bool   `json:"supported"`
	Vendor    string `json:"vendor,omitempty"`
}

type ExportResponse struct {
	Destination string        `json:"destination,omitempty"`
	Format      export.Format `json:"format,omitempty"`
	Exported    int           `json:"exported"`
	Batch       *batch.Result `json:"batch"`
	Error       string        `json:"error,omitempty"`
}

// ListVendors handles GET /api/v1/vendors
func (h *Handlers) ListVendors(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.backend.Vendors())
}

// ListDomains handles GET /api/v1/domains
func (h *Handlers) ListDomains(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.backend.DomainMappings())
}

// CheckSupported handles GET /api/v1/supported?url=
func (h *Handlers) CheckSupported(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	vendor, ok := h.backend.Resolve(rawURL)
	h.respondJSON(w, http.StatusOK, SupportedResponse{URL: rawURL, Supported: ok, Vendor: vendor})
}

// Scrape handles POST /api/v1/scrape and returns the batch result. Per-URL
// failures are part of the result, not an error response.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scrapeReq, err := req.toService()
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.backend.Scrape(r.Context(), scrapeReq)
	if err != nil {
		h.respondError(w, statusFor(err), err.Error())
		return
	}

	h.logger.Info("batch scraped",
		"batch_id", result.BatchID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	h.respondJSON(w, http.StatusOK, result)
}

// Export handles POST /api/v1/export: scrape, then export the successes.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scrapeReq, err := req.toService()
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.backend.ScrapeAndExport(r.Context(), service.ExportRequest{
		ScrapeRequest: scrapeReq,
		Format:        req.Format,
		Filename:      req.Filename,
		Sink:          req.Sink,
	})
	if err != nil {
		if out == nil {
			h.respondError(w, statusFor(err), err.Error())
			return
		}
		h.logger.Error("failed to export batch", "error", err, "batch_id", out.Batch.BatchID)
		h.respondJSON(w, statusFor(err), ExportResponse{Batch: out.Batch, Error: err.Error()})
		return
	}

	h.respondJSON(w, http.StatusOK, ExportResponse{
		Destination: out.Destination,
		Format:      out.Format,
		Exported:    out.Exported,
		Batch:       out.Batch,
	})
}

func (req ScrapeRequest) toService() (service.ScrapeRequest, error) {
	overrides, err := req.Overrides.overrides()
	if err != nil {
		return service.ScrapeRequest{}, err
	}
	if req.Concurrency < 0 {
		return service.ScrapeRequest{}, errors.New("concurrency must not be negative")
	}
	return service.ScrapeRequest{
		URLs:        req.URLs,
		Vendor:      req.Vendor,
		Overrides:   overrides,
		Concurrency: req.Concurrency,
	}, nil
}

func (o OverridesRequest) overrides() (scraper.Overrides, error) {
	var out scraper.Overrides
	if o.MaxAttempts != nil {
		if *o.MaxAttempts < 1 {
			return out, errors.New("overrides.max_attempts must be at least 1")
		}
		out.MaxAttempts = o.MaxAttempts
	}

	fields := []struct {
		name  string
		value *string
		dst   **time.Duration
	}{
		{"request_delay", o.RequestDelay, &out.RequestDelay},
		{"timeout", o.Timeout, &out.Timeout},
		{"backoff_base", o.BackoffBase, &out.BackoffBase},
		{"max_backoff", o.MaxBackoff, &out.MaxBackoff},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		d, err := time.ParseDuration(*f.value)
		if err != nil || d < 0 {
			return out, fmt.Errorf("overrides.%s: invalid duration %q", f.name, *f.value)
		}
		*f.dst = &d
	}
	if out.Timeout != nil && *out.Timeout == 0 {
		return out, errors.New("overrides.timeout must be positive")
	}
	return out, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoURLs),
		errors.Is(err, service.ErrUnknownSink),
		errors.Is(err, export.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
