package extract

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Extractor is implemented by each format adapter.
type Extractor interface {
	Name() string
	Extensions() []string
	CanHandle(path string) bool
	Extract(ctx context.Context, path string) (*RawExtraction, error)
}

// DispatchRecord captures one routed extraction, for observability.
type DispatchRecord struct {
	ProcessingID     string
	FileName         string
	Extractor        string
	Status           string // "completed" or "failed"
	ProcessingTimeMS int64
	Result           *RawExtraction
	Err              error
	StartedAt        time.Time
	CompletedAt      time.Time
}

// Processor routes files to the extractor registered for their extension.
// It owns no format knowledge beyond the registry.
type Processor struct {
	registry map[string]Extractor
}

// NewProcessor builds a dispatch table from the given extractors.
func NewProcessor(extractors ...Extractor) *Processor {
	registry := make(map[string]Extractor)
	for _, ex := range extractors {
		for _, ext := range ex.Extensions() {
			registry[strings.ToLower(ext)] = ex
		}
	}
	return &Processor{registry: registry}
}

// Supported reports whether a file of this name can be routed.
func (p *Processor) Supported(path string) bool {
	_, ok := p.registry[normalizeExt(path)]
	return ok
}

// Process validates the file, dispatches to the matching extractor under a
// stopwatch and returns the dispatch record. The record's Err field is set
// instead of a second return value so failed dispatches still carry timings.
func (p *Processor) Process(ctx context.Context, path string) *DispatchRecord {
	rec := &DispatchRecord{
		ProcessingID: uuid.New().String(),
		FileName:     filepath.Base(path),
		StartedAt:    time.Now().UTC(),
	}

	finish := func() *DispatchRecord {
		rec.CompletedAt = time.Now().UTC()
		rec.ProcessingTimeMS = rec.CompletedAt.Sub(rec.StartedAt).Milliseconds()
		if rec.Err != nil {
			rec.Status = "failed"
			log.Printf("[processor] %s: %s failed after %dms: %v",
				rec.ProcessingID, rec.FileName, rec.ProcessingTimeMS, rec.Err)
		} else {
			rec.Status = "completed"
			log.Printf("[processor] %s: %s extracted by %s in %dms",
				rec.ProcessingID, rec.FileName, rec.Extractor, rec.ProcessingTimeMS)
		}
		return rec
	}

	ex, ok := p.registry[normalizeExt(path)]
	if !ok {
		rec.Err = newError(ErrUnsupportedFormat, "no extractor for %s", rec.FileName)
		return finish()
	}
	rec.Extractor = ex.Name()

	if err := ValidateFile(path); err != nil {
		rec.Err = err
		return finish()
	}

	result, err := ex.Extract(ctx, path)
	rec.Result = result
	rec.Err = err
	return finish()
}

func normalizeExt(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
