// Package chunk splits oversized documents into LLM-sized pieces: by
// transaction batches when structured rows exist, by page markers when the
// text carries them, otherwise by byte-bounded windows with overlap.
package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	StrategyTransactions = "transactions"
	StrategyPages        = "pages"
	StrategySize         = "size"
)

const (
	DefaultMaxChunkSize            = 4000
	DefaultOverlap                 = 200
	DefaultMaxTransactionsPerChunk = 30

	// boundaryLookback is how far back from a size cut we search for a
	// newline or sentence end.
	boundaryLookback = 500

	// maxChunks aborts pathological input.
	maxChunks = 1000
)

var pageMarkerPattern = regexp.MustCompile(`--- Page \d+ ---`)

// Chunk is one piece of a split document. Text chunks carry Text;
// transaction chunks carry Transactions with their index range.
type Chunk struct {
	ID           string
	Type         string
	Text         string
	Transactions []map[string]any
	StartIndex   int
	EndIndex     int
	CharCount    int
}

type Chunker struct {
	MaxChunkSize            int
	Overlap                 int
	MaxTransactionsPerChunk int
}

func New(maxChunkSize, overlap, maxPerChunk int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if maxPerChunk <= 0 {
		maxPerChunk = DefaultMaxTransactionsPerChunk
	}
	return &Chunker{MaxChunkSize: maxChunkSize, Overlap: overlap, MaxTransactionsPerChunk: maxPerChunk}
}

// ShouldChunk reports whether the document needs splitting.
func (c *Chunker) ShouldChunk(rawText string, transactionCount int) bool {
	return len(rawText) > 2*c.MaxChunkSize || transactionCount > c.MaxTransactionsPerChunk
}

// Split picks a strategy and produces the chunk list. Structured transactions
// win over page markers, page markers over plain size windows.
func (c *Chunker) Split(rawText string, structured map[string]any) ([]Chunk, error) {
	if txs, ok := structuredTransactions(structured); ok && len(txs) > 0 {
		return c.splitTransactions(txs), nil
	}
	if pageMarkerPattern.MatchString(rawText) {
		return c.splitPages(rawText), nil
	}
	return c.splitSize(rawText)
}

func structuredTransactions(structured map[string]any) ([]map[string]any, bool) {
	if structured == nil {
		return nil, false
	}
	switch v := structured["transactions"].(type) {
	case []map[string]any:
		return v, true
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, len(out) > 0
	}
	return nil, false
}

func (c *Chunker) splitTransactions(txs []map[string]any) []Chunk {
	var chunks []Chunk
	for start := 0; start < len(txs); start += c.MaxTransactionsPerChunk {
		end := start + c.MaxTransactionsPerChunk
		if end > len(txs) {
			end = len(txs)
		}
		chunks = append(chunks, Chunk{
			ID:           fmt.Sprintf("txn_%d", len(chunks)),
			Type:         StrategyTransactions,
			Transactions: txs[start:end],
			StartIndex:   start,
			EndIndex:     end,
		})
	}
	return chunks
}

func (c *Chunker) splitPages(rawText string) []Chunk {
	markers := pageMarkerPattern.FindAllStringIndex(rawText, -1)
	var chunks []Chunk
	add := func(text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("page_%d", len(chunks)),
			Type:      StrategyPages,
			Text:      text,
			CharCount: len(text),
		})
	}

	// Preamble before the first marker becomes chunk 0.
	add(rawText[:markers[0][0]])
	for i, m := range markers {
		end := len(rawText)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		add(rawText[m[0]:end])
	}
	return chunks
}

func (c *Chunker) splitSize(rawText string) ([]Chunk, error) {
	var chunks []Chunk
	start := 0
	for start < len(rawText) {
		if len(chunks) >= maxChunks {
			return nil, fmt.Errorf("chunking aborted: exceeded %d chunks", maxChunks)
		}
		end := start + c.MaxChunkSize
		if end >= len(rawText) {
			end = len(rawText)
		} else {
			end = adjustBoundary(rawText, start, end)
		}

		text := rawText[start:end]
		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("size_%d", len(chunks)),
			Type:      StrategySize,
			Text:      text,
			CharCount: len(text),
		})

		if end == len(rawText) {
			break
		}
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// adjustBoundary looks back up to boundaryLookback chars from a cut point for
// a newline or sentence end so chunks do not split mid-line.
func adjustBoundary(text string, start, end int) int {
	floor := end - boundaryLookback
	if floor < start+1 {
		floor = start + 1
	}
	window := text[floor:end]
	if i := strings.LastIndex(window, "\n"); i >= 0 {
		return floor + i + 1
	}
	if i := strings.LastIndex(window, ". "); i >= 0 {
		return floor + i + 2
	}
	return end
}

// EstimateProcessingTime is an observability-only guess at how long the
// chunk set will take downstream.
func EstimateProcessingTime(chunks []Chunk) time.Duration {
	var total time.Duration
	for _, ch := range chunks {
		switch ch.Type {
		case StrategyPages:
			total += 2 * time.Second
		case StrategyTransactions:
			total += time.Duration(len(ch.Transactions)) * 500 * time.Millisecond
		default:
			total += 3 * time.Second
		}
	}
	return total
}
