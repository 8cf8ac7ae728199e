package chunk

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldChunk(t *testing.T) {
	c := New(4000, 200, 30)

	assert.False(t, c.ShouldChunk(strings.Repeat("a", 8000), 0))
	assert.True(t, c.ShouldChunk(strings.Repeat("a", 8001), 0))
	assert.False(t, c.ShouldChunk("short", 30))
	assert.True(t, c.ShouldChunk("short", 31))
}

func TestSplitTransactions(t *testing.T) {
	c := New(4000, 200, 30)
	txs := make([]map[string]any, 65)
	for i := range txs {
		txs[i] = map[string]any{"amount": fmt.Sprintf("%d.00", i)}
	}

	chunks, err := c.Split("irrelevant", map[string]any{"transactions": txs})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, StrategyTransactions, chunks[0].Type)
	assert.Len(t, chunks[0].Transactions, 30)
	assert.Equal(t, 0, chunks[0].StartIndex)
	assert.Equal(t, 30, chunks[0].EndIndex)
	assert.Len(t, chunks[1].Transactions, 30)
	assert.Len(t, chunks[2].Transactions, 5)
	assert.Equal(t, 60, chunks[2].StartIndex)
	assert.Equal(t, 65, chunks[2].EndIndex)
}

func TestSplitPages(t *testing.T) {
	text := "Account summary preamble\n" +
		"--- Page 1 ---\nfirst page body\n" +
		"--- Page 2 ---\nsecond page body\n"

	c := New(4000, 200, 30)
	chunks, err := c.Split(text, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, StrategyPages, chunks[0].Type)
	assert.Contains(t, chunks[0].Text, "preamble")
	assert.Contains(t, chunks[1].Text, "--- Page 1 ---")
	assert.Contains(t, chunks[1].Text, "first page body")
	assert.Contains(t, chunks[2].Text, "second page body")
}

func TestSplitPagesNoPreamble(t *testing.T) {
	text := "--- Page 1 ---\nbody\n"
	c := New(4000, 200, 30)
	chunks, err := c.Split(text, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestSplitSizeBreaksAtNewlines(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "transaction line %03d with some detail text\n", i)
	}
	text := sb.String()

	c := New(1000, 100, 30)
	chunks, err := c.Split(text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, StrategySize, ch.Type)
		assert.LessOrEqual(t, ch.CharCount, 1000)
		if i < len(chunks)-1 {
			assert.True(t, strings.HasSuffix(ch.Text, "\n"), "chunk %d should end at a line break", i)
		}
	}
}

// Concatenating chunk payloads must preserve all original content, modulo
// the deliberate overlap duplication.
func TestSizeChunksCoverOriginal(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&sb, "line %d of the original document body\n", i)
	}
	text := sb.String()

	c := New(1500, 200, 30)
	chunks, err := c.Split(text, nil)
	require.NoError(t, err)

	// Every original line must appear in some chunk.
	joined := ""
	for _, ch := range chunks {
		joined += ch.Text
	}
	for i := 0; i < 500; i++ {
		assert.Contains(t, joined, fmt.Sprintf("line %d of", i))
	}
}

func TestSplitSizeOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 300) // 3000 chars, no break points
	c := New(1000, 200, 30)
	chunks, err := c.Split(text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	// With no newline or sentence boundary, cuts are hard and consecutive
	// chunks share the overlap window.
	assert.Equal(t, chunks[0].Text[len(chunks[0].Text)-200:], chunks[1].Text[:200])
}

func TestSplitSizeChunkCap(t *testing.T) {
	c := New(1, 0, 30)
	_, err := c.Split(strings.Repeat("x", 5000), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunking aborted")
}

func TestEstimateProcessingTime(t *testing.T) {
	chunks := []Chunk{
		{Type: StrategyPages},
		{Type: StrategyPages},
		{Type: StrategyTransactions, Transactions: make([]map[string]any, 10)},
		{Type: StrategySize},
	}
	assert.Equal(t, 4*time.Second+5*time.Second+3*time.Second, EstimateProcessingTime(chunks))
}
