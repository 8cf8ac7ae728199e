package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanResponseStripsFences(t *testing.T) {
	raw := "```json\n{\"vendor\": \"Acme\"}\n```"
	assert.Equal(t, `{"vendor": "Acme"}`, CleanResponse(raw))

	raw = "```\n{\"vendor\": \"Acme\"}\n```"
	assert.Equal(t, `{"vendor": "Acme"}`, CleanResponse(raw))
}

func TestCleanResponseTrailingCommas(t *testing.T) {
	raw := `{"vendor": "Acme", "amount": 12.50,}`
	assert.Equal(t, `{"vendor": "Acme", "amount": 12.50}`, CleanResponse(raw))

	raw = `{"items": [1, 2, 3,],}`
	assert.Equal(t, `{"items": [1, 2, 3]}`, CleanResponse(raw))
}

func TestCleanResponseMissingCommas(t *testing.T) {
	raw := "{\"a\": 1}\n{\"b\": 2}"
	assert.Equal(t, `{"a": 1},{"b": 2}`, CleanResponse(raw))
}

func TestParseJSONStrict(t *testing.T) {
	var out map[string]any
	require.NoError(t, ParseJSON(`{"vendor": "Acme", "amount": 12.5}`, &out))
	assert.Equal(t, "Acme", out["vendor"])
	assert.Equal(t, 12.5, out["amount"])
}

func TestParseJSONSurroundingProse(t *testing.T) {
	raw := `Sure! Here is the extraction: {"vendor": "Acme Corp", "amount": 99.00} Let me know if you need more.`

	var out map[string]any
	require.NoError(t, ParseJSON(raw, &out))
	assert.Equal(t, "Acme Corp", out["vendor"])
}

func TestParseJSONRepairsMalformed(t *testing.T) {
	// Single quotes and an unquoted key, the kind of almost-JSON models emit.
	raw := `{'vendor': 'Acme', amount: 12.5}`

	var out map[string]any
	require.NoError(t, ParseJSON(raw, &out))
	assert.Equal(t, "Acme", out["vendor"])
}

func TestParseJSONTruncatedCompletion(t *testing.T) {
	// Token limit hit mid-record. The leading complete records must survive.
	raw := `{"extraction_type": "multi_transaction", "transactions": [` +
		`{"vendor": "Alpha", "amount": 10.00}, {"vendor": "Beta", "amo`

	var out struct {
		Transactions []map[string]any `json:"transactions"`
	}
	require.NoError(t, ParseJSON(raw, &out))
	require.NotEmpty(t, out.Transactions)
	assert.Equal(t, "Alpha", out.Transactions[0]["vendor"])
}

func TestParseJSONFailure(t *testing.T) {
	var out map[string]any
	err := ParseJSON("the document was illegible, sorry", &out)
	require.Error(t, err)

	llmErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrParseFailure, llmErr.Code)
}

func TestLargestBalancedObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `before {"a": 1} after`, `{"a": 1}`},
		{"picks longest", `{"a": 1} and {"b": {"c": 2}}`, `{"b": {"c": 2}}`},
		{"braces inside strings", `{"note": "unmatched { brace"}`, `{"note": "unmatched { brace"}`},
		{"escaped quote", `{"note": "say \"hi\" {"}`, `{"note": "say \"hi\" {"}`},
		{"unclosed outer yields nothing", `{"a": {"b": 1}`, ``},
		{"stray closers skipped", `}} {"a": 1}`, `{"a": 1}`},
		{"none", "no objects here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, largestBalancedObject(tt.in))
		})
	}
}
