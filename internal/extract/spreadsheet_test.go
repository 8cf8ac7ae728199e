package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestSpreadsheetExtractCSV(t *testing.T) {
	csvData := "Date,Description,Amount,Balance\n" +
		"2025-01-02,Coffee Shop,-50.00,950.00\n" +
		"2025-01-03,Grocery Store,-85.67,864.33\n" +
		"2025-01-04,Client Payment,500.00,1364.33\n" +
		"2025-01-05,Parking,-4.50,1359.83\n" +
		"2025-01-06,Office Supplies,-45.80,1314.03\n"
	path := writeTempFile(t, "statement.csv", []byte(csvData))

	ex := NewSpreadsheetExtractor()
	result, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Description", "Amount", "Balance"}, result.Structured["columns"])

	detected := result.Structured["detected_transaction_columns"].(map[string][]string)
	assert.Contains(t, detected["date"], "Date")
	assert.Contains(t, detected["amount"], "Amount")
	assert.Contains(t, detected["description"], "Description")

	assert.Equal(t, true, result.Structured["is_likely_expense_sheet"])
	assert.Equal(t, true, result.Structured["is_multi_transaction"])
	assert.Equal(t, 5, result.Structured["row_count"])

	txs := result.Structured["transactions"].([]map[string]any)
	require.Len(t, txs, 5)
	assert.Equal(t, "2025-01-02", txs[0]["date"])
	assert.Equal(t, "-50.00", txs[0]["amount"])
	assert.Equal(t, "Coffee Shop", txs[0]["description"])
	assert.Equal(t, "500.00", txs[2]["amount"])

	assert.Contains(t, result.RawText, "Coffee Shop")
	assert.Contains(t, result.RawText, "Date")
}

func TestSpreadsheetNotMultiWhenFewTransactionRows(t *testing.T) {
	csvData := "Date,Description,Amount\n" +
		"2025-01-02,Coffee,-4.50\n" +
		"2025-01-03,Lunch,-12.00\n"
	path := writeTempFile(t, "two.csv", []byte(csvData))

	ex := NewSpreadsheetExtractor()
	result, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, false, result.Structured["is_multi_transaction"])
	_, hasTxs := result.Structured["transactions"]
	assert.False(t, hasTxs)
}

func TestSpreadsheetSyntheticHeaders(t *testing.T) {
	// No vocabulary hits in the first row, so every row is data and columns
	// get synthetic names.
	csvData := "alpha,beta,gamma\n" +
		"one,two,three\n"
	path := writeTempFile(t, "plain.csv", []byte(csvData))

	ex := NewSpreadsheetExtractor()
	result, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)

	cols := result.Structured["columns"].([]string)
	assert.Equal(t, []string{"col_1", "col_2", "col_3"}, cols)
	assert.Equal(t, 2, result.Structured["row_count"])
}

func TestSpreadsheetLatin1Fallback(t *testing.T) {
	// "Café" with a raw 0xE9 byte is invalid UTF-8 and must decode through
	// the latin-1 fallback.
	raw := append([]byte("Date,Description,Amount\n2025-01-02,Caf"), 0xE9)
	raw = append(raw, []byte(",-4.50\n")...)
	path := writeTempFile(t, "latin1.csv", raw)

	ex := NewSpreadsheetExtractor()
	result, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, result.RawText, "Café")
}

func TestSpreadsheetEmptyRowsDropped(t *testing.T) {
	csvData := "Date,Description,Amount\n" +
		"2025-01-02,Coffee,-4.50\n" +
		",,\n" +
		"2025-01-03,Lunch,-12.00\n" +
		"2025-01-04,Parking,-4.00\n" +
		"2025-01-05,Taxi,-18.20\n" +
		"2025-01-06,Stationery,-9.99\n"
	path := writeTempFile(t, "gaps.csv", []byte(csvData))

	ex := NewSpreadsheetExtractor()
	result, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Structured["row_count"])
}

func TestSpreadsheetEmptyFile(t *testing.T) {
	path := writeTempFile(t, "empty.csv", []byte(""))
	ex := NewSpreadsheetExtractor()
	_, err := ex.Extract(context.Background(), path)
	require.Error(t, err)
}

func TestDetectColumns(t *testing.T) {
	detected := detectColumns([]string{"Transaction_Date", "Merchant", "Total", "Memo", "Type"})
	assert.Equal(t, []string{"Transaction_Date"}, detected["date"])
	assert.Equal(t, []string{"Merchant"}, detected["vendor"])
	assert.Equal(t, []string{"Total"}, detected["amount"])
	assert.Equal(t, []string{"Memo"}, detected["description"])
	assert.Equal(t, []string{"Type"}, detected["category"])
}

func TestHeaderScore(t *testing.T) {
	assert.GreaterOrEqual(t, headerScore([]string{"Date", "Description", "Amount", "Balance"}), 2)
	assert.Equal(t, 0, headerScore([]string{"alpha", "beta", "gamma"}))
}

func TestSplitHeaderRequiresFiveDataRows(t *testing.T) {
	// A header-looking first row on a short sheet stays as data.
	short := [][]string{
		{"Date", "Amount"},
		{"2025-01-02", "-4.50"},
	}
	headers, data := splitHeader(short)
	assert.Equal(t, []string{"col_1", "col_2"}, headers)
	assert.Len(t, data, 2)

	long := [][]string{
		{"Date", "Amount"},
		{"2025-01-02", "-4.50"},
		{"2025-01-03", "-12.00"},
		{"2025-01-04", "-4.00"},
		{"2025-01-05", "-18.20"},
		{"2025-01-06", "-9.99"},
	}
	headers, data = splitHeader(long)
	assert.Equal(t, []string{"Date", "Amount"}, headers)
	assert.Len(t, data, 5)
}
