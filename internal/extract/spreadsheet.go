package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Column vocabularies for header detection, matched by case-insensitive
// substring.
var columnVocabulary = map[string][]string{
	"date":        {"date", "transaction_date", "trans_date", "datetime", "timestamp"},
	"amount":      {"amount", "total", "price", "cost", "value", "sum", "debit", "credit"},
	"vendor":      {"vendor", "merchant", "supplier", "company", "store", "payee"},
	"description": {"description", "memo", "note", "details", "comment"},
	"category":    {"category", "type", "class", "classification"},
}

// minMultiTransactionRows is the number of rows carrying both a date and an
// amount that flips a sheet to multi-transaction.
const minMultiTransactionRows = 3

// csvDecoders is the encoding fallback order for CSV files after UTF-8:
// latin-1/iso-8859-1 (one charset in Go) then cp1252.
var csvDecoders = []struct {
	name    string
	decoder *encoding.Decoder
}{
	{"iso-8859-1", charmap.ISO8859_1.NewDecoder()},
	{"windows-1252", charmap.Windows1252.NewDecoder()},
}

// SpreadsheetExtractor reads Excel workbooks and delimited files into rows,
// detects transaction-shaped columns and, for multi-transaction sheets,
// performs row-level extraction.
type SpreadsheetExtractor struct{}

func NewSpreadsheetExtractor() *SpreadsheetExtractor { return &SpreadsheetExtractor{} }

func (e *SpreadsheetExtractor) Name() string         { return "spreadsheet" }
func (e *SpreadsheetExtractor) Extensions() []string { return []string{"xlsx", "xls", "csv"} }
func (e *SpreadsheetExtractor) CanHandle(path string) bool {
	switch normalizeExt(path) {
	case "xlsx", "xls", "csv":
		return true
	}
	return false
}

func (e *SpreadsheetExtractor) Extract(ctx context.Context, path string) (*RawExtraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		rows [][]string
		err  error
	)
	if normalizeExt(path) == "csv" {
		rows, err = readCSV(path)
	} else {
		rows, err = readExcel(path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, newError(ErrEmptyFile, "%s has no rows", filepath.Base(path))
	}

	headers, dataRows := splitHeader(rows)
	detected := detectColumns(headers)

	columnTypes := make(map[string]string, len(headers))
	for i, h := range headers {
		columnTypes[h] = inferColumnType(dataRows, i)
	}

	records := make([]map[string]string, 0, len(dataRows))
	for _, row := range dataRows {
		if rowEmpty(row) {
			continue
		}
		rec := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				rec[h] = strings.TrimSpace(row[i])
			}
		}
		records = append(records, rec)
	}

	multiRows := countTransactionRows(dataRows, headers, detected)
	isMulti := multiRows >= minMultiTransactionRows

	structured := map[string]any{
		"columns":                      headers,
		"column_types":                 columnTypes,
		"records":                      records,
		"detected_transaction_columns": detected,
		"is_likely_expense_sheet":      len(detected["date"]) > 0 && len(detected["amount"]) > 0,
		"is_multi_transaction":         isMulti,
		"row_count":                    len(records),
	}
	if isMulti {
		structured["transactions"] = extractRows(dataRows, headers, detected)
	}

	return &RawExtraction{
		RawText: renderRows(headers, dataRows),
		Structured: structured,
		Metadata: map[string]any{
			"extractor": "spreadsheet",
			"row_count": len(records),
		},
	}, nil
}

func readExcel(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(ErrInvalidFile, err, "read %s", filepath.Base(path))
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, wrapError(ErrParseFailure, err, "open workbook %s", filepath.Base(path))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, newError(ErrEmptyFile, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, wrapError(ErrParseFailure, err, "read sheet %q", sheets[0])
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(ErrInvalidFile, err, "read %s", filepath.Base(path))
	}
	text, err := decodeCSVBytes(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, wrapError(ErrParseFailure, err, "parse CSV %s", filepath.Base(path))
	}
	return rows, nil
}

func decodeCSVBytes(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}) // UTF-8 BOM
	if utf8.Valid(data) {
		return string(data), nil
	}
	for _, cd := range csvDecoders {
		decoded, err := cd.decoder.Bytes(data)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded), nil
		}
	}
	return "", newError(ErrParseFailure, "undecodable CSV encoding")
}

// splitHeader decides whether the first row is a header. A header row scores
// at least 2 on the column vocabulary and is followed by at least 5 data
// rows; otherwise synthetic column names are used and every row is data.
// Short sheets keep a header-looking first row as data; it carries no
// parseable amount, so row extraction skips it anyway.
func splitHeader(rows [][]string) ([]string, [][]string) {
	if len(rows) == 0 {
		return nil, nil
	}
	if headerScore(rows[0]) >= 2 && len(rows)-1 >= 5 {
		headers := make([]string, len(rows[0]))
		for i, h := range rows[0] {
			headers[i] = strings.TrimSpace(h)
		}
		return headers, rows[1:]
	}

	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	headers := make([]string, width)
	for i := range headers {
		headers[i] = fmt.Sprintf("col_%d", i+1)
	}
	return headers, rows
}

func headerScore(row []string) int {
	score := 0
	for _, cell := range row {
		lower := strings.ToLower(strings.TrimSpace(cell))
		for _, words := range columnVocabulary {
			matched := false
			for _, w := range words {
				if strings.Contains(lower, w) {
					matched = true
					break
				}
			}
			if matched {
				score++
				break
			}
		}
	}
	return score
}

// detectColumns maps each semantic column kind to the matching header names.
func detectColumns(headers []string) map[string][]string {
	detected := make(map[string][]string)
	for kind, words := range columnVocabulary {
		for _, h := range headers {
			lower := strings.ToLower(h)
			for _, w := range words {
				if strings.Contains(lower, w) {
					detected[kind] = append(detected[kind], h)
					break
				}
			}
		}
	}
	return detected
}

func inferColumnType(rows [][]string, col int) string {
	dates, amounts, filled := 0, 0, 0
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		filled++
		if !ParseFlexibleDate(v).IsZero() {
			dates++
		} else if _, ok := CleanAmount(v); ok {
			amounts++
		}
	}
	if filled == 0 {
		return "empty"
	}
	switch {
	case dates*2 > filled:
		return "date"
	case amounts*2 > filled:
		return "number"
	default:
		return "string"
	}
}

func columnIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// countTransactionRows counts data rows carrying both a parsable date and a
// parsable amount in their detected columns.
func countTransactionRows(rows [][]string, headers []string, detected map[string][]string) int {
	dateIdx, amountIdx := firstDetected(headers, detected, "date"), firstDetected(headers, detected, "amount")
	count := 0
	for _, row := range rows {
		date, amount := "", ""
		if dateIdx >= 0 {
			date = cellAt(row, dateIdx)
		}
		if amountIdx >= 0 {
			amount = cellAt(row, amountIdx)
		}
		if date == "" || amount == "" {
			// Fall back to shape scanning for sheets without headers.
			for _, cell := range row {
				if date == "" && !ParseFlexibleDate(strings.TrimSpace(cell)).IsZero() {
					date = cell
					continue
				}
				if amount == "" {
					if _, ok := CleanAmount(cell); ok {
						amount = cell
					}
				}
			}
		}
		if date != "" && amount != "" {
			if _, ok := CleanAmount(amount); ok && !ParseFlexibleDate(date).IsZero() {
				count++
			}
		}
	}
	return count
}

func firstDetected(headers []string, detected map[string][]string, kind string) int {
	if names := detected[kind]; len(names) > 0 {
		return columnIndex(headers, names[0])
	}
	return -1
}

// extractRows performs the row-level extraction path for multi-transaction
// sheets: amounts cleaned, dates coerced to ISO, empty rows dropped.
func extractRows(rows [][]string, headers []string, detected map[string][]string) []map[string]any {
	dateIdx := firstDetected(headers, detected, "date")
	amountIdx := firstDetected(headers, detected, "amount")
	vendorIdx := firstDetected(headers, detected, "vendor")
	descIdx := firstDetected(headers, detected, "description")
	categoryIdx := firstDetected(headers, detected, "category")

	var out []map[string]any
	for _, row := range rows {
		if rowEmpty(row) {
			continue
		}
		amount, ok := CleanAmount(cellAt(row, amountIdx))
		if !ok {
			continue
		}
		date := ToISODate(cellAt(row, dateIdx))
		if date == "" {
			continue
		}
		tx := map[string]any{
			"date":   date,
			"amount": amount.StringFixed(2),
		}
		if v := cellAt(row, vendorIdx); v != "" {
			tx["vendor"] = v
		}
		if d := cellAt(row, descIdx); d != "" {
			tx["description"] = d
		}
		if c := cellAt(row, categoryIdx); c != "" {
			tx["category"] = c
		}
		out = append(out, tx)
	}
	return out
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// renderRows produces the textual rendering used as raw_text: a padded,
// pipe-separated table.
func renderRows(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := range widths {
			if c := cellAt(row, i); len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range widths {
			if i > 0 {
				sb.WriteString(" | ")
			}
			fmt.Fprintf(&sb, "%-*s", widths[i], cellAt(cells, i))
		}
		sb.WriteByte('\n')
	}
	writeRow(headers)
	for _, row := range rows {
		if !rowEmpty(row) {
			writeRow(row)
		}
	}
	return sb.String()
}
