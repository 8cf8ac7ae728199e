package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// cellGap is the horizontal distance (pt) between glyphs that starts a new
// table cell when reading positioned text.
const cellGap = 18.0

// PDFExtractor extracts text and tables from PDF documents. It first tries a
// table-aware, row-positioned pass; when that yields no text it falls back to
// a plain page-by-page text pass.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

func (e *PDFExtractor) Name() string          { return "pdf" }
func (e *PDFExtractor) Extensions() []string  { return []string{"pdf"} }
func (e *PDFExtractor) CanHandle(path string) bool {
	return normalizeExt(path) == "pdf"
}

// Extract never panics: the pdf library can blow up on malformed input, so
// the whole pass runs under recover, as the failure is terminal anyway.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (result *RawExtraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = newError(ErrParseFailure, "panic during PDF extraction: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, wrapError(ErrParseFailure, err, "open PDF %s", filepath.Base(path))
	}
	defer f.Close()

	pageCount := reader.NumPage()
	if pageCount < 1 {
		return nil, newError(ErrParseFailure, "PDF has no pages")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, tables := extractPositioned(reader, pageCount)
	if strings.TrimSpace(stripPageMarkers(text)) == "" {
		text = extractPlain(reader, pageCount)
		tables = nil
	}
	if strings.TrimSpace(stripPageMarkers(text)) == "" {
		return nil, newError(ErrParseFailure, "no extractable text in PDF (likely scanned)")
	}

	info, _ := os.Stat(path)
	var size int64
	if info != nil {
		size = info.Size()
	}
	result = &RawExtraction{
		RawText: text,
		Tables:  tables,
		Metadata: map[string]any{
			"page_count": pageCount,
			"file_size":  size,
			"extractor":  "pdf",
		},
	}
	if len(tables) > 0 {
		result.Structured = map[string]any{"table_count": len(tables)}
	}
	return result, nil
}

// extractPositioned reads row-positioned text, detecting tables from runs of
// multi-cell rows. Detected table rows are inlined with " | " separators so
// downstream regex scoring sees them too.
func extractPositioned(reader *pdf.Reader, pageCount int) (string, []Table) {
	var (
		sb     strings.Builder
		tables []Table
	)
	for n := 1; n <= pageCount; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}

		fmt.Fprintf(&sb, "--- Page %d ---\n", n)

		var cellRows [][]string
		flush := func() {
			if len(cellRows) >= 2 {
				t := Table{
					Page:    n,
					Index:   len(tables),
					Headers: cellRows[0],
					Rows:    cellRows[1:],
				}
				tables = append(tables, t)
			}
			cellRows = nil
		}

		for _, row := range rows {
			cells := rowCells(row)
			line := strings.Join(cells, " | ")
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
			if len(cells) >= 3 {
				cellRows = append(cellRows, cells)
			} else {
				flush()
			}
		}
		flush()
	}
	return sb.String(), tables
}

// rowCells clusters a positioned row's glyphs into cells on horizontal gaps.
func rowCells(row *pdf.Row) []string {
	var (
		cells []string
		cell  strings.Builder
		lastX float64
		first = true
	)
	for _, t := range row.Content {
		if !first && t.X-lastX > cellGap {
			if s := strings.TrimSpace(cell.String()); s != "" {
				cells = append(cells, s)
			}
			cell.Reset()
		}
		cell.WriteString(t.S)
		lastX = t.X + t.W
		first = false
	}
	if s := strings.TrimSpace(cell.String()); s != "" {
		cells = append(cells, s)
	}
	return cells
}

// extractPlain is the fallback text-only pass.
func extractPlain(reader *pdf.Reader, pageCount int) string {
	var sb strings.Builder
	for n := 1; n <= pageCount; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n", n)
		sb.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func stripPageMarkers(text string) string {
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "--- Page ") {
			continue
		}
		sb.WriteString(line)
	}
	return sb.String()
}
