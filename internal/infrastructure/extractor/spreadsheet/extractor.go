package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

// Extractor renders each worksheet as one page of tab separated rows.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(ext, mimeType string) bool {
	switch ext {
	case ".xlsx", ".xlsm", ".xltx":
		return true
	}
	return mimeType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *Extractor) Pages(ctx context.Context, raw []byte) ([]domain.Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	pages := make([]domain.Page, 0, len(sheets))
	for i, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}

		var b strings.Builder
		if len(rows) > 0 {
			b.WriteString(sheet)
			b.WriteByte('\n')
		}
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		pages = append(pages, domain.Page{Number: i + 1, Text: b.String()})
	}
	return pages, nil
}
