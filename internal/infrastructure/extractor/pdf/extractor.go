package pdf

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(ext, mimeType string) bool {
	return ext == ".pdf" || mimeType == "application/pdf"
}

// Pages returns one page per PDF page with a bounding box per text row.
// Pages without a content stream come back empty so numbering stays aligned.
func (e *Extractor) Pages(ctx context.Context, raw []byte) ([]domain.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	pages := make([]domain.Page, 0, total)
	for num := 1; num <= total; num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(num)
		if page.V.IsNull() {
			pages = append(pages, domain.Page{Number: num})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", num, err)
		}
		pages = append(pages, domain.Page{
			Number: num,
			Text:   text,
			Boxes:  rowBoxes(page),
		})
	}
	return pages, nil
}

func rowBoxes(page pdf.Page) []domain.BoundingBox {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil
	}
	boxes := make([]domain.BoundingBox, 0, len(rows))
	for _, row := range rows {
		if len(row.Content) == 0 {
			continue
		}
		box := domain.BoundingBox{X0: math.MaxFloat64, Y0: math.MaxFloat64}
		for _, t := range row.Content {
			box.X0 = math.Min(box.X0, t.X)
			box.Y0 = math.Min(box.Y0, t.Y)
			box.X1 = math.Max(box.X1, t.X+t.W)
			box.Y1 = math.Max(box.Y1, t.Y+t.FontSize)
		}
		boxes = append(boxes, box)
	}
	return boxes
}
