package ingestion

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractedPDF is one PDF's plain text plus the byte offset each page's
// text starts at within that concatenation, used to anchor StructureElement
// positions back to a page number.
type extractedPDF struct {
	Text        string
	PageOffsets []int
}

// extractPDFText reads every page of the PDF at path via its native text
// layer (no OCR, per spec.md §1's non-goals) and concatenates them in page
// order, normalizing line endings.
func extractPDFText(path string) (extractedPDF, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return extractedPDF{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	offsets := make([]int, 0, reader.NumPage())

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			offsets = append(offsets, buf.Len())
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			offsets = append(offsets, buf.Len())
			continue
		}

		offsets = append(offsets, buf.Len())
		buf.WriteString(normalizePDFText(text))
		buf.WriteString("\n")
	}

	return extractedPDF{Text: buf.String(), PageOffsets: offsets}, nil
}

func normalizePDFText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// pageForOffset returns the 1-indexed page number containing byte offset
// pos, used to populate Chapter.Pages from a chapter element's position.
func pageForOffset(offsets []int, pos int) int {
	page := 1
	for i, start := range offsets {
		if start > pos {
			break
		}
		page = i + 1
	}
	return page
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
