// Package ingestion runs the PDF-to-graph pipeline: structure detection,
// quality assessment, chunking, embedding, and persistence to the graph
// and relational stores.
package ingestion

import (
	"path/filepath"
	"strings"
)

// DocumentFormat enumerates supported document payload formats. PDF is the
// only ingestible format; spec.md §1 scopes this system to educational
// PDFs.
type DocumentFormat string

const (
	FormatUnknown DocumentFormat = ""
	FormatPDF      DocumentFormat = "pdf"
)

// DetectFormat infers a document format from the provided path's extension.
func DetectFormat(path string) DocumentFormat {
	if strings.ToLower(filepath.Ext(path)) == ".pdf" {
		return FormatPDF
	}
	return FormatUnknown
}
