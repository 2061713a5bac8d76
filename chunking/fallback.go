package chunking

import (
	"fmt"
	"strings"

	"github.com/learntrac/backend/config"
)

// FallbackChunker is a plain sliding-window chunker used when a document's
// detected structure is too poor for ContentAwareChunker to produce
// meaningful section-respecting chunks. It still prefers to break on
// paragraph or sentence boundaries near the target size, but does not
// attempt to respect chapter/section hierarchy or protected content.
type FallbackChunker struct {
	cfg config.ChunkingConfig
}

func NewFallbackChunker(cfg config.ChunkingConfig) *FallbackChunker {
	return &FallbackChunker{cfg: cfg}
}

// Chunk splits text into a sliding window of overlapping chunks.
func (f *FallbackChunker) Chunk(text, bookID string, metadataBase map[string]string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{}
	}

	var chunks []Chunk
	pos := 0
	for pos < len(text) {
		end := minInt(pos+f.cfg.Target, len(text))
		if end < len(text) {
			end = nearestBoundary(text, pos, end)
		}

		chunkText := strings.TrimSpace(text[pos:end])
		if len(chunkText) >= f.cfg.MinSize || end >= len(text) {
			if chunkText != "" {
				meta := Metadata{
					BookID:           bookID,
					ChunkID:          fmt.Sprintf("%s_chunk_%d", bookID, pos),
					Title:            metadataBase["title"],
					Subject:          metadataBase["subject"],
					ContentType:      ContentText,
					StartPosition:    pos,
					EndPosition:      end,
					ConfidenceScore:  0.5,
					StructureQuality: 0.3,
					ContentCoherence: 0.5,
					CharCount:        len(chunkText),
					WordCount:        len(strings.Fields(chunkText)),
					SentenceCount:    len(sentenceTerminatorRE.FindAllString(chunkText, -1)),
					ChunkingStrategy: "fallback",
					CustomMetadata:   map[string]string{},
				}
				chunks = append(chunks, Chunk{Text: chunkText, Metadata: meta})
			}
		} else if len(chunks) > 0 {
			last := &chunks[len(chunks)-1]
			last.Text = last.Text + " " + chunkText
			last.Metadata.EndPosition = end
			last.Metadata.CharCount = len(last.Text)
		}

		if end <= pos {
			break
		}
		next := end - f.cfg.Overlap
		if next <= pos {
			next = end
		}
		pos = next
	}

	return Result{
		Chunks:     chunks,
		Statistics: calculateStatistics(chunks, "fallback"),
	}
}

func nearestBoundary(text string, start, target int) int {
	searchStart := maxInt(start, target-200)
	searchEnd := minInt(len(text), target+200)
	window := text[searchStart:searchEnd]

	if loc := paragraphBreakInnerRE.FindAllStringIndex(window, -1); len(loc) > 0 {
		return searchStart + nearestTo(loc, target-searchStart, true)
	}
	if loc := sentenceBoundaryInnerRE.FindAllStringIndex(window, -1); len(loc) > 0 {
		return searchStart + nearestTo(loc, target-searchStart, true)
	}
	return target
}

func nearestTo(locations [][]int, target int, useEnd bool) int {
	best := locations[0]
	bestDist := absInt(pick(best, useEnd) - target)
	for _, loc := range locations[1:] {
		d := absInt(pick(loc, useEnd) - target)
		if d < bestDist {
			best, bestDist = loc, d
		}
	}
	return pick(best, useEnd)
}

func pick(loc []int, useEnd bool) int {
	if useEnd {
		return loc[1]
	}
	return loc[0]
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
