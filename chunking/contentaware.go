package chunking

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/learntrac/backend/config"
	"github.com/learntrac/backend/protected"
	"github.com/learntrac/backend/structuredetect"
)

// ContentAwareChunker splits text along detected structure boundaries while
// keeping protected regions (math, definitions, examples) intact.
type ContentAwareChunker struct {
	cfg config.ChunkingConfig
}

func NewContentAwareChunker(cfg config.ChunkingConfig) *ContentAwareChunker {
	return &ContentAwareChunker{cfg: cfg}
}

type sectionInfo struct {
	title   string
	start   int
	end     int
	level   int
	chapter string
	section string
}

// Chunk splits text into chunks, using elements to respect chapter/section
// boundaries and the protected package to keep math/definitions/examples
// whole. bookID seeds chunk IDs; metadataBase is copied into every chunk's
// custom metadata (e.g. a source document title).
func (c *ContentAwareChunker) Chunk(text string, elements []structuredetect.Element, bookID string, metadataBase map[string]string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}

	protectedRegions := c.findProtectedRegions(text)
	sections := organizeByStructure(elements, text)

	var chunks []Chunk
	var warnings []string

	for _, sec := range sections {
		sectionChunks, sectionWarnings := c.chunkSection(text, sec, protectedRegions, bookID, metadataBase)
		chunks = append(chunks, sectionChunks...)
		warnings = append(warnings, sectionWarnings...)
	}

	return Result{
		Chunks:     chunks,
		Statistics: calculateStatistics(chunks, "content_aware"),
		Warnings:   warnings,
	}
}

func (c *ContentAwareChunker) findProtectedRegions(text string) []protected.Region {
	var regions []protected.Region
	if c.cfg.PreserveMath {
		regions = append(regions, protected.DetectMath(text)...)
	}
	if c.cfg.PreserveDefinition {
		regions = append(regions, protected.DetectDefinitions(text)...)
	}
	if c.cfg.PreserveExample {
		regions = append(regions, protected.DetectExamples(text)...)
	}
	return protected.Merge(regions)
}

func organizeByStructure(elements []structuredetect.Element, text string) []sectionInfo {
	if len(elements) == 0 {
		return []sectionInfo{{title: "Content", start: 0, end: len(text), level: 0}}
	}

	sorted := append([]structuredetect.Element(nil), elements...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartPosition < sorted[j].StartPosition })

	sections := make([]sectionInfo, 0, len(sorted))
	for i, el := range sorted {
		end := len(text)
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Level <= el.Level {
				end = sorted[j].StartPosition
				break
			}
		}

		chapter, section := determineContext(el, sorted[:i])
		sections = append(sections, sectionInfo{
			title:   el.Title,
			start:   el.StartPosition,
			end:     end,
			level:   el.Level,
			chapter: chapter,
			section: section,
		})
	}
	return sections
}

func determineContext(el structuredetect.Element, previous []structuredetect.Element) (chapter, section string) {
	for i := len(previous) - 1; i >= 0; i-- {
		prev := previous[i]
		if prev.Type == structuredetect.TypeChapter && chapter == "" {
			chapter = coalesce(prev.Number, prev.Title)
		} else if prev.Type == structuredetect.TypeSection && section == "" && prev.Level < el.Level {
			section = coalesce(prev.Number, prev.Title)
		}
	}

	switch el.Type {
	case structuredetect.TypeChapter:
		chapter = coalesce(el.Number, el.Title)
	case structuredetect.TypeSection:
		section = coalesce(el.Number, el.Title)
	}

	return chapter, section
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *ContentAwareChunker) chunkSection(text string, sec sectionInfo, protectedRegions []protected.Region, bookID string, metadataBase map[string]string) ([]Chunk, []string) {
	sectionText := text[sec.start:sec.end]
	sectionStart := sec.start

	if len(strings.TrimSpace(sectionText)) < c.cfg.MinSize {
		meta := c.createMetadata(sectionText, fmt.Sprintf("%s_chunk_%d", bookID, sectionStart), bookID, sec, sectionStart, sec.end, metadataBase, nil)
		return []Chunk{{Text: sectionText, Metadata: meta}}, nil
	}

	var sectionProtected []protected.Region
	for _, r := range protectedRegions {
		if r.Start >= sectionStart && r.End <= sec.end {
			sectionProtected = append(sectionProtected, protected.Region{Start: r.Start - sectionStart, End: r.End - sectionStart, Kind: r.Kind})
		}
	}

	boundaries := c.findChunkBoundaries(sectionText, sectionProtected)

	var chunks []Chunk
	var warnings []string
	currentPos := 0

	for i, b := range boundaries {
		chunkEnd := b.position

		overlapStart := currentPos
		if i > 0 && b.boundaryType != "section" && b.boundaryType != "chapter" {
			overlapStart = maxInt(0, currentPos-c.cfg.Overlap)
		}

		chunkText := strings.TrimSpace(sectionText[overlapStart:chunkEnd])

		if len(chunkText) >= c.cfg.MinSize {
			meta := c.createMetadata(chunkText, fmt.Sprintf("%s_chunk_%d", bookID, sectionStart+overlapStart), bookID, sec, sectionStart+overlapStart, sectionStart+chunkEnd, metadataBase, sectionProtected)
			chunks = append(chunks, Chunk{Text: chunkText, Metadata: meta})
		} else {
			warnings = append(warnings, fmt.Sprintf("chunk too small (%d chars), merging with next", len(chunkText)))
			continue
		}

		currentPos = chunkEnd
	}

	if currentPos < len(sectionText) {
		remaining := strings.TrimSpace(sectionText[currentPos:])
		if len(remaining) >= c.cfg.MinSize {
			meta := c.createMetadata(remaining, fmt.Sprintf("%s_chunk_%d", bookID, sectionStart+currentPos), bookID, sec, sectionStart+currentPos, sec.end, metadataBase, sectionProtected)
			chunks = append(chunks, Chunk{Text: remaining, Metadata: meta})
		} else if len(chunks) > 0 {
			last := &chunks[len(chunks)-1]
			last.Text = last.Text + " " + remaining
			last.Metadata.EndPosition = sec.end
			last.Metadata.CharCount = len(last.Text)
			last.Metadata.WordCount = len(strings.Fields(last.Text))
			last.Metadata.SentenceCount = len(sentenceTerminatorRE.FindAllString(last.Text, -1))
		}
	}

	return chunks, warnings
}

var paragraphBreakInnerRE = regexp.MustCompile(`\n\s*\n`)
var sentenceBoundaryInnerRE = regexp.MustCompile(`[.!?]\s+`)
var wordBoundaryRE = regexp.MustCompile(`\s+`)

func (c *ContentAwareChunker) findChunkBoundaries(text string, protectedRegions []protected.Region) []boundary {
	var boundaries []boundary
	currentPos := 0

	for currentPos < len(text) {
		targetPos := currentPos + c.cfg.Target

		if targetPos >= len(text) {
			boundaries = append(boundaries, boundary{position: len(text), boundaryType: "end", qualityScore: 1.0})
			break
		}

		best := c.findBestBoundary(text, currentPos, targetPos, protectedRegions)
		boundaries = append(boundaries, best)
		currentPos = best.position
	}

	return boundaries
}

func (c *ContentAwareChunker) findBestBoundary(text string, startPos, targetPos int, protectedRegions []protected.Region) boundary {
	searchStart := maxInt(startPos+c.cfg.MinSize, targetPos-200)
	searchEnd := minInt(len(text), targetPos+200)

	for _, r := range protectedRegions {
		if r.Start <= targetPos && targetPos <= r.End {
			if r.End < searchEnd {
				return boundary{position: r.End, boundaryType: "protected_region", qualityScore: 0.9}
			}
			if r.Start > searchStart {
				return boundary{position: r.Start, boundaryType: "protected_region", qualityScore: 0.8}
			}
		}
	}

	if searchStart >= searchEnd {
		return boundary{position: targetPos, boundaryType: "forced", qualityScore: 0.2}
	}
	window := text[searchStart:searchEnd]

	var candidates []boundary
	for _, loc := range paragraphBreakInnerRE.FindAllStringIndex(window, -1) {
		candidates = append(candidates, boundary{position: searchStart + loc[1], boundaryType: "paragraph", qualityScore: 0.9})
	}
	for _, loc := range sentenceBoundaryInnerRE.FindAllStringIndex(window, -1) {
		candidates = append(candidates, boundary{position: searchStart + loc[1], boundaryType: "sentence", qualityScore: 0.7})
	}
	for _, loc := range wordBoundaryRE.FindAllStringIndex(window, -1) {
		candidates = append(candidates, boundary{position: searchStart + loc[1], boundaryType: "word", qualityScore: 0.5})
	}

	if len(candidates) == 0 {
		return boundary{position: targetPos, boundaryType: "forced", qualityScore: 0.2}
	}

	best := candidates[0]
	bestScore := scoreBoundaryCandidate(best, targetPos)
	for _, cand := range candidates[1:] {
		score := scoreBoundaryCandidate(cand, targetPos)
		if score > bestScore {
			best, bestScore = cand, score
		}
	}
	return best
}

func scoreBoundaryCandidate(b boundary, targetPos int) float64 {
	distance := math.Abs(float64(b.position - targetPos))
	distanceScore := math.Max(0, 1.0-distance/200)
	return b.qualityScore*0.7 + distanceScore*0.3
}

var keywordWordRE = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)
var sentenceTerminatorRE = regexp.MustCompile(`[.!?]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true, "should": true,
	"could": true, "can": true, "may": true, "might": true, "must": true,
	"this": true, "that": true, "these": true, "those": true,
}

func (c *ContentAwareChunker) createMetadata(text, chunkID, bookID string, sec sectionInfo, startPos, endPos int, metadataBase map[string]string, regionsInChunk []protected.Region) Metadata {
	contentType := ContentText
	for _, r := range regionsInChunk {
		if r.Start < len(text) && r.End > 0 {
			switch {
			case strings.Contains(r.Kind, "math") || strings.Contains(r.Kind, "equation"):
				contentType = ContentMath
			case strings.Contains(r.Kind, "definition"):
				contentType = ContentDefinition
			case strings.Contains(r.Kind, "example"):
				contentType = ContentExample
			}
			if contentType != ContentText {
				break
			}
		}
	}

	words := strings.Fields(text)
	sentenceCount := len(sentenceTerminatorRE.FindAllString(text, -1))
	keywords := extractKeywords(text, 5)
	difficulty := c.estimateDifficulty(text, contentType, words)
	confidence := c.calculateChunkConfidence(text, contentType, len(words), sentenceCount)

	custom := map[string]string{}
	for k, v := range metadataBase {
		if k != "title" && k != "subject" {
			custom[k] = v
		}
	}

	return Metadata{
		BookID:           bookID,
		ChunkID:          chunkID,
		Title:            metadataBase["title"],
		Subject:          metadataBase["subject"],
		Chapter:          sec.chapter,
		Section:          sec.section,
		ContentType:      contentType,
		Difficulty:       difficulty,
		Keywords:         keywords,
		StartPosition:    startPos,
		EndPosition:      endPos,
		ConfidenceScore:  confidence,
		StructureQuality: 0.8,
		ContentCoherence: 0.7,
		CharCount:        len(text),
		WordCount:        len(words),
		SentenceCount:    sentenceCount,
		ChunkingStrategy: "content_aware",
		CustomMetadata:   custom,
	}
}

func extractKeywords(text string, maxKeywords int) []string {
	freq := map[string]int{}
	for _, w := range keywordWordRE.FindAllString(strings.ToLower(text), -1) {
		if !stopWords[w] {
			freq[w]++
		}
	}

	type wordCount struct {
		word  string
		count int
	}
	counts := make([]wordCount, 0, len(freq))
	for w, c := range freq {
		counts = append(counts, wordCount{w, c})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].count > counts[j].count })

	n := minInt(maxKeywords, len(counts))
	keywords := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keywords = append(keywords, counts[i].word)
	}
	return keywords
}

func (c *ContentAwareChunker) estimateDifficulty(text string, contentType ContentType, words []string) float64 {
	difficulty := 0.5

	switch contentType {
	case ContentMath:
		difficulty += 0.2
	case ContentDefinition:
		difficulty += 0.15
	case ContentExample:
		difficulty -= 0.1
	}

	if len(words) > 0 {
		totalLen := 0
		for _, w := range words {
			totalLen += len(w)
		}
		if float64(totalLen)/float64(len(words)) > 6 {
			difficulty += 0.1
		}
	}

	sentences := sentenceTerminatorRE.Split(text, -1)
	if len(sentences) > 0 {
		totalWords := 0
		for _, s := range sentences {
			totalWords += len(strings.Fields(s))
		}
		if float64(totalWords)/float64(len(sentences)) > 20 {
			difficulty += 0.1
		}
	}

	if symbols := protected.MathSymbolCount(text); symbols > 0 {
		difficulty += float64(symbols) * 0.02
	}

	return clamp01(difficulty)
}

func (c *ContentAwareChunker) calculateChunkConfidence(text string, contentType ContentType, wordCount, sentenceCount int) float64 {
	confidence := 0.8

	charCount := len(text)
	switch {
	case charCount >= c.cfg.MinSize && charCount <= c.cfg.MaxSize:
		confidence += 0.1
	case charCount < c.cfg.MinSize:
		confidence -= 0.2
	}

	if contentType == ContentMath || contentType == ContentDefinition || contentType == ContentExample {
		confidence += 0.1
	}

	trimmed := strings.TrimSpace(text)
	if sentenceCount > 0 && trimmed != "" {
		last := trimmed[len(trimmed)-1]
		if last != '.' && last != '!' && last != '?' {
			confidence -= 0.1
		}
	}

	return clamp01(confidence)
}

func calculateStatistics(chunks []Chunk, strategy string) Statistics {
	if len(chunks) == 0 {
		return Statistics{}
	}

	sizes := make([]int, len(chunks))
	totalChars := 0
	contentTypes := map[string]int{}
	var confidenceSum float64

	for i, ch := range chunks {
		sizes[i] = len(ch.Text)
		totalChars += sizes[i]
		contentTypes[ch.Metadata.ContentType.String()]++
		confidenceSum += ch.Metadata.ConfidenceScore
	}

	avg := float64(totalChars) / float64(len(chunks))
	var variance float64
	minSize, maxSize := sizes[0], sizes[0]
	for _, s := range sizes {
		variance += (float64(s) - avg) * (float64(s) - avg)
		if s < minSize {
			minSize = s
		}
		if s > maxSize {
			maxSize = s
		}
	}
	variance /= float64(len(sizes))

	return Statistics{
		TotalChunks:             len(chunks),
		AvgChunkSize:            avg,
		MinChunkSize:            minSize,
		MaxChunkSize:            maxSize,
		SizeStdDev:              math.Sqrt(variance),
		TotalCharacters:         totalChars,
		ContentTypeDistribution: contentTypes,
		AvgConfidence:           confidenceSum / float64(len(chunks)),
		ChunkingStrategy:        strategy,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
