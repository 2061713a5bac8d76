package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/learntrac/backend/chunking"
	"github.com/learntrac/backend/embeddings"
	"github.com/learntrac/backend/graph"
	"github.com/learntrac/backend/relational"
	"github.com/learntrac/backend/structuredetect"
)

// ErrNoChunks signals that a PDF produced no chunkable content: the
// extracted text was empty or the chunking controller returned no chunks.
// The controller does not filter chunks after chunking.
var ErrNoChunks = errors.New("document produced no chunks")

// Service orchestrates the PDF ingestion pipeline: text extraction,
// structure detection + chunking (via Controller), embedding, and
// persistence to the graph store (with a relational mirror of each
// chunk's content and embedding, which relational.Store.GetChunksByID
// reads back by chunk id).
type Service struct {
	controller *chunking.Controller
	embedder   embeddings.Embedder
	graphStore *graph.Store
	relStore   *relational.Store
	logger     *log.Logger
}

func NewService(controller *chunking.Controller, embedder embeddings.Embedder, graphStore *graph.Store, relStore *relational.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		controller: controller,
		embedder:   embedder,
		graphStore: graphStore,
		relStore:   relStore,
		logger:     logger,
	}
}

// Result summarizes one successful ingestion.
type Result struct {
	BookID     string
	Title      string
	Hash       string
	Strategy   string
	ChunkCount int
	Warnings   []string
}

// IngestFile reads, chunks, embeds and persists a single PDF.
func (s *Service) IngestFile(ctx context.Context, path, subject string) (*Result, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	hash := sha256.Sum256(data)
	hashHex := hex.EncodeToString(hash[:])

	extracted, err := extractPDFText(path)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return nil, ErrNoChunks
	}

	title := firstNonEmptyLine(extracted.Text)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	bookID := slug(title)
	if bookID == "" {
		bookID = slug(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}

	docResult := s.controller.Chunk(chunking.Document{
		BookID: bookID,
		Text:   extracted.Text,
		MetadataBase: map[string]string{
			"title":   title,
			"subject": subject,
		},
	})
	if len(docResult.Chunking.Chunks) == 0 {
		return nil, ErrNoChunks
	}

	embeds, err := s.embedder.Embed(ctx, chunkTexts(docResult.Chunking.Chunks))
	if err != nil {
		return nil, fmt.Errorf("generate embeddings: %w", err)
	}

	if err := s.persist(ctx, bookID, title, subject, extracted.PageOffsets, docResult, embeds); err != nil {
		return nil, err
	}

	s.logger.Printf("ingested %s [%s] (%d chunks, strategy=%s)", path, bookID, len(docResult.Chunking.Chunks), docResult.Strategy)

	return &Result{
		BookID:     bookID,
		Title:      title,
		Hash:       hashHex,
		Strategy:   docResult.Strategy.String(),
		ChunkCount: len(docResult.Chunking.Chunks),
		Warnings:   docResult.Chunking.Warnings,
	}, nil
}

// IngestDirectory walks dir for PDFs and ingests each, logging (not
// failing) per-file errors so one bad document doesn't abort the batch.
func (s *Service) IngestDirectory(ctx context.Context, dir, subject string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}

	var paths []string
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && DetectFormat(path) == FormatPDF {
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("walk data directory: %w", err)
	}

	if len(paths) == 0 {
		s.logger.Printf("no PDFs found in %s", dir)
		return nil
	}

	for _, path := range paths {
		if _, err := s.IngestFile(ctx, path, subject); err != nil {
			if errors.Is(err, ErrNoChunks) {
				s.logger.Printf("skip empty document %s", path)
				continue
			}
			s.logger.Printf("ingest failed for %s: %v", path, err)
		}
	}
	return nil
}

// chapterInfo and sectionInfo describe one graph Chapter/Section node
// derived from the detected structure, with a deterministic id assigned
// in document order so re-ingesting the same PDF yields the same ids.
type chapterInfo struct {
	id     string
	number int
	title  string
	page   int
}

type graphSectionInfo struct {
	id        string
	chapterID string
	number    int
	title     string
	level     int
}

// persist builds the Textbook/Chapter/Section/Concept/Chunk graph for one
// document and mirrors each chunk's embedding into the relational store.
// Each write is committed on its own, not in one transaction, so a failure
// partway through leaves the nodes and edges already written in place;
// retrying ingestion for the same document is safe since every write below
// is an idempotent MERGE.
func (s *Service) persist(ctx context.Context, bookID, title, subject string, pageOffsets []int, docResult chunking.DocumentResult, embeds [][]float32) error {
	if err := s.graphStore.UpsertTextbook(ctx, graph.Textbook{ID: bookID, Title: title, Subject: subject}); err != nil {
		return err
	}

	chaptersByKey, sectionsByKey, chapterOrder, sectionOrder := buildStructureIndex(bookID, docResult.Detection.Hierarchy, pageOffsets)

	for _, ch := range chapterOrder {
		if err := s.graphStore.UpsertChapter(ctx, graph.Chapter{ID: ch.id, TextbookID: bookID, Number: ch.number, Title: ch.title, Pages: ch.page}); err != nil {
			return err
		}
	}
	for i := 1; i < len(chapterOrder); i++ {
		if err := s.graphStore.Link(ctx, "PRECEDES", chapterOrder[i-1].id, chapterOrder[i].id, nil); err != nil {
			return err
		}
	}

	for _, sec := range sectionOrder {
		if err := s.graphStore.UpsertSection(ctx, graph.Section{ID: sec.id, ChapterID: sec.chapterID, Title: sec.title, Level: sec.level, Order: sec.number}); err != nil {
			return err
		}
	}
	for _, chapterSections := range groupSectionsByChapter(sectionOrder) {
		for i := 1; i < len(chapterSections); i++ {
			if err := s.graphStore.Link(ctx, "NEXT", chapterSections[i-1].id, chapterSections[i].id, nil); err != nil {
				return err
			}
		}
	}

	seenConcepts := map[string]bool{}
	for i, chunk := range docResult.Chunking.Chunks {
		var embedding []float32
		if i < len(embeds) {
			embedding = embeds[i]
		}

		chapterKey := coalesceKey(chunk.Metadata.Chapter)
		chapterID := ""
		if ch, ok := chaptersByKey[chapterKey]; ok {
			chapterID = ch.id
		}
		sectionID := ""
		if chapterID != "" {
			if sec, ok := sectionsByKey[sectionLookupKey(chapterID, chunk.Metadata.Section)]; ok {
				sectionID = sec.id
			}
		}

		concept := resolveConcept(chunk.Metadata, title)
		if concept != "" && !seenConcepts[concept] {
			if err := s.graphStore.UpsertConcept(ctx, graph.Concept{Name: concept}); err != nil {
				return err
			}
			seenConcepts[concept] = true
		}

		graphChunk := graph.Chunk{
			ID:              chunk.Metadata.ChunkID,
			SectionID:       sectionID,
			BookID:          bookID,
			Text:            chunk.Text,
			Embedding:       embedding,
			Concept:         concept,
			Subject:         subject,
			ContentType:     chunk.Metadata.ContentType.String(),
			Difficulty:      difficultyBand(chunk.Metadata.Difficulty),
			ConfidenceScore: chunk.Metadata.ConfidenceScore,
			StartOffset:     chunk.Metadata.StartPosition,
			EndOffset:       chunk.Metadata.EndPosition,
		}
		if err := s.graphStore.UpsertChunk(ctx, graphChunk); err != nil {
			return err
		}
		if embedding != nil && s.relStore != nil {
			if err := s.relStore.UpsertChunkEmbedding(ctx, graphChunk.ID, bookID, chunk.Text, embedding); err != nil {
				return err
			}
		}
	}

	return nil
}

// buildStructureIndex assigns sequential Chapter/Section ids by walking
// detected elements in document order, grouping sections under the
// nearest preceding chapter. Keys are the same chapter/section strings
// chunking.Metadata.Chapter/Section already carry (coalesce(number,
// title)), so chunks resolve back to these nodes by the same key.
func buildStructureIndex(bookID string, hierarchy structuredetect.Hierarchy, pageOffsets []int) (map[string]chapterInfo, map[string]graphSectionInfo, []chapterInfo, []graphSectionInfo) {
	elements := append([]structuredetect.Element(nil), hierarchy.Elements...)
	sort.Slice(elements, func(i, j int) bool { return elements[i].StartPosition < elements[j].StartPosition })

	chaptersByKey := map[string]chapterInfo{}
	sectionsByKey := map[string]graphSectionInfo{}
	var chapterOrder []chapterInfo
	var sectionOrder []graphSectionInfo

	chapterNum := 0
	currentChapterID := ""
	sectionNumInChapter := map[string]int{}

	for _, el := range elements {
		key := coalesceKey(coalesce(el.Number, el.Title))
		if key == "" {
			continue
		}
		switch el.Type {
		case structuredetect.TypeChapter:
			if existing, ok := chaptersByKey[key]; ok {
				currentChapterID = existing.id
				continue
			}
			chapterNum++
			info := chapterInfo{
				id:     fmt.Sprintf("%s_ch%d", bookID, chapterNum),
				number: chapterNum,
				title:  el.Title,
				page:   pageForOffset(pageOffsets, el.StartPosition),
			}
			chaptersByKey[key] = info
			chapterOrder = append(chapterOrder, info)
			currentChapterID = info.id
		case structuredetect.TypeSection, structuredetect.TypeSubsection, structuredetect.TypeSubsubsection:
			if currentChapterID == "" {
				continue
			}
			lookupKey := sectionLookupKeyRaw(currentChapterID, key)
			if _, ok := sectionsByKey[lookupKey]; ok {
				continue
			}
			sectionNumInChapter[currentChapterID]++
			info := graphSectionInfo{
				id:        fmt.Sprintf("%s_s%d", currentChapterID, sectionNumInChapter[currentChapterID]),
				chapterID: currentChapterID,
				number:    sectionNumInChapter[currentChapterID],
				title:     el.Title,
				level:     el.Level,
			}
			sectionsByKey[lookupKey] = info
			sectionOrder = append(sectionOrder, info)
		}
	}

	return chaptersByKey, sectionsByKey, chapterOrder, sectionOrder
}

func groupSectionsByChapter(sections []graphSectionInfo) [][]graphSectionInfo {
	byChapter := map[string][]graphSectionInfo{}
	var order []string
	for _, sec := range sections {
		if _, ok := byChapter[sec.chapterID]; !ok {
			order = append(order, sec.chapterID)
		}
		byChapter[sec.chapterID] = append(byChapter[sec.chapterID], sec)
	}
	groups := make([][]graphSectionInfo, 0, len(order))
	for _, chapterID := range order {
		groups = append(groups, byChapter[chapterID])
	}
	return groups
}

func sectionLookupKey(chapterID, sectionValue string) string {
	return sectionLookupKeyRaw(chapterID, coalesceKey(sectionValue))
}

func sectionLookupKeyRaw(chapterID, key string) string {
	return chapterID + "|" + key
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func coalesceKey(s string) string {
	return strings.TrimSpace(s)
}

// resolveConcept picks the name a chunk's Concept node is merged under:
// its section label, then its chapter label, then its top keyword, then the
// document title. The labels are the ones the chunker records in the chunk
// metadata: an element's number when it has one (such as "1.2"), otherwise
// its title, so a numbered section or chapter is not named by its title
// here. spec.md's GraphNodes.Chunk carries an optional
// concept_name but doesn't specify how ingestion derives one for PDFs
// with no explicit concept markup, so this is the ingestion package's own
// choice, applied consistently.
func resolveConcept(meta chunking.Metadata, docTitle string) string {
	switch {
	case meta.Section != "":
		return meta.Section
	case meta.Chapter != "":
		return meta.Chapter
	case len(meta.Keywords) > 0:
		return meta.Keywords[0]
	default:
		return docTitle
	}
}

// difficultyBand maps the chunking package's [0,1] difficulty score onto
// the 1..5 scale GraphNodes.Chunk and LLMOrchestrator.generate_question
// share.
func difficultyBand(score float64) int {
	band := int(math.Round(score*4)) + 1
	if band < 1 {
		band = 1
	}
	if band > 5 {
		band = 5
	}
	return band
}

func chunkTexts(chunks []chunking.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}

var slugNonAlnumRE = regexp.MustCompile(`[^a-z0-9]+`)

// slug derives a stable, URL/id-safe book identifier from a title so
// re-ingesting the same document (same title) yields the same bookID and
// therefore the same chapter/section/chunk ids.
func slug(s string) string {
	lower := strings.ToLower(s)
	dashed := slugNonAlnumRE.ReplaceAllString(lower, "-")
	dashed = strings.Trim(dashed, "-")
	if len(dashed) > 64 {
		dashed = dashed[:64]
	}
	return dashed
}
