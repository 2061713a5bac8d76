package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/learntrac/backend/config"
)

func testConfig() config.ChunkingConfig {
	return config.ChunkingConfig{
		Target:             300,
		MinSize:            50,
		MaxSize:             600,
		Overlap:            30,
		PreserveMath:       true,
		PreserveDefinition: true,
		PreserveExample:    true,
		MaxWorkers:         2,
	}
}

func longBody(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		b.WriteString("This paragraph explains a concept in enough words to matter for chunk sizing and boundary selection logic. ")
		b.WriteString("It continues for a bit longer so that the target chunk size is exceeded across several paragraphs.\n\n")
	}
	return b.String()
}

func TestContentAwareChunkUnstructuredText(t *testing.T) {
	chunker := NewContentAwareChunker(testConfig())
	result := chunker.Chunk(longBody(6), nil, "book1", map[string]string{"title": "Sample"})

	if len(result.Chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	lastIdx := len(result.Chunks) - 1
	for i, ch := range result.Chunks {
		if i != lastIdx && len(ch.Text) < testConfig().MinSize {
			t.Fatalf("chunk below min size: %d chars", len(ch.Text))
		}
	}
}

func TestFallbackChunkProducesOverlappingWindows(t *testing.T) {
	chunker := NewFallbackChunker(testConfig())
	result := chunker.Chunk(longBody(6), "book1", nil)

	if len(result.Chunks) < 2 {
		t.Fatalf("expected multiple chunks from a long document, got %d", len(result.Chunks))
	}
	for _, ch := range result.Chunks {
		if ch.Metadata.ChunkingStrategy != "fallback" {
			t.Fatalf("expected fallback strategy tag, got %q", ch.Metadata.ChunkingStrategy)
		}
	}
	for i := 1; i < len(result.Chunks); i++ {
		prev, cur := result.Chunks[i-1].Metadata, result.Chunks[i].Metadata
		if cur.StartPosition >= prev.EndPosition {
			t.Fatalf("chunk %d starts at %d, not inside previous chunk ending at %d", i, cur.StartPosition, prev.EndPosition)
		}
	}
}

func TestControllerChunkBatchPreservesOrder(t *testing.T) {
	cfg := config.Config{Chunking: testConfig()}
	controller := NewController(cfg)

	docs := []Document{
		{BookID: "a", Text: longBody(4)},
		{BookID: "b", Text: "Chapter 1: Intro\n" + longBody(3) + "Chapter 2: More\n" + longBody(3)},
		{BookID: "c", Text: longBody(5)},
	}

	results, err := controller.ChunkBatch(context.Background(), docs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(docs) {
		t.Fatalf("expected %d results, got %d", len(docs), len(results))
	}
	for i, r := range results {
		if r.BookID != docs[i].BookID {
			t.Fatalf("result %d out of order: got book %q, want %q", i, r.BookID, docs[i].BookID)
		}
	}
}
