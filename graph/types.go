// Package graph persists the textbook knowledge graph — textbooks,
// chapters, sections, concepts and chunks, with their vector embeddings
// and prerequisite edges — in Neo4j.
package graph

// Textbook is the root node of one ingested book.
type Textbook struct {
	ID      string
	Title   string
	Subject string
}

// Chapter belongs to a Textbook.
type Chapter struct {
	ID        string
	TextbookID string
	Number    int
	Title     string
	Pages     int
}

// Section belongs to a Chapter.
type Section struct {
	ID        string
	ChapterID string
	Title     string
	Level     int
	Order     int
}

// Concept is a named unit of knowledge a Chunk can cover. Concepts are
// deduplicated by name across the whole graph.
type Concept struct {
	Name string
}

// Chunk is one piece of chunked document text, with its embedding and the
// denormalized prerequisite arrays CreatePrerequisite keeps in sync with
// the graph's actual PREREQUISITE_FOR edges.
type Chunk struct {
	ID               string
	SectionID        string
	BookID           string
	Text             string
	Embedding        []float32
	Concept          string
	Subject          string
	ContentType      string
	Difficulty       int
	ConfidenceScore  float64
	StartOffset      int
	EndOffset        int
	HasPrerequisite  []string
	PrerequisiteFor  []string
}

// ChunkMatch is one vector-search hit.
type ChunkMatch struct {
	ChunkID string
	BookID  string
	Text    string
	Concept string
	Score   float64
}

// edge types Link and CreatePrerequisite are allowed to create. Neo4j
// doesn't support parameterized relationship types, so any type used in a
// Cypher string must come from this whitelist.
var allowedEdgeTypes = map[string]bool{
	"HAS_CHAPTER":      true,
	"HAS_SECTION":      true,
	"HAS_CHUNK":        true,
	"COVERS":           true,
	"PREREQUISITE_FOR": true,
	"RELATED_TO":       true,
	"PRECEDES":         true,
	"NEXT":             true,
}
