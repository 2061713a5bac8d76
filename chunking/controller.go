package chunking

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/learntrac/backend/config"
	"github.com/learntrac/backend/quality"
	"github.com/learntrac/backend/structuredetect"
)

// Document is one document's raw text awaiting chunking.
type Document struct {
	BookID       string
	Text         string
	MetadataBase map[string]string
}

// DocumentResult is the outcome of chunking a single Document.
type DocumentResult struct {
	BookID     string
	Strategy   quality.Strategy
	Assessment quality.Assessment
	Detection  structuredetect.Result
	Chunking   Result
	Err        error
}

// Controller selects a chunking strategy per document based on structure
// quality and runs the corresponding chunker. A Controller is safe for
// concurrent use.
type Controller struct {
	cfg          config.ChunkingConfig
	detector     *structuredetect.Detector
	assessor     *quality.Assessor
	contentAware *ContentAwareChunker
	fallback     *FallbackChunker
	maxWorkers   int
}

// NewController builds a Controller from the application config. It wires
// the structure detector and quality assessor with the defaults the
// detection pipeline uses (min_chapters=3 for a valid textbook, threshold 0.3
// for the quality assessor) and the chunkers with the configured sizes.
func NewController(cfg config.Config) *Controller {
	workers := cfg.Chunking.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	return &Controller{
		cfg:          cfg.Chunking,
		detector:     structuredetect.NewDetector(3, 0.3),
		assessor:     quality.NewAssessor(0.3, 2, 20),
		contentAware: NewContentAwareChunker(cfg.Chunking),
		fallback:     NewFallbackChunker(cfg.Chunking),
		maxWorkers:   workers,
	}
}

// Chunk runs structure detection, quality assessment and the recommended
// chunking strategy over a single document's text.
func (c *Controller) Chunk(doc Document) DocumentResult {
	detection := c.detector.Detect(doc.Text)
	assessment := c.assessor.Assess(detection)

	var result Result
	switch assessment.RecommendedStrategy {
	case quality.StrategyFallback:
		result = c.fallback.Chunk(doc.Text, doc.BookID, doc.MetadataBase)
	default:
		result = c.contentAware.Chunk(doc.Text, detection.Hierarchy.Elements, doc.BookID, doc.MetadataBase)
	}

	return DocumentResult{
		BookID:     doc.BookID,
		Strategy:   assessment.RecommendedStrategy,
		Assessment: assessment,
		Detection:  detection,
		Chunking:   result,
	}
}

// ChunkBatch chunks many documents concurrently, bounded by the configured
// max_workers, and returns results in the same order as the input slice.
func (c *Controller) ChunkBatch(ctx context.Context, docs []Document) ([]DocumentResult, error) {
	results := make([]DocumentResult, len(docs))
	sem := semaphore.NewWeighted(int64(c.maxWorkers))
	group, groupCtx := errgroup.WithContext(ctx)

	for i, doc := range docs {
		i, doc := i, doc
		if err := sem.Acquire(groupCtx, 1); err != nil {
			return nil, err
		}
		group.Go(func() error {
			defer sem.Release(1)
			results[i] = c.Chunk(doc)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
