package quality

import (
	"testing"

	"github.com/learntrac/backend/structuredetect"
)

func TestAssessEmptyHierarchyFallsBackToFallback(t *testing.T) {
	a := NewAssessor(0.3, 2, 20)
	result := a.Assess(structuredetect.Result{})
	if result.RecommendedStrategy != StrategyFallback {
		t.Fatalf("expected fallback strategy for empty hierarchy, got %v", result.RecommendedStrategy)
	}
	if result.OverallQualityScore != 0 {
		t.Fatalf("expected zero quality score, got %v", result.OverallQualityScore)
	}
}

func TestAssessWellStructuredDocumentRecommendsContentAware(t *testing.T) {
	detector := structuredetect.NewDetector(3, 0.3)
	text := "Chapter 1: Introduction\n1.1 Overview\n1.1.1 Basics\nChapter 2: Core Ideas\n2.1 Theory\nChapter 3: Advanced Topics\n3.1 Applications\n"
	detection := detector.Detect(text)

	a := NewAssessor(0.3, 2, 20)
	result := a.Assess(detection)

	if result.ChapterCount != 3 {
		t.Fatalf("expected 3 chapters, got %d", result.ChapterCount)
	}
	if result.RecommendedStrategy != StrategyContentAware {
		t.Fatalf("expected content-aware strategy, got %v (score %.2f)", result.RecommendedStrategy, result.OverallQualityScore)
	}
	if result.Confidence < 0.1 || result.Confidence > 1.0 {
		t.Fatalf("confidence out of bounds: %v", result.Confidence)
	}
}

func TestAssessFlatDocumentWarnsAboutStructure(t *testing.T) {
	detector := structuredetect.NewDetector(3, 0.3)
	detection := detector.Detect("Just some plain paragraph text with no headings at all to speak of.\n")

	a := NewAssessor(0.3, 2, 20)
	result := a.Assess(detection)

	if result.HasLogicalHierarchy {
		t.Fatal("flat document should not report a logical hierarchy")
	}
}
