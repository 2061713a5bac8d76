package structuredetect

import (
	"strings"
	"testing"
)

func sampleTextbook() string {
	var b strings.Builder
	for i := 1; i <= 4; i++ {
		b.WriteString("Chapter ")
		b.WriteString(itoa(i))
		b.WriteString(": Introduction To Topic\n")
		b.WriteString("Some body text explaining the chapter.\n")
		b.WriteString("1.1 First Section\n")
		b.WriteString("More body text.\n")
		b.WriteString("1.1.1 A Subsection\n")
		b.WriteString("Even more body text.\n")
	}
	return b.String()
}

func itoa(i int) string {
	digits := "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return string(digits[i/10]) + string(digits[i%10])
}

func TestDetectEmptyText(t *testing.T) {
	d := NewDetector(3, 0.3)
	result := d.Detect("")
	if result.IsValidTextbook {
		t.Fatal("empty text must not validate as a textbook")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning for empty text")
	}
}

func TestDetectChapterStandardPattern(t *testing.T) {
	d := NewDetector(3, 0.3)
	result := d.Detect("Chapter 1: Getting Started\nbody\n")
	if result.Hierarchy.TotalChapters != 1 {
		t.Fatalf("expected 1 chapter, got %d", result.Hierarchy.TotalChapters)
	}
	el := result.Hierarchy.Elements[0]
	if el.Type != TypeChapter {
		t.Fatalf("expected chapter type, got %v", el.Type)
	}
	if el.Number != "1" {
		t.Fatalf("expected number '1', got %q", el.Number)
	}
	if el.NumberingStyle != NumberingArabic {
		t.Fatalf("expected arabic numbering, got %v", el.NumberingStyle)
	}
	if el.Confidence < 0.8 {
		t.Fatalf("expected high confidence for standard chapter pattern, got %v", el.Confidence)
	}
}

func TestDetectSectionHierarchyLevels(t *testing.T) {
	d := NewDetector(1, 0.0)
	text := "Chapter 1: Intro\n1.1 Overview\n1.1.1 Details\n"
	result := d.Detect(text)

	var chapter, section, subsection *Element
	for i := range result.Hierarchy.Elements {
		e := &result.Hierarchy.Elements[i]
		switch e.Type {
		case TypeChapter:
			chapter = e
		case TypeSection:
			section = e
		case TypeSubsection:
			subsection = e
		}
	}
	if chapter == nil || section == nil || subsection == nil {
		t.Fatalf("expected chapter, section and subsection elements, got %+v", result.Hierarchy.Elements)
	}
	if chapter.Level != 0 {
		t.Fatalf("chapter level = %d, want 0", chapter.Level)
	}
	if section.Level != 1 {
		t.Fatalf("section level = %d, want 1", section.Level)
	}
	if subsection.Level != 2 {
		t.Fatalf("subsection level = %d, want 2", subsection.Level)
	}
}

func TestDetectValidTextbookRequiresMinChapters(t *testing.T) {
	d := NewDetector(3, 0.0)
	text := "Chapter 1: One\n1.1 A\nChapter 2: Two\n2.1 B\n"
	result := d.Detect(text)
	if result.IsValidTextbook {
		t.Fatal("expected validation to fail with fewer than min_chapters")
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "Insufficient") || strings.Contains(w, "insufficient") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an insufficient-chapters warning, got %v", result.Warnings)
	}
}

func TestDetectFullTextbookValidates(t *testing.T) {
	d := NewDetector(3, 0.3)
	result := d.Detect(sampleTextbook())
	if result.Hierarchy.TotalChapters != 4 {
		t.Fatalf("expected 4 chapters, got %d", result.Hierarchy.TotalChapters)
	}
	if !result.IsValidTextbook {
		t.Fatalf("expected a well-structured sample to validate, warnings: %v", result.Warnings)
	}
	if result.Statistics.TotalElements == 0 {
		t.Fatal("expected non-zero statistics for a populated document")
	}
}

func TestNumberingConsistencyAllArabic(t *testing.T) {
	d := NewDetector(1, 0.0)
	text := "Chapter 1: One\nChapter 2: Two\nChapter 3: Three\n"
	result := d.Detect(text)
	if result.Hierarchy.NumberingConsistency != 1.0 {
		t.Fatalf("expected perfect numbering consistency, got %v", result.Hierarchy.NumberingConsistency)
	}
}
