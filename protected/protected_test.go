package protected

import (
	"strings"
	"testing"
)

func TestDetectMathInlineExpression(t *testing.T) {
	text := "The energy equation $E = mc^2$ is fundamental."
	regions := DetectMath(text)
	if len(regions) == 0 {
		t.Fatal("expected at least one math region")
	}
	got := text[regions[0].Start:regions[0].End]
	if got != "$E = mc^2$" {
		t.Fatalf("unexpected math region text: %q", got)
	}
}

func TestDetectDefinitionsExtendsToExplanation(t *testing.T) {
	text := "Definition: A prime number is an integer greater than 1. It has no divisors other than 1 and itself. The next topic is composite numbers."
	regions := DetectDefinitions(text)
	if len(regions) == 0 {
		t.Fatal("expected at least one definition region")
	}
	if regions[0].Kind != "definition" {
		t.Fatalf("expected kind 'definition', got %q", regions[0].Kind)
	}
	region := text[regions[0].Start:regions[0].End]
	if !strings.Contains(region, "It has no divisors other than 1 and itself.") {
		t.Fatalf("expected definition region to include its explanation, got %q", region)
	}
}

func TestDetectExamplesIncludesSolution(t *testing.T) {
	text := "Example 1: Compute the sum of 2 and 2. Solution: The answer is 4.\n\nNext paragraph starts here."
	regions := DetectExamples(text)
	if len(regions) == 0 {
		t.Fatal("expected at least one example region")
	}
	region := text[regions[0].Start:regions[0].End]
	if !contains(region, "Solution") {
		t.Fatalf("expected example region to include its solution, got %q", region)
	}
}

func TestMergeCombinesCloseRegions(t *testing.T) {
	regions := []Region{
		{Start: 0, End: 10, Kind: "math"},
		{Start: 15, End: 25, Kind: "definition"},
	}
	merged := Merge(regions)
	if len(merged) != 1 {
		t.Fatalf("expected regions within 20 chars to merge, got %d", len(merged))
	}
	if merged[0].Kind != "math+definition" {
		t.Fatalf("expected combined kind, got %q", merged[0].Kind)
	}
}

func TestMergeKeepsDistantRegionsSeparate(t *testing.T) {
	regions := []Region{
		{Start: 0, End: 10, Kind: "math"},
		{Start: 100, End: 110, Kind: "definition"},
	}
	merged := Merge(regions)
	if len(merged) != 2 {
		t.Fatalf("expected distant regions to stay separate, got %d", len(merged))
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
