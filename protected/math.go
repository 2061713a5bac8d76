package protected

import (
	"regexp"
	"strings"
)

var mathPatterns = compileAll(
	`(?is)\$[^$]+\$`,
	`(?is)\$\$[^$]+\$\$`,
	`(?is)\\begin\{equation\}.*?\\end\{equation\}`,
	`(?is)\\begin\{align\}.*?\\end\{align\}`,
	`(?is)\\begin\{eqnarray\}.*?\\end\{eqnarray\}`,
	`(?is)[∑∏∫∮∂∇][\w\s()]+`,
	`(?is)[α-ωΑ-Ω][\w\s]*`,
	`(?is)\b\d+\s*[+\-*/=]\s*\d+.*?=.*?\d+`,
	`(?is)[fx]\([^)]+\)\s*=\s*[^,.\n]+`,
	`(?is)\\frac\{[^}]+\}\{[^}]+\}`,
	`(?is)[xy][\d²³⁴]+\s*[+\-]\s*[xy]?[\d²³⁴]*`,
)

var mathSymbols = map[rune]bool{
	'≈': true, '≠': true, '≤': true, '≥': true, '±': true, '∞': true, '√': true,
	'∑': true, '∏': true, '∫': true, '∮': true, '∂': true, '∇': true,
	'π': true, 'θ': true, 'φ': true, 'λ': true, 'μ': true, 'σ': true, 'ρ': true,
	'Δ': true, 'Ω': true, 'α': true, 'β': true, 'γ': true,
}

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

// DetectMath finds LaTeX expressions, Greek-letter runs and common equation
// shapes, merging anything within 10 characters of another match into one
// region (adjacent math notation is usually a single expression).
func DetectMath(text string) []Region {
	var found []Region
	for _, re := range mathPatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			kind := classifyMathContent(text[loc[0]:loc[1]])
			found = append(found, Region{Start: loc[0], End: loc[1], Kind: kind})
		}
	}
	return mergeWithProximity(found, 10, true)
}

func classifyMathContent(content string) string {
	switch {
	case strings.HasPrefix(content, "$$") || strings.Contains(content, `\begin{`):
		return "display_math"
	case strings.HasPrefix(content, "$"):
		return "inline_math"
	case strings.Contains(content, "=") && containsAny(content, "+", "-", "*", "/"):
		return "equation"
	case strings.Contains(content, "f(") || strings.Contains(content, "g("):
		return "function"
	default:
		return "mathematical_expression"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// MathSymbolCount reports how many of the recognized mathematical symbols
// appear in text, used to bias difficulty estimates toward math-heavy chunks.
func MathSymbolCount(text string) int {
	seen := map[rune]bool{}
	for _, r := range text {
		if mathSymbols[r] {
			seen[r] = true
		}
	}
	return len(seen)
}
