package structuredetect

import (
	"regexp"
	"strings"
)

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

// Detector holds compiled pattern families and validation thresholds. Build
// one with NewDetector and reuse it across documents; *regexp.Regexp is safe
// for concurrent use.
type Detector struct {
	minChapters         int
	confidenceThreshold float64

	chapterPatterns []namedPattern
	sectionPatterns []namedPattern
	headingPatterns []namedPattern
}

// NewDetector builds a Detector. minChapters is the minimum chapter count for
// a document to validate as a textbook; confidenceThreshold is the minimum
// overall quality score for the same.
func NewDetector(minChapters int, confidenceThreshold float64) *Detector {
	return &Detector{
		minChapters:         minChapters,
		confidenceThreshold: confidenceThreshold,
		chapterPatterns: []namedPattern{
			{"standard", regexp.MustCompile(`(?i)^(?:chapter|ch\.?)\s*(\d+)(?:\s*[:.\-]\s*(.+?))?$`)},
			{"unit", regexp.MustCompile(`(?i)^unit\s+(\d+)(?:\s*[:.\-]\s*(.+?))?$`)},
			{"part", regexp.MustCompile(`(?i)^part\s+([IVXLCDM]+|\d+)(?:\s*[:.\-]\s*(.+?))?$`)},
			{"numbered_simple", regexp.MustCompile(`^(\d+)(?:\s*[:\-]|\.(?:\s|$))\s*(.+?)$`)},
			{"roman_numbered", regexp.MustCompile(`^([IVXLCDM]+)\.\s*(.+?)$`)},
			{"lesson", regexp.MustCompile(`(?i)^lesson\s+(\d+)(?:\s*[:.\-]\s*(.+?))?$`)},
			{"module", regexp.MustCompile(`(?i)^module\s+(\d+)(?:\s*[:.\-]\s*(.+?))?$`)},
		},
		sectionPatterns: []namedPattern{
			{"decimal", regexp.MustCompile(`^(\d+\.\d+(?:\.\d+)*)\s+(.+?)$`)},
			{"letter_section", regexp.MustCompile(`^([A-Z])\.\s*(.+?)$`)},
			{"numbered_section", regexp.MustCompile(`^(\d+\.\d+)\s+(.+?)$`)},
			{"subsection", regexp.MustCompile(`^(\d+\.\d+\.\d+)\s+(.+?)$`)},
			{"roman_section", regexp.MustCompile(`^([ivxlcdm]+)\.\s*(.+?)$`)},
		},
		headingPatterns: []namedPattern{
			{"title_case", regexp.MustCompile(`^([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s*$`)},
			{"all_caps", regexp.MustCompile(`^([A-Z\s]{4,})\s*$`)},
			{"bold_indicators", regexp.MustCompile(`\*\*(.+?)\*\*|\*(.+?)\*`)},
		},
	}
}

// Detect scans text for structure elements and returns the assembled
// hierarchy, textbook-validity verdict and diagnostic statistics.
func (d *Detector) Detect(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{
			Hierarchy: Hierarchy{},
			Warnings:  []string{"empty text provided"},
		}
	}

	elements := d.detectAllElements(text)
	d.assignHierarchyLevels(elements)
	hierarchy := d.buildHierarchy(elements, text)
	valid, warnings := d.validateTextbookStructure(hierarchy)
	stats := d.generateStatistics(elements, text)

	return Result{
		Hierarchy:       hierarchy,
		IsValidTextbook: valid,
		Warnings:        warnings,
		Statistics:      stats,
	}
}

func (d *Detector) detectAllElements(text string) []Element {
	lines := strings.Split(text, "\n")
	elements := make([]Element, 0, len(lines)/8)

	position := 0
	for _, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		lineStart := position
		position += len(rawLine) + 1

		if len(line) < 2 {
			continue
		}

		if el, ok := d.detectChapter(line, lineStart); ok {
			elements = append(elements, el)
			continue
		}
		if el, ok := d.detectSection(line, lineStart); ok {
			elements = append(elements, el)
			continue
		}
		if el, ok := d.detectHeading(line, lineStart); ok {
			elements = append(elements, el)
		}
	}

	return elements
}

func (d *Detector) detectChapter(line string, position int) (Element, bool) {
	for _, p := range d.chapterPatterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		number := m[1]
		title := line
		if len(m) > 2 && m[2] != "" {
			title = m[2]
		}

		confidence := calculateChapterConfidence(p.name, line, number)
		style := determineNumberingStyle(number)

		return Element{
			Type:           TypeChapter,
			Title:          strings.TrimSpace(title),
			Number:         number,
			Level:          0,
			StartPosition:  position,
			Confidence:     confidence,
			NumberingStyle: style,
			RawText:        line,
		}, true
	}
	return Element{}, false
}

func (d *Detector) detectSection(line string, position int) (Element, bool) {
	for _, p := range d.sectionPatterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		number := m[1]
		title := line
		if len(m) > 2 {
			title = m[2]
		}

		level := calculateSectionLevel(number, p.name)
		confidence := calculateSectionConfidence(p.name, line, number)

		structType := TypeSection
		switch level {
		case 2:
			structType = TypeSubsection
		case 3:
			structType = TypeSubsubsection
		}

		return Element{
			Type:           structType,
			Title:          strings.TrimSpace(title),
			Number:         number,
			Level:          level,
			StartPosition:  position,
			Confidence:     confidence,
			NumberingStyle: determineNumberingStyle(number),
			RawText:        line,
		}, true
	}
	return Element{}, false
}

func (d *Detector) detectHeading(line string, position int) (Element, bool) {
	if len(line) < 3 || len(line) > 200 {
		return Element{}, false
	}

	for _, p := range d.headingPatterns {
		if !p.re.MatchString(line) {
			continue
		}
		confidence := calculateHeadingConfidence(p.name, line)
		if confidence < 0.3 {
			continue
		}

		return Element{
			Type:           TypeHeading,
			Title:          strings.TrimSpace(line),
			Level:          2,
			StartPosition:  position,
			Confidence:     confidence,
			NumberingStyle: NumberingNone,
			RawText:        line,
		}, true
	}
	return Element{}, false
}

func (d *Detector) assignHierarchyLevels(elements []Element) {
	currentChapterLevel := 0

	for i := range elements {
		el := &elements[i]
		switch el.Type {
		case TypeChapter:
			el.Level = 0
			currentChapterLevel = 0
		case TypeSection, TypeSubsection, TypeSubsubsection:
			if el.Level <= currentChapterLevel {
				el.Level = currentChapterLevel + 1
			}
		case TypeHeading:
			if currentChapterLevel >= 0 {
				el.Level = max(1, currentChapterLevel+1)
			}
		}
	}
}

func calculateChapterConfidence(patternName, line, number string) float64 {
	base := map[string]float64{
		"standard":        0.9,
		"unit":            0.85,
		"part":            0.8,
		"numbered_simple": 0.6,
		"roman_numbered":  0.7,
		"lesson":          0.75,
		"module":          0.75,
	}[patternName]
	if base == 0 {
		base = 0.5
	}

	if isAllDigits(number) {
		base += 0.05
	}

	switch {
	case len(line) < 5:
		base -= 0.2
	case len(line) > 100:
		base -= 0.1
	}

	lower := strings.ToLower(line)
	for _, word := range []string{"introduction", "overview", "conclusion", "summary"} {
		if strings.Contains(lower, word) {
			base += 0.05
			break
		}
	}

	return clamp01(base)
}

func calculateSectionConfidence(patternName, line, number string) float64 {
	base := map[string]float64{
		"decimal":          0.85,
		"numbered_section": 0.8,
		"subsection":       0.9,
		"letter_section":   0.7,
		"roman_section":    0.65,
	}[patternName]
	if base == 0 {
		base = 0.5
	}

	if strings.Contains(number, ".") {
		allDigits := true
		for _, part := range strings.Split(number, ".") {
			if !isAllDigits(part) {
				allDigits = false
				break
			}
		}
		if allDigits {
			base += 0.05
		}
	}

	if len(strings.Fields(line)) < 2 {
		base -= 0.15
	}

	return clamp01(base)
}

func calculateHeadingConfidence(patternName, line string) float64 {
	base := map[string]float64{
		"title_case":      0.6,
		"all_caps":        0.5,
		"bold_indicators": 0.7,
	}[patternName]
	if base == 0 {
		base = 0.3
	}

	wordCount := len(strings.Fields(line))
	switch {
	case wordCount >= 2 && wordCount <= 10:
		base += 0.1
	case wordCount > 20:
		base -= 0.2
	}

	lower := strings.ToLower(line)
	for _, word := range []string{"introduction", "overview", "definition", "example", "exercise", "summary", "conclusion"} {
		if strings.Contains(lower, word) {
			base += 0.1
			break
		}
	}

	return clamp01(base)
}

func calculateSectionLevel(number, patternName string) int {
	switch patternName {
	case "decimal":
		return strings.Count(number, ".")
	case "subsection":
		return 2
	case "numbered_section", "letter_section":
		return 1
	default:
		return 1
	}
}

func determineNumberingStyle(number string) NumberingStyle {
	switch {
	case number == "":
		return NumberingNone
	case regexp.MustCompile(`^\d+$`).MatchString(number):
		return NumberingArabic
	case regexp.MustCompile(`^[IVXLCDM]+$`).MatchString(number):
		return NumberingRomanUpper
	case regexp.MustCompile(`^[ivxlcdm]+$`).MatchString(number):
		return NumberingRomanLower
	case regexp.MustCompile(`^[A-Z]$`).MatchString(number):
		return NumberingLetterUpper
	case regexp.MustCompile(`^[a-z]$`).MatchString(number):
		return NumberingLetterLower
	case strings.Contains(number, "."):
		return NumberingDecimal
	default:
		return NumberingArabic
	}
}

func (d *Detector) buildHierarchy(elements []Element, text string) Hierarchy {
	chapters, sections := 0, 0
	for _, e := range elements {
		switch e.Type {
		case TypeChapter:
			chapters++
		case TypeSection, TypeSubsection, TypeSubsubsection:
			sections++
		}
	}

	for i := range elements {
		if i < len(elements)-1 {
			elements[i].EndPosition = elements[i+1].StartPosition
		} else {
			elements[i].EndPosition = len(text)
		}
	}

	maxDepth := 0
	var confidenceSum float64
	for _, e := range elements {
		if e.Level > maxDepth {
			maxDepth = e.Level
		}
		confidenceSum += e.Confidence
	}

	numberingConsistency := calculateNumberingConsistency(elements)
	overallConfidence := 0.0
	if len(elements) > 0 {
		overallConfidence = confidenceSum / float64(len(elements))
	}
	quality := d.calculateStructureQuality(elements, numberingConsistency)

	return Hierarchy{
		Elements:             elements,
		TotalChapters:        chapters,
		TotalSections:        sections,
		MaxDepth:             maxDepth,
		NumberingConsistency: numberingConsistency,
		OverallConfidence:    overallConfidence,
		QualityScore:         quality,
	}
}

type levelKey struct {
	t ElementType
	l int
}

func calculateNumberingConsistency(elements []Element) float64 {
	if len(elements) == 0 {
		return 0.0
	}

	groups := map[levelKey][]Element{}
	for _, e := range elements {
		key := levelKey{e.Type, e.Level}
		groups[key] = append(groups[key], e)
	}

	var scores []float64
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		counts := map[NumberingStyle]int{}
		total := 0
		for _, e := range group {
			if e.Number == "" {
				continue
			}
			counts[e.NumberingStyle]++
			total++
		}
		if total == 0 {
			continue
		}
		best := 0
		for _, c := range counts {
			if c > best {
				best = c
			}
		}
		scores = append(scores, float64(best)/float64(total))
	}

	if len(scores) == 0 {
		return 0.5
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func (d *Detector) calculateStructureQuality(elements []Element, numberingConsistency float64) float64 {
	if len(elements) == 0 {
		return 0.0
	}

	var confidenceSum float64
	chapters, sections := 0, 0
	for _, e := range elements {
		confidenceSum += e.Confidence
		if e.Type == TypeChapter {
			chapters++
		} else {
			sections++
		}
	}
	avgConfidence := confidenceSum / float64(len(elements))

	quality := avgConfidence*0.6 + numberingConsistency*0.2

	if chapters >= d.minChapters {
		quality += 0.1
	}

	if sections > 0 && chapters > 0 {
		ratio := float64(sections) / float64(chapters)
		if ratio >= 1 && ratio <= 10 {
			quality += 0.1
		}
	}

	return clamp01(quality)
}

func (d *Detector) validateTextbookStructure(h Hierarchy) (bool, []string) {
	var warnings []string
	valid := true

	if h.TotalChapters < d.minChapters {
		warnings = append(warnings, "insufficient chapters detected")
		valid = false
	}

	if h.QualityScore < d.confidenceThreshold {
		warnings = append(warnings, "low structure quality score")
		valid = false
	}

	if h.TotalChapters > 0 {
		avg := float64(h.TotalSections) / float64(h.TotalChapters)
		switch {
		case avg < 0.5:
			warnings = append(warnings, "very few sections per chapter; structure detection may be incomplete")
		case avg > 20:
			warnings = append(warnings, "too many sections per chapter; may indicate over-detection")
		}
	}

	if h.NumberingConsistency < 0.5 {
		warnings = append(warnings, "inconsistent numbering scheme detected")
	}

	return valid, warnings
}

func (d *Detector) generateStatistics(elements []Element, text string) Statistics {
	stats := Statistics{
		TotalElements:   len(elements),
		ElementTypes:    map[string]int{},
		NumberingStyles: map[string]int{},
	}

	for _, e := range elements {
		stats.ElementTypes[e.Type.String()]++
		stats.NumberingStyles[e.NumberingStyle.String()]++

		switch {
		case e.Confidence > 0.8:
			stats.ConfidenceHigh++
		case e.Confidence > 0.5:
			stats.ConfidenceMedium++
		default:
			stats.ConfidenceLow++
		}
	}

	if len(elements) > 0 && len(text) > 0 {
		var covered, totalLen int
		for _, e := range elements {
			end := e.EndPosition
			if end == 0 {
				end = len(text)
			}
			length := end - e.StartPosition
			covered += length
			totalLen += length
		}
		coverage := float64(covered) / float64(len(text))
		if coverage > 1.0 {
			coverage = 1.0
		}
		stats.TextCoverage = coverage
		stats.AverageElementLength = float64(totalLen) / float64(len(elements))
	}

	return stats
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
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
