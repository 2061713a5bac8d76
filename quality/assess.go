package quality

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/learntrac/backend/structuredetect"
)

// Assessor scores a structuredetect.Hierarchy and recommends a chunking
// strategy. Weights are fixed at construction to the four components the
// original assessment formula uses.
type Assessor struct {
	strategyThreshold       float64
	minChaptersForStructure int
	maxSectionsPerChapter   int

	weightHeading   float64
	weightChapters  float64
	weightSections  float64
	weightHierarchy float64
}

// NewAssessor builds an Assessor. strategyThreshold is the minimum overall
// quality score for content-aware chunking; minChaptersForStructure and
// maxSectionsPerChapter bound what counts as a well-structured textbook.
func NewAssessor(strategyThreshold float64, minChaptersForStructure, maxSectionsPerChapter int) *Assessor {
	return &Assessor{
		strategyThreshold:       strategyThreshold,
		minChaptersForStructure: minChaptersForStructure,
		maxSectionsPerChapter:   maxSectionsPerChapter,
		weightHeading:           0.4,
		weightChapters:          0.3,
		weightSections:          0.2,
		weightHierarchy:         0.1,
	}
}

// Assess scores a detection result and recommends a chunking strategy.
func (a *Assessor) Assess(result structuredetect.Result) Assessment {
	elements := result.Hierarchy.Elements
	if len(elements) == 0 {
		return a.poorQualityAssessment("no structural elements found")
	}
	hierarchy := result.Hierarchy

	headingConsistency := a.assessHeadingConsistency(elements)
	chapterBoundary := a.assessChapterBoundaries(elements)
	sectionOrg := a.assessSectionOrganization(elements, hierarchy)
	hierarchyLogic := a.assessHierarchyLogic(elements)

	overall := headingConsistency*a.weightHeading +
		chapterBoundary*a.weightChapters +
		sectionOrg*a.weightSections +
		hierarchyLogic*a.weightHierarchy

	strategy, confidence := a.determineStrategy(overall, hierarchy)

	chapters, sections, subsections := partitionByType(elements)
	hasClearChapters := len(chapters) >= a.minChaptersForStructure
	hasLogicalHierarchy := hierarchy.MaxDepth >= 1 && len(chapters) > 0
	avgSectionsPerChapter := float64(len(sections)) / float64(maxInt(1, len(chapters)))

	warnings := a.generateWarnings(hierarchy, len(chapters), avgSectionsPerChapter)
	suggestions := a.generateImprovementSuggestions(overall, hierarchy, len(chapters), avgSectionsPerChapter, hasLogicalHierarchy)

	return Assessment{
		OverallQualityScore:          overall,
		RecommendedStrategy:          strategy,
		Confidence:                   confidence,
		HeadingConsistencyScore:      headingConsistency,
		ChapterBoundaryScore:         chapterBoundary,
		SectionOrganizationScore:     sectionOrg,
		HierarchyLogicScore:          hierarchyLogic,
		TotalStructuralElements:      len(elements),
		ChapterCount:                 len(chapters),
		SectionCount:                 len(sections),
		SubsectionCount:              len(subsections),
		MaxHierarchyDepth:            hierarchy.MaxDepth,
		NumberingConsistency:         hierarchy.NumberingConsistency,
		HasClearChapters:             hasClearChapters,
		HasLogicalHierarchy:          hasLogicalHierarchy,
		HasConsistentNumbering:       hierarchy.NumberingConsistency > 0.7,
		SupportsEducationalChunking:  overall >= a.strategyThreshold,
		Warnings:                     warnings,
		ImprovementSuggestions:       suggestions,
	}
}

func partitionByType(elements []structuredetect.Element) (chapters, sections, subsections []structuredetect.Element) {
	for _, e := range elements {
		switch e.Type {
		case structuredetect.TypeChapter:
			chapters = append(chapters, e)
		case structuredetect.TypeSection:
			sections = append(sections, e)
		case structuredetect.TypeSubsection:
			subsections = append(subsections, e)
		}
	}
	return
}

type elemKey struct {
	t structuredetect.ElementType
	l int
}

func (a *Assessor) assessHeadingConsistency(elements []structuredetect.Element) float64 {
	typeLevelGroups := map[elemKey][]structuredetect.Element{}
	numberingStyles := map[structuredetect.ElementType]map[structuredetect.NumberingStyle]bool{}
	titlesByType := map[structuredetect.ElementType][]string{}

	for _, e := range elements {
		key := elemKey{e.Type, e.Level}
		typeLevelGroups[key] = append(typeLevelGroups[key], e)

		if e.NumberingStyle != structuredetect.NumberingNone {
			if numberingStyles[e.Type] == nil {
				numberingStyles[e.Type] = map[structuredetect.NumberingStyle]bool{}
			}
			numberingStyles[e.Type][e.NumberingStyle] = true
		}
		if e.Title != "" {
			titlesByType[e.Type] = append(titlesByType[e.Type], e.Title)
		}
	}

	var scores []float64
	for _, styles := range numberingStyles {
		if len(styles) == 1 {
			scores = append(scores, 1.0)
		} else {
			scores = append(scores, 1.0/float64(len(styles)))
		}
	}

	scores = append(scores, checkLevelConsistency(typeLevelGroups))
	scores = append(scores, checkTitleFormatConsistency(titlesByType))
	scores = append(scores, checkSequentialNumbering(elements))

	return mean(scores)
}

func checkLevelConsistency(groups map[elemKey][]structuredetect.Element) float64 {
	expected := map[structuredetect.ElementType]int{
		structuredetect.TypeChapter:    0,
		structuredetect.TypeSection:    1,
		structuredetect.TypeSubsection: 2,
	}

	violations, totalChecks := 0, 0
	for key := range groups {
		if want, ok := expected[key.t]; ok {
			totalChecks++
			if key.l != want {
				violations++
			}
		}
	}
	if totalChecks == 0 {
		return 1.0
	}
	return 1.0 - float64(violations)/float64(totalChecks)
}

var leadingDigitRE = regexp.MustCompile(`^\d`)

func checkTitleFormatConsistency(titlesByType map[structuredetect.ElementType][]string) float64 {
	var scores []float64
	for _, titles := range titlesByType {
		if len(titles) < 2 {
			scores = append(scores, 1.0)
			continue
		}
		startsWithNumber, containsColon, allCaps, titleCase := 0, 0, 0, 0
		for _, t := range titles {
			if leadingDigitRE.MatchString(t) {
				startsWithNumber++
			}
			if strings.Contains(t, ":") {
				containsColon++
			}
			if isAllUpper(t) {
				allCaps++
			}
			if isTitleCase(t) {
				titleCase++
			}
		}
		maxPattern := maxInt(maxInt(startsWithNumber, containsColon), maxInt(allCaps, titleCase))
		scores = append(scores, float64(maxPattern)/float64(len(titles)))
	}
	if len(scores) == 0 {
		return 0.5
	}
	return mean(scores)
}

var numericRE = regexp.MustCompile(`\d+`)

func checkSequentialNumbering(elements []structuredetect.Element) float64 {
	groups := map[elemKey][]structuredetect.Element{}
	for _, e := range elements {
		key := elemKey{e.Type, e.Level}
		groups[key] = append(groups[key], e)
	}

	var scores []float64
	for _, group := range groups {
		if len(group) < 2 {
			scores = append(scores, 1.0)
			continue
		}
		sorted := append([]structuredetect.Element(nil), group...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartPosition < sorted[j].StartPosition })

		var numbers []int
		for _, e := range sorted {
			if e.Number == "" {
				continue
			}
			if m := numericRE.FindString(e.Number); m != "" {
				numbers = append(numbers, atoi(m))
			}
		}
		if len(numbers) < 2 {
			scores = append(scores, 0.5)
			continue
		}
		sequential := 0
		for i := 0; i < len(numbers)-1; i++ {
			if numbers[i+1] == numbers[i]+1 {
				sequential++
			}
		}
		scores = append(scores, float64(sequential)/float64(len(numbers)-1))
	}
	if len(scores) == 0 {
		return 0.5
	}
	return mean(scores)
}

func (a *Assessor) assessChapterBoundaries(elements []structuredetect.Element) float64 {
	chapters, _, _ := partitionByType(elements)
	if len(chapters) == 0 {
		return 0.0
	}

	var scores []float64
	scores = append(scores, math.Min(1.0, float64(len(chapters))/float64(a.minChaptersForStructure)))

	if len(chapters) > 1 {
		scores = append(scores, assessChapterSpacing(chapters))
	}
	scores = append(scores, assessChapterTitleQuality(chapters))
	scores = append(scores, assessChapterLengthConsistency(chapters))

	return mean(scores)
}

func assessChapterSpacing(chapters []structuredetect.Element) float64 {
	sorted := append([]structuredetect.Element(nil), chapters...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartPosition < sorted[j].StartPosition })

	var spacings []float64
	for i := 0; i < len(sorted)-1; i++ {
		end := sorted[i].EndPosition
		if end == 0 {
			end = sorted[i].StartPosition
		}
		spacings = append(spacings, float64(sorted[i+1].StartPosition-end))
	}
	if len(spacings) == 0 {
		return 0.5
	}

	avg := mean(spacings)
	var variance float64
	for _, s := range spacings {
		variance += (s - avg) * (s - avg)
	}
	variance /= float64(len(spacings))

	consistency := 1.0 / (1.0 + variance/math.Max(1, avg))
	adequacy := math.Min(1.0, avg/100)
	return (consistency + adequacy) / 2
}

var educationalKeywords = []string{
	"introduction", "overview", "fundamentals", "advanced",
	"principles", "concepts", "theory", "practice", "applications",
}

func assessChapterTitleQuality(chapters []structuredetect.Element) float64 {
	var scores []float64
	for _, ch := range chapters {
		title := strings.TrimSpace(ch.Title)
		if title == "" {
			scores = append(scores, 0.0)
			continue
		}
		score := 0.5
		words := strings.Fields(title)
		if len(words) >= 5 && len(words) <= 10 {
			score += 0.2
		}
		if isTitleCase(title) || isAllUpper(title) {
			score += 0.15
		}
		lower := strings.ToLower(title)
		for _, kw := range educationalKeywords {
			if strings.Contains(lower, kw) {
				score += 0.15
				break
			}
		}
		scores = append(scores, math.Min(1.0, score))
	}
	return mean(scores)
}

func assessChapterLengthConsistency(chapters []structuredetect.Element) float64 {
	if len(chapters) < 2 {
		return 1.0
	}
	var lengths []float64
	for _, ch := range chapters {
		if ch.EndPosition > 0 {
			lengths = append(lengths, float64(ch.EndPosition-ch.StartPosition))
		}
	}
	if len(lengths) < 2 {
		return 0.5
	}
	avg := mean(lengths)
	cv := coefficientOfVariation(lengths, avg)
	return math.Max(0.0, 1.0-cv/0.7)
}

func (a *Assessor) assessSectionOrganization(elements []structuredetect.Element, hierarchy structuredetect.Hierarchy) float64 {
	chapters, sections, subsections := partitionByType(elements)
	if len(sections) == 0 && len(chapters) == 0 {
		return 0.3
	}

	var scores []float64
	if len(chapters) > 0 {
		scores = append(scores, a.assessSectionDistribution(chapters, sections))
	}
	scores = append(scores, assessHierarchicalDepth(hierarchy.MaxDepth))
	if len(sections) > 0 {
		scores = append(scores, assessSubsectionRatio(sections, subsections))
	}
	scores = append(scores, assessSectionBalance(sections))

	if len(scores) == 0 {
		return 0.3
	}
	return mean(scores)
}

func (a *Assessor) assessSectionDistribution(chapters, sections []structuredetect.Element) float64 {
	if len(chapters) == 0 || len(sections) == 0 {
		return 0.5
	}

	sorted := append([]structuredetect.Element(nil), chapters...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartPosition < sorted[j].StartPosition })

	counts := make([]int, len(sorted))
	for _, s := range sections {
		for i, ch := range sorted {
			end := math.MaxInt64
			if i+1 < len(sorted) {
				end = sorted[i+1].StartPosition
			}
			if ch.StartPosition <= s.StartPosition && s.StartPosition < end {
				counts[i]++
				break
			}
		}
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount == 0 {
		return 0.2
	}

	goodRange := 0
	excessive := 0
	for _, c := range counts {
		if c >= 1 && c <= 5 {
			goodRange++
		}
		if c > a.maxSectionsPerChapter {
			excessive++
		}
	}
	distribution := float64(goodRange) / float64(len(counts))
	penalty := float64(excessive) / float64(len(counts)) * 0.5
	return math.Max(0.0, distribution-penalty)
}

func assessHierarchicalDepth(maxDepth int) float64 {
	switch {
	case maxDepth == 0:
		return 0.2
	case maxDepth == 1:
		return 0.6
	case maxDepth >= 2 && maxDepth <= 3:
		return 1.0
	case maxDepth == 4:
		return 0.8
	default:
		return 0.5
	}
}

func assessSubsectionRatio(sections, subsections []structuredetect.Element) float64 {
	if len(sections) == 0 {
		return 0.5
	}
	ratio := float64(len(subsections)) / float64(len(sections))
	switch {
	case ratio >= 0.5 && ratio <= 3.0:
		return 1.0
	case ratio < 0.5:
		return 0.7
	default:
		return math.Max(0.0, 1.0-(ratio-3.0)/5.0)
	}
}

func assessSectionBalance(sections []structuredetect.Element) float64 {
	if len(sections) < 2 {
		return 1.0
	}
	var lengths []float64
	for _, s := range sections {
		if s.EndPosition > 0 {
			if l := float64(s.EndPosition - s.StartPosition); l > 0 {
				lengths = append(lengths, l)
			}
		}
	}
	if len(lengths) < 2 {
		return 0.5
	}
	avg := mean(lengths)
	cv := coefficientOfVariation(lengths, avg)
	return math.Max(0.0, 1.0-math.Max(0, cv-0.5)/0.8)
}

func (a *Assessor) assessHierarchyLogic(elements []structuredetect.Element) float64 {
	scores := []float64{
		checkProperNesting(elements),
		checkOrphanedElements(elements),
		checkLogicalProgression(elements),
		checkHierarchyLevelLogic(elements),
	}
	return mean(scores)
}

func checkProperNesting(elements []structuredetect.Element) float64 {
	sorted := append([]structuredetect.Element(nil), elements...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartPosition < sorted[j].StartPosition })

	violations, total := 0, 0
	for i, e := range sorted {
		switch e.Type {
		case structuredetect.TypeSection:
			total++
			foundChapter := false
			for j := i - 1; j >= 0; j-- {
				if sorted[j].Type == structuredetect.TypeChapter {
					foundChapter = true
					break
				}
				if sorted[j].Type == structuredetect.TypeSection {
					break
				}
			}
			if !foundChapter {
				violations++
			}
		case structuredetect.TypeSubsection:
			total++
			foundSection := false
			for j := i - 1; j >= 0; j-- {
				if sorted[j].Type == structuredetect.TypeSection {
					foundSection = true
					break
				}
				if sorted[j].Type == structuredetect.TypeSubsection {
					break
				}
			}
			if !foundSection {
				violations++
			}
		}
	}
	if total == 0 {
		return 1.0
	}
	return 1.0 - float64(violations)/float64(total)
}

func checkOrphanedElements(elements []structuredetect.Element) float64 {
	chapters, sections, subsections := partitionByType(elements)
	penalty := 0.0
	if len(sections) > 0 && len(chapters) == 0 {
		penalty += 0.3
	}
	if len(subsections) > 0 && len(sections) == 0 {
		penalty += 0.4
	}
	return math.Max(0.0, 1.0-penalty)
}

func checkLogicalProgression(elements []structuredetect.Element) float64 {
	byType := map[structuredetect.ElementType][]structuredetect.Element{}
	for _, e := range elements {
		byType[e.Type] = append(byType[e.Type], e)
	}

	var scores []float64
	for _, group := range byType {
		if len(group) < 2 {
			scores = append(scores, 1.0)
			continue
		}
		sorted := append([]structuredetect.Element(nil), group...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartPosition < sorted[j].StartPosition })

		var numbers []int
		for _, e := range sorted {
			if e.Number == "" {
				continue
			}
			if m := numericRE.FindString(e.Number); m != "" {
				numbers = append(numbers, atoi(m))
			}
		}
		if len(numbers) < 2 {
			scores = append(scores, 0.5)
			continue
		}
		increasing := 0
		for i := 0; i < len(numbers)-1; i++ {
			if numbers[i+1] > numbers[i] {
				increasing++
			}
		}
		scores = append(scores, float64(increasing)/float64(len(numbers)-1))
	}
	if len(scores) == 0 {
		return 0.5
	}
	return mean(scores)
}

func checkHierarchyLevelLogic(elements []structuredetect.Element) float64 {
	sorted := append([]structuredetect.Element(nil), elements...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartPosition < sorted[j].StartPosition })

	violations, total := 0, 0
	for i := 0; i < len(sorted)-1; i++ {
		total++
		if sorted[i+1].Level > sorted[i].Level+1 {
			violations++
		}
	}
	if total == 0 {
		return 1.0
	}
	return 1.0 - float64(violations)/float64(total)
}

func (a *Assessor) determineStrategy(qualityScore float64, hierarchy structuredetect.Hierarchy) (Strategy, float64) {
	var strategy Strategy
	var confidence float64

	if qualityScore >= a.strategyThreshold {
		strategy = StrategyContentAware
		confidence = math.Min(1.0, 0.7+(qualityScore-a.strategyThreshold)*0.3/(1.0-a.strategyThreshold))
	} else {
		strategy = StrategyFallback
		confidence = math.Min(1.0, 0.8-(a.strategyThreshold-qualityScore)*0.5/a.strategyThreshold)
	}

	if hierarchy.TotalChapters < a.minChaptersForStructure {
		confidence *= 0.8
	}
	if hierarchy.NumberingConsistency < 0.5 {
		confidence *= 0.9
	}

	if math.Abs(qualityScore-a.strategyThreshold) < 0.1 {
		strategy = StrategyHybrid
		confidence = math.Min(confidence, 0.7)
	}

	return strategy, math.Max(0.1, confidence)
}

func (a *Assessor) generateWarnings(hierarchy structuredetect.Hierarchy, chapterCount int, avgSectionsPerChapter float64) []string {
	var warnings []string

	if chapterCount < a.minChaptersForStructure {
		warnings = append(warnings, fmt.Sprintf(
			"document has only %d chapters, minimum %d recommended for structured chunking",
			chapterCount, a.minChaptersForStructure))
	}
	if hierarchy.NumberingConsistency < 0.5 {
		warnings = append(warnings, fmt.Sprintf("inconsistent numbering detected (consistency: %.2f)", hierarchy.NumberingConsistency))
	}
	if avgSectionsPerChapter > float64(a.maxSectionsPerChapter) {
		warnings = append(warnings, fmt.Sprintf("high section density detected (%.1f sections per chapter)", avgSectionsPerChapter))
	}
	if hierarchy.MaxDepth > 4 {
		warnings = append(warnings, fmt.Sprintf("deep hierarchy detected (%d levels), may complicate chunking", hierarchy.MaxDepth))
	}
	if hierarchy.MaxDepth == 0 {
		warnings = append(warnings, "flat structure detected - no hierarchical organization found")
	}

	return warnings
}

func (a *Assessor) generateImprovementSuggestions(qualityScore float64, hierarchy structuredetect.Hierarchy, chapterCount int, avgSectionsPerChapter float64, hasLogicalHierarchy bool) []string {
	var suggestions []string

	if qualityScore < a.strategyThreshold {
		suggestions = append(suggestions, "consider manual structure review to improve chunking quality")
	}
	if chapterCount == 0 {
		suggestions = append(suggestions, "add chapter markers to enable structure-aware chunking")
	}
	if hierarchy.NumberingConsistency < 0.7 {
		suggestions = append(suggestions, "standardize numbering format across sections and chapters")
	}
	if avgSectionsPerChapter < 1 {
		suggestions = append(suggestions, "consider adding section divisions within chapters")
	}
	if !hasLogicalHierarchy {
		suggestions = append(suggestions, "establish clear hierarchical organization (chapters > sections > subsections)")
	}
	if qualityScore < 0.5 {
		suggestions = append(suggestions, "document may benefit from restructuring before processing")
	}

	return suggestions
}

func (a *Assessor) poorQualityAssessment(reason string) Assessment {
	return Assessment{
		RecommendedStrategy:    StrategyFallback,
		Confidence:             0.9,
		Warnings:               []string{reason},
		ImprovementSuggestions: []string{"improve document structure before processing"},
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func coefficientOfVariation(values []float64, avg float64) float64 {
	if avg == 0 {
		return 0
	}
	var variance float64
	for _, v := range values {
		variance += (v - avg) * (v - avg)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance) / avg
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func isTitleCase(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		runes := []rune(strings.TrimFunc(w, func(r rune) bool {
			return !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
		}))
		if len(runes) == 0 {
			continue
		}
		if !(runes[0] >= 'A' && runes[0] <= 'Z') {
			return false
		}
		for _, r := range runes[1:] {
			if r >= 'A' && r <= 'Z' {
				return false
			}
		}
	}
	return true
}
