package protected

import "regexp"

var examplePatterns = compileAll(
	`(?i)(?:Example|Ex\.?)\s*\d*[:.]?\s*([^.!?]+)`,
	`(?i)(?:Exercise|Problem)\s*\d*[:.]?\s*([^.!?]+)`,
	`(?i)(?:Consider|Suppose)\s+the\s+(?:following|case|example)`,
	`(?i)(?:For\s+instance|For\s+example)[,:]?\s*([^.!?]+)`,
)

var solutionPatterns = compileAll(
	`(?i)(?:Solution|Answer|Proof)[:.]?\s*`,
	`(?i)(?:We\s+(?:have|get|obtain|find)|Therefore|Thus|Hence)[,:]?\s*`,
)

var paragraphBreakRE = regexp.MustCompile(`\n\s*\n`)

// DetectExamples finds worked examples and exercises, extending each region
// to include its solution when one follows within a reasonable distance.
func DetectExamples(text string) []Region {
	var found []Region
	for _, re := range examplePatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			start := loc[0]
			end := findExampleEnd(text, start)
			found = append(found, Region{Start: start, End: end, Kind: "example"})
		}
	}
	return mergeExampleRegions(found)
}

func findExampleEnd(text string, startPos int) int {
	remaining := text[startPos:]

	solutionStart := -1
	for _, re := range solutionPatterns {
		loc := re.FindStringIndex(remaining)
		if loc != nil && loc[0] < 500 {
			solutionStart = startPos + loc[0]
			break
		}
	}

	if solutionStart >= 0 {
		solutionText := text[solutionStart:]

		for _, re := range examplePatterns {
			loc := re.FindStringIndex(solutionText)
			if loc != nil && loc[0] > 50 {
				return solutionStart + loc[0]
			}
		}

		if loc := paragraphBreakRE.FindStringIndex(solutionText); loc != nil && loc[0] > 50 {
			return solutionStart + loc[0]
		}
		return minInt(solutionStart+300, len(text))
	}

	if loc := paragraphBreakRE.FindStringIndex(remaining); loc != nil {
		return startPos + loc[0]
	}
	return minInt(startPos+200, len(text))
}

func mergeExampleRegions(regions []Region) []Region {
	return mergeWithProximity(regions, 0, false)
}
