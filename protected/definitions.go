package protected

import "regexp"

var definitionPatterns = compileAll(
	`(?i)(?:Definition|Define|Definition \d+\.?\d*)[:.]?\s*([^.!?]+)`,
	`(?i)([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s+is\s+(?:defined as|a|an)\s+([^.!?]+)`,
	`(?i)(?:Let|Suppose)\s+([^.!?]+)\s+(?:be|denote|represent)\s+([^.!?]+)`,
	`(?i)(?:We define|By definition)\s+([^.!?]+)`,
)

var sentenceSplitRE = regexp.MustCompile(`[.!?]+\s+`)
var sentenceBoundaryRE = regexp.MustCompile(`[.!?]\s+`)

// DetectDefinitions finds sentences that introduce a definition and extends
// each region to cover its following explanation (one or two sentences).
func DetectDefinitions(text string) []Region {
	var regions []Region

	sentences := sentenceSplitRE.Split(text, -1)
	separators := sentenceSplitRE.FindAllStringIndex(text, -1)
	position := 0
	for i, sentence := range sentences {
		sentenceStart := position
		sentenceEnd := position + len(sentence)

		for _, re := range definitionPatterns {
			if re.MatchString(sentence) {
				end := findDefinitionEnd(text, sentenceEnd)
				regions = append(regions, Region{Start: sentenceStart, End: end, Kind: "definition"})
				break
			}
		}

		if i < len(separators) {
			position = separators[i][1]
		}
	}

	return regions
}

func findDefinitionEnd(text string, startPos int) int {
	if startPos >= len(text) {
		return len(text)
	}
	remaining := text[startPos:]

	var sentenceEnds []int
	for _, loc := range sentenceBoundaryRE.FindAllStringIndex(remaining, -1) {
		if loc[0] == 0 {
			continue // the definition sentence's own terminator
		}
		sentenceEnds = append(sentenceEnds, startPos+loc[1])
		if len(sentenceEnds) >= 2 {
			break
		}
	}

	if len(sentenceEnds) == 0 {
		return minInt(startPos+200, len(text))
	}
	if len(sentenceEnds) >= 2 && sentenceEnds[0]-startPos < 100 {
		return sentenceEnds[1]
	}
	return sentenceEnds[0]
}
