package agent

import (
	"regexp"
	"strings"
)

// finalAnswerRE captures the text between the literal "Final Answer:"
// label and the next bold markdown header opening a line, or the end of
// the text when no header follows.
var finalAnswerRE = regexp.MustCompile(`(?s)Final Answer:\s*(.*?)\s*(?:\n\*\*[^\n]+\*\*|\z)`)

// ExtractFinalAnswer pulls the labeled final answer out of a moderator
// narrative. When the label is missing, or nothing follows it, the whole
// text is the answer.
func ExtractFinalAnswer(text string) string {
	m := finalAnswerRE.FindStringSubmatch(text)
	if m != nil {
		if answer := strings.TrimSpace(m[1]); answer != "" {
			return answer
		}
	}
	return strings.TrimSpace(text)
}
