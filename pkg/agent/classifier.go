package agent

import (
	"strings"
	"unicode"

	"github.com/refinehq/refinery/pkg/models"
)

// keywordTable maps signal words to a query kind. Entries are listed in
// tie-break order: when a query matches several sets, the earliest wins.
var keywordTable = []struct {
	kind     models.QueryKind
	keywords []string
}{
	{models.QueryKindRevenue, []string{"revenue", "money", "income", "pricing", "monetization", "profit", "earnings"}},
	{models.QueryKindUXUI, []string{"ui", "ux", "design", "user experience", "interface", "usability", "accessibility"}},
	{models.QueryKindTechnical, []string{"technical", "architecture", "code", "database", "api", "infrastructure", "scalability"}},
	{models.QueryKindDomain, []string{"business", "domain", "market", "industry", "compliance", "regulation"}},
}

// Classify computes the routing verdict for a query. It is fully
// deterministic: keyword matching over whole words, an optional focus
// hint override, and follow-up detection from the thread history length.
// An empty or whitespace-only query is invalid input.
func Classify(query string, historyLen int, focusHint string) (models.Classification, error) {
	if strings.TrimSpace(query) == "" {
		return models.Classification{}, NewValidationError("query", "must not be empty")
	}

	c := models.Classification{
		QueryKind:  models.QueryKindGeneral,
		IsFollowup: historyLen > 0,
	}

	tokens := tokenize(query)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = struct{}{}
	}

scan:
	for _, entry := range keywordTable {
		for _, kw := range entry.keywords {
			if matchKeyword(tokens, tokenSet, kw) {
				c.QueryKind = entry.kind
				break scan
			}
		}
	}

	// A focus hint naming a specialist overrides the keyword scan.
	// "general" and unknown hints leave the scan result in place.
	if hint, ok := specialistKind(models.QueryKind(focusHint)); ok {
		c.QueryKind = hint
	}

	if c.IsFollowup {
		if role, ok := kindRole(c.QueryKind); ok {
			c.ShortcutTarget = role
		} else {
			// No specialist signal on a follow-up: one moderator pass
			// over the accumulated thread state answers it.
			c.ShortcutTarget = models.RoleModerator
		}
	}

	return c, nil
}

// tokenize lowercases the query and splits it into alphanumeric words,
// so "UX/UI" yields both tokens and "build" does not contain "ui".
func tokenize(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchKeyword reports whether the keyword occurs in the query as whole
// words. Multi-word keywords must appear as consecutive tokens.
func matchKeyword(tokens []string, tokenSet map[string]struct{}, keyword string) bool {
	parts := strings.Fields(keyword)
	if len(parts) == 1 {
		_, ok := tokenSet[parts[0]]
		return ok
	}
	for i := 0; i+len(parts) <= len(tokens); i++ {
		matched := true
		for j, p := range parts {
			if tokens[i+j] != p {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// specialistKind returns k when it names one of the four specialist
// kinds, which are the only values a focus hint may force.
func specialistKind(k models.QueryKind) (models.QueryKind, bool) {
	switch k {
	case models.QueryKindDomain, models.QueryKindUXUI, models.QueryKindTechnical, models.QueryKindRevenue:
		return k, true
	}
	return "", false
}

// kindRole maps a specialist query kind to the role handling it.
func kindRole(k models.QueryKind) (models.Role, bool) {
	switch k {
	case models.QueryKindDomain:
		return models.RoleDomain, true
	case models.QueryKindUXUI:
		return models.RoleUXUI, true
	case models.QueryKindTechnical:
		return models.RoleTechnical, true
	case models.QueryKindRevenue:
		return models.RoleRevenue, true
	}
	return "", false
}
