package query

import (
	"strings"

	"github.com/google/uuid"
)

var ftsOperators = []string{"NOT", "AND", "OR", "*", ":", "NEAR("}

// ftsParamName is unique per call so several FTS clauses can share a statement
func ftsParamName() string {
	return "FTS_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FTSTerm quotes a search term unless it already uses FTS5 syntax
func FTSTerm(term string) string {
	for _, op := range ftsOperators {
		if strings.Contains(term, op) {
			return term
		}
	}
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// FTSExpression joins include terms with AND (OR when flex) and appends
// each exclusion as NOT term
func FTSExpression(include, exclude []string, flex bool) string {
	terms := make([]string, 0, len(include))
	for _, t := range include {
		terms = append(terms, FTSTerm(t))
	}
	sep := " AND "
	if flex {
		sep = " OR "
	}
	expr := strings.Join(terms, sep)
	if len(terms) > 1 && (flex || len(exclude) > 0) {
		expr = "(" + expr + ")"
	}
	for _, t := range exclude {
		expr += " NOT " + FTSTerm(t)
	}
	return expr
}
