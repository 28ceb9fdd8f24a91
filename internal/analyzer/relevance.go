// Package analyzer scores extracted source text against the research query
// so the most relevant sources lead the synthesis prompt.
package analyzer

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// stopwords are query tokens that carry no topical signal.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "how": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "to": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "with": true,
}

// Terms tokenizes a query into lowercase search terms, dropping stopwords
// and single-character tokens.
func Terms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// Score measures how well content matches the given terms. Each term's
// occurrence count is dampened so a single repeated term cannot dominate,
// and the total is normalized by content length so long pages don't win
// on volume alone.
func Score(content string, terms []string) float64 {
	if len(content) == 0 || len(terms) == 0 {
		return 0
	}

	lower := strings.ToLower(content)
	words := float64(len(strings.Fields(lower)))
	if words == 0 {
		return 0
	}

	var total float64
	for _, term := range terms {
		count := strings.Count(lower, term)
		if count == 0 {
			continue
		}
		total += 1 + math.Log1p(float64(count))
	}

	return total / math.Sqrt(words)
}

// Ranked pairs an index into the caller's slice with its relevance score.
type Ranked struct {
	Index int
	Score float64
}

// Rank scores each content string against the query and returns indices
// ordered most relevant first. Ties keep their original order.
func Rank(query string, contents []string) []Ranked {
	terms := Terms(query)

	ranked := make([]Ranked, len(contents))
	for i, c := range contents {
		ranked[i] = Ranked{Index: i, Score: Score(c, terms)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
