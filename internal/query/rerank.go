package query

import (
	"sort"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
)

// termOverlapBoost is added to a result's score once per distinct query term
// that appears in its chunk text.
const termOverlapBoost = 0.05

// rerankByTermOverlap boosts candidates whose chunk text contains literal
// query terms, then restores descending score order. Cosine similarity alone
// can rank a paraphrase above an exact mention; the boost nudges exact
// mentions back up without drowning the semantic signal.
func rerankByTermOverlap(queryText string, results []*models.QueryResult) {
	terms := distinctTerms(queryText)
	if len(terms) == 0 {
		return
	}

	for _, r := range results {
		chunkLower := strings.ToLower(r.ChunkText)
		for term := range terms {
			if strings.Contains(chunkLower, term) {
				r.Score += termOverlapBoost
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func distinctTerms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		terms[w] = struct{}{}
	}
	return terms
}
