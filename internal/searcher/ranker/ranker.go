// Package ranker scores sparse TF-IDF vectors by cosine similarity and
// selects a stable top-k.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vectorizer"
)

// ScoredDoc is a candidate's position in the input slice and its score.
type ScoredDoc struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// CosineSimilarity is the dot product over shared terms divided by the
// product of both full norms. It returns 0 when either vector is zero.
func CosineSimilarity(a, b vectorizer.Sparse) float64 {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for term, w := range small {
		if x, ok := large[term]; ok {
			dot += w * x
		}
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

func norm(v vectorizer.Sparse) float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Rank scores every candidate against query and returns at most topK
// results by descending score. Equal scores keep candidate order. topK <= 0
// yields an empty result.
func Rank(query vectorizer.Sparse, candidates []vectorizer.Sparse, topK int) []ScoredDoc {
	if topK <= 0 {
		return []ScoredDoc{}
	}
	result := make([]ScoredDoc, len(candidates))
	for i, c := range candidates {
		result[i] = ScoredDoc{Index: i, Score: CosineSimilarity(query, c)}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	if len(result) > topK {
		result = result[:topK]
	}
	return result
}
