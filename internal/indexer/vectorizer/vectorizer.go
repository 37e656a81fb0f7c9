// Package vectorizer converts sparse term weights into dense vectors aligned
// to a vocabulary snapshot and back.
package vectorizer

import (
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/termstats"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
)

// Sparse maps a term to a non-negative weight.
type Sparse map[string]float64

// SparseToDense places each weight at its term's index. Terms missing from
// index are dropped.
func SparseToDense(weights Sparse, index map[string]int) []float32 {
	vec := make([]float32, len(index))
	for term, w := range weights {
		if i, ok := index[term]; ok {
			vec[i] = float32(w)
		}
	}
	return vec
}

// DenseToSparse keeps the entries of vec strictly greater than threshold,
// keyed by the term at the same position in terms.
func DenseToSparse(vec []float32, terms []string, threshold float64) Sparse {
	out := make(Sparse)
	for i, v := range vec {
		if i >= len(terms) {
			break
		}
		if float64(v) > threshold {
			out[terms[i]] = float64(v)
		}
	}
	return out
}

// TFIDF weights each term frequency by its IDF. Terms absent from idf weigh 0.
func TFIDF(tf termstats.Frequencies, idf map[string]float64) Sparse {
	out := make(Sparse, len(tf))
	for term, f := range tf {
		out[term] = f * idf[term]
	}
	return out
}

// Weights runs text through the tokenizer and returns its TF-IDF weights
// under v.
func Weights(text string, v *vocabulary.Vocabulary) Sparse {
	tf := termstats.TermFrequency(termstats.TermCounts(tokenizer.Tokenize(text)))
	return TFIDF(tf, v.IDF)
}

// Vectorize returns the dense TF-IDF vector of text under v.
func Vectorize(text string, v *vocabulary.Vocabulary) []float32 {
	return SparseToDense(Weights(text, v), v.Index)
}

// IsZero reports whether every component of vec is zero.
func IsZero(vec []float32) bool {
	for _, x := range vec {
		if x != 0 {
			return false
		}
	}
	return true
}
