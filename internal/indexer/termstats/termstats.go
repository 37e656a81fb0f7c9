// Package termstats derives per-document term counts, term frequencies and
// corpus-wide document frequencies from token streams.
package termstats

// Counts maps a term to its number of occurrences in one document.
type Counts map[string]int

// Frequencies maps a term to its share of a document's tokens.
type Frequencies map[string]float64

// TermCounts counts occurrences of each token.
func TermCounts(tokens []string) Counts {
	counts := make(Counts, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

// Total is the number of tokens the counts were built from.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// TermFrequency divides each count by the document's token total. A document
// without tokens yields an empty map.
func TermFrequency(counts Counts) Frequencies {
	total := counts.Total()
	tf := make(Frequencies, len(counts))
	if total == 0 {
		return tf
	}
	for term, n := range counts {
		tf[term] = float64(n) / float64(total)
	}
	return tf
}

// CorpusTermCounts applies TermCounts to each document in order.
func CorpusTermCounts(docs [][]string) []Counts {
	out := make([]Counts, len(docs))
	for i, tokens := range docs {
		out[i] = TermCounts(tokens)
	}
	return out
}

// CorpusTermFrequency applies TermFrequency to each document in order.
func CorpusTermFrequency(counts []Counts) []Frequencies {
	out := make([]Frequencies, len(counts))
	for i, c := range counts {
		out[i] = TermFrequency(c)
	}
	return out
}

// DocumentFrequency counts, for every term, the documents containing it at
// least once.
func DocumentFrequency(counts []Counts) map[string]int {
	df := make(map[string]int)
	for _, c := range counts {
		for term, n := range c {
			if n > 0 {
				df[term]++
			}
		}
	}
	return df
}
