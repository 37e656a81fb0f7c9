package ranker

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/termstats"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
)

var genres = []string{"Action", "Adventure", "Animation", "Comedy", "Crime", "Drama", "Fantasy", "Horror", "Romance", "Thriller"}

func benchCorpus(n int) ([]vectorizer.Sparse, *vocabulary.Vocabulary) {
	docs := make([]string, n)
	for i := range docs {
		docs[i] = fmt.Sprintf("Movie %d (%d) | %s|%s", i, 1950+i%70, genres[i%len(genres)], genres[(i/3)%len(genres)])
	}
	counts := termstats.CorpusTermCounts(tokenizer.TokenizeAll(docs))
	vocab := vocabulary.Build(counts)
	vecs := make([]vectorizer.Sparse, n)
	for i, c := range counts {
		vecs[i] = vectorizer.TFIDF(termstats.TermFrequency(c), vocab.IDF)
	}
	return vecs, vocab
}

func BenchmarkRank(b *testing.B) {
	for _, n := range []int{1000, 10000} {
		vecs, vocab := benchCorpus(n)
		query := vectorizer.Weights("crime thriller 1995", vocab)
		b.Run(fmt.Sprintf("docs=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Rank(query, vecs, 10)
			}
		})
	}
}

func BenchmarkCosineSimilarity(b *testing.B) {
	vecs, vocab := benchCorpus(100)
	query := vectorizer.Weights("animation adventure", vocab)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CosineSimilarity(query, vecs[i%len(vecs)])
	}
}
