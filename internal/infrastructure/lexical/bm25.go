package lexical

import (
	"math"
	"sort"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75

	epsilon = 1e-12
)

type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

type indexedUnit struct {
	id     string
	text   string
	length int
	tf     map[string]int
}

// Index holds BM25 statistics over a fixed set of units. It is immutable
// after Build and safe for concurrent Search calls; a changed corpus needs
// a new Index.
type Index struct {
	params Params
	units  []indexedUnit
	byID   map[string]int
	df     map[string]int
	idf    map[string]float64
	n      int
	avgdl  float64
}

// Build tokenizes every unit and computes DF, IDF and the mean unit length.
// Units keep their input order, which is the tie-break order of Search.
func Build(units []domain.SearchableUnit, params Params) *Index {
	if params.K1 < 0 {
		params.K1 = DefaultK1
	}
	if params.B < 0 || params.B > 1 {
		params.B = DefaultB
	}

	idx := &Index{
		params: params,
		units:  make([]indexedUnit, 0, len(units)),
		byID:   make(map[string]int, len(units)),
		df:     make(map[string]int),
	}

	total := 0
	for _, u := range units {
		tokens := Tokenize(u.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			idx.df[term]++
		}
		total += len(tokens)

		if pos, ok := idx.byID[u.ID]; ok {
			idx.units[pos] = indexedUnit{id: u.ID, text: u.Text, length: len(tokens), tf: tf}
			continue
		}
		idx.byID[u.ID] = len(idx.units)
		idx.units = append(idx.units, indexedUnit{id: u.ID, text: u.Text, length: len(tokens), tf: tf})
	}

	idx.n = len(idx.units)
	if idx.n < 1 {
		idx.n = 1
	}
	idx.avgdl = float64(total) / float64(idx.n)

	idx.idf = make(map[string]float64, len(idx.df))
	n := float64(idx.n)
	for term, df := range idx.df {
		d := float64(df)
		idx.idf[term] = math.Log((n-d+0.5)/(d+0.5) + epsilon)
	}
	return idx
}

func (idx *Index) Len() int { return len(idx.units) }

func (idx *Index) AverageLength() float64 { return idx.avgdl }

func (idx *Index) DocumentFrequency(term string) int { return idx.df[term] }

func (idx *Index) IDF(term string) float64 { return idx.idf[term] }

// Text returns the normalized text of a unit.
func (idx *Index) Text(id string) (string, bool) {
	pos, ok := idx.byID[id]
	if !ok {
		return "", false
	}
	return idx.units[pos].text, true
}

// Search scores every unit against the query and returns the top k units
// with a strictly positive score, best first. Equal scores keep index order.
func (idx *Index) Search(query string, k int) []domain.ScoredResult {
	if k <= 0 {
		return nil
	}
	q := Tokenize(query)
	if len(q) == 0 {
		return nil
	}

	scored := make([]domain.ScoredResult, 0, 64)
	for i := range idx.units {
		s := idx.score(q, &idx.units[i])
		if s > 0 {
			scored = append(scored, domain.ScoredResult{ID: idx.units[i].id, Score: s})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}

func (idx *Index) score(q []string, u *indexedUnit) float64 {
	if len(q) == 0 || u.length == 0 {
		return 0
	}
	k1, b := idx.params.K1, idx.params.B
	dl := float64(u.length)

	s := 0.0
	for _, term := range q {
		f := float64(u.tf[term])
		if f == 0 {
			continue
		}
		denom := f + k1*(1-b+b*dl/(idx.avgdl+epsilon))
		s += idx.idf[term] * ((f * (k1 + 1)) / (denom + epsilon))
	}
	return s
}
