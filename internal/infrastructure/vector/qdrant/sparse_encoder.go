package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	// bm25K saturates repeated terms; the collection applies IDF server side.
	bm25K          = 1.2
	titleBoost     = 1.5
	maxSparseTerms = 256
)

// stopwords carry no signal for keyword matching of caller questions.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "can": {}, "do": {}, "does": {},
	"for": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "of": {},
	"on": {}, "or": {}, "the": {}, "to": {}, "what": {}, "with": {}, "you": {},
}

// termAliases folds listing vocabulary that callers and documents spell
// differently onto one term.
var termAliases = map[string]string{
	"photovoltaic":  "solar",
	"pv":            "solar",
	"panel":         "solar",
	"homeowner":     "hoa",
	"association":   "hoa",
	"sqft":          "squarefeet",
	"acrefeet":      "acrefoot",
	"af":            "acrefoot",
	"adwr":          "waterright",
	"waterrights":   "waterright",
	"groundwater":   "water",
	"municipal":     "water",
	"financing":     "finance",
	"mortgage":      "finance",
	"listing":       "property",
	"home":          "property",
	"house":         "property",
	"septictank":    "septic",
	"manufactured":  "mobilehome",
	"modular":       "mobilehome",
	"easements":     "easement",
	"transferrable": "transferable",
}

type termWeights map[uint32]float64

func encodeSparseDocument(text, title string) sparseVector {
	w := make(termWeights, 64)
	w.add(tokenizeAlphaNum(text), 1)
	w.add(tokenizeAlphaNum(title), titleBoost)
	return w.vector()
}

func encodeSparseQuery(query string) sparseVector {
	w := make(termWeights, 16)
	w.add(tokenizeAlphaNum(query), 1)
	return w.vector()
}

func (w termWeights) add(tokens []string, weight float64) {
	for _, token := range tokens {
		if _, skip := stopwords[token]; skip {
			continue
		}
		if term := normalizeTerm(token); term != "" {
			w[hashToken(term)] += weight
		}
	}
}

// vector keeps the heaviest terms and returns them sorted by index, which
// Qdrant requires for sparse vectors.
func (w termWeights) vector() sparseVector {
	if len(w) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(w))
	for idx := range w {
		indices = append(indices, idx)
	}
	if len(indices) > maxSparseTerms {
		sort.Slice(indices, func(i, j int) bool {
			if w[indices[i]] != w[indices[j]] {
				return w[indices[i]] > w[indices[j]]
			}
			return indices[i] < indices[j]
		})
		indices = indices[:maxSparseTerms]
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		tf := w[idx]
		weight := tf * (bm25K + 1) / (tf + bm25K)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values[i] = float32(weight)
	}
	return sparseVector{Indices: indices, Values: values}
}

// normalizeTerm folds aliases and plural forms so "leases" matches "lease"
// and "PV" matches "solar".
func normalizeTerm(token string) string {
	if alias, ok := termAliases[token]; ok {
		return alias
	}
	switch {
	case len(token) > 4 && strings.HasSuffix(token, "ies"):
		token = token[:len(token)-3] + "y"
	case len(token) > 3 && strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss") && !isDigits(token[:len(token)-1]):
		token = token[:len(token)-1]
	}
	if alias, ok := termAliases[token]; ok {
		return alias
	}
	return token
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}

func tokenizeAlphaNum(s string) []string {
	var (
		out []string
		b   strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}
