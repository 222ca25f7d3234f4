// Package mcda ranks alternatives over several numeric criteria.
package mcda

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/franz/media-librarian/internal/util"
)

// Method names a ranking procedure
type Method string

const (
	TOPSIS Method = "topsis"
	MABAC  Method = "mabac"
	SPOTIS Method = "spotis"
	Borda  Method = "borda"
)

// Criterion is one column; Minimize turns it into a cost criterion
type Criterion struct {
	Column   string
	Minimize bool
}

// Spec is a parsed "mcda [method] col,-col" sort entry
type Spec struct {
	Method   Method
	Criteria []Criterion
}

// ParseSpec parses the text after "mcda"
func ParseSpec(s string) (Spec, error) {
	spec := Spec{Method: TOPSIS}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	for _, f := range fields {
		switch Method(strings.ToLower(f)) {
		case TOPSIS, MABAC, SPOTIS, Borda:
			spec.Method = Method(strings.ToLower(f))
			continue
		}
		c := Criterion{Column: f}
		if strings.HasPrefix(f, "-") {
			c = Criterion{Column: f[1:], Minimize: true}
		}
		if c.Column == "" {
			continue
		}
		spec.Criteria = append(spec.Criteria, c)
	}
	if len(spec.Criteria) == 0 {
		return spec, fmt.Errorf("mcda needs at least one column: %w", util.ErrBadPredicate)
	}
	return spec, nil
}

// EntropyWeights derives criteria weights from how much each column varies
func EntropyWeights(matrix [][]float64) []float64 {
	m := len(matrix)
	if m == 0 {
		return nil
	}
	n := len(matrix[0])
	weights := make([]float64, n)
	if m == 1 {
		for j := range weights {
			weights[j] = 1 / float64(n)
		}
		return weights
	}

	k := 1 / math.Log(float64(m))
	var total float64
	for j := 0; j < n; j++ {
		minV := math.Inf(1)
		for i := 0; i < m; i++ {
			minV = math.Min(minV, matrix[i][j])
		}
		shift := 0.0
		if minV < 0 {
			shift = -minV
		}
		var sum float64
		for i := 0; i < m; i++ {
			sum += matrix[i][j] + shift
		}
		var entropy float64
		if sum > 0 {
			for i := 0; i < m; i++ {
				p := (matrix[i][j] + shift) / sum
				if p > 0 {
					entropy -= p * math.Log(p)
				}
			}
			entropy *= k
		} else {
			entropy = 1
		}
		weights[j] = 1 - entropy
		total += weights[j]
	}

	for j := range weights {
		if total == 0 {
			weights[j] = 1 / float64(n)
		} else {
			weights[j] /= total
		}
	}
	return weights
}

// Topsis scores by relative closeness to the ideal solution; higher is better
func Topsis(matrix [][]float64, weights []float64, criteria []Criterion) []float64 {
	m, n := len(matrix), len(criteria)
	norms := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			norms[j] += matrix[i][j] * matrix[i][j]
		}
		norms[j] = math.Sqrt(norms[j])
	}

	v := make([][]float64, m)
	for i := range v {
		v[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if norms[j] > 0 {
				v[i][j] = weights[j] * matrix[i][j] / norms[j]
			}
		}
	}

	best := make([]float64, n)
	worst := make([]float64, n)
	for j := 0; j < n; j++ {
		hi, lo := math.Inf(-1), math.Inf(1)
		for i := 0; i < m; i++ {
			hi = math.Max(hi, v[i][j])
			lo = math.Min(lo, v[i][j])
		}
		if criteria[j].Minimize {
			best[j], worst[j] = lo, hi
		} else {
			best[j], worst[j] = hi, lo
		}
	}

	scores := make([]float64, m)
	for i := 0; i < m; i++ {
		var dBest, dWorst float64
		for j := 0; j < n; j++ {
			dBest += (v[i][j] - best[j]) * (v[i][j] - best[j])
			dWorst += (v[i][j] - worst[j]) * (v[i][j] - worst[j])
		}
		dBest, dWorst = math.Sqrt(dBest), math.Sqrt(dWorst)
		if dBest+dWorst > 0 {
			scores[i] = dWorst / (dBest + dWorst)
		}
	}
	return scores
}

// Mabac scores by distance from the border approximation area; higher is better
func Mabac(matrix [][]float64, weights []float64, criteria []Criterion) []float64 {
	m, n := len(matrix), len(criteria)
	v := make([][]float64, m)
	for i := range v {
		v[i] = make([]float64, n)
	}

	for j := 0; j < n; j++ {
		hi, lo := math.Inf(-1), math.Inf(1)
		for i := 0; i < m; i++ {
			hi = math.Max(hi, matrix[i][j])
			lo = math.Min(lo, matrix[i][j])
		}
		for i := 0; i < m; i++ {
			norm := 1.0
			if hi > lo {
				if criteria[j].Minimize {
					norm = (matrix[i][j] - hi) / (lo - hi)
				} else {
					norm = (matrix[i][j] - lo) / (hi - lo)
				}
			}
			v[i][j] = weights[j] * (norm + 1)
		}
	}

	border := make([]float64, n)
	for j := 0; j < n; j++ {
		var logSum float64
		for i := 0; i < m; i++ {
			logSum += math.Log(v[i][j])
		}
		border[j] = math.Exp(logSum / float64(m))
	}

	scores := make([]float64, m)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			scores[i] += v[i][j] - border[j]
		}
	}
	return scores
}

// Spotis scores by weighted normalized distance to the ideal point. The
// distance is negated so that, like the others, higher is better.
func Spotis(matrix [][]float64, weights []float64, criteria []Criterion) []float64 {
	m, n := len(matrix), len(criteria)
	hi := make([]float64, n)
	lo := make([]float64, n)
	for j := 0; j < n; j++ {
		hi[j], lo[j] = math.Inf(-1), math.Inf(1)
		for i := 0; i < m; i++ {
			hi[j] = math.Max(hi[j], matrix[i][j])
			lo[j] = math.Min(lo[j], matrix[i][j])
		}
	}

	scores := make([]float64, m)
	for i := 0; i < m; i++ {
		var d float64
		for j := 0; j < n; j++ {
			span := hi[j] - lo[j]
			if span == 0 {
				continue
			}
			ideal := hi[j]
			if criteria[j].Minimize {
				ideal = lo[j]
			}
			d += weights[j] * math.Abs(matrix[i][j]-ideal) / span
		}
		scores[i] = -d
	}
	return scores
}

// BordaCount sums rank points from several score vectors
func BordaCount(scoreSets ...[]float64) []float64 {
	if len(scoreSets) == 0 {
		return nil
	}
	m := len(scoreSets[0])
	points := make([]float64, m)
	for _, scores := range scoreSets {
		order := Order(scores)
		for rank, idx := range order {
			points[idx] += float64(m - 1 - rank)
		}
	}
	return points
}

// Order returns indices sorted by score descending; ties keep input order
func Order(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	return idx
}

// Scores applies spec to matrix, one row per alternative
func Scores(matrix [][]float64, spec Spec) []float64 {
	if len(matrix) == 0 {
		return nil
	}
	w := EntropyWeights(matrix)
	switch spec.Method {
	case MABAC:
		return Mabac(matrix, w, spec.Criteria)
	case SPOTIS:
		return Spotis(matrix, w, spec.Criteria)
	case Borda:
		return BordaCount(
			Topsis(matrix, w, spec.Criteria),
			Mabac(matrix, w, spec.Criteria),
			Spotis(matrix, w, spec.Criteria),
		)
	default:
		return Topsis(matrix, w, spec.Criteria)
	}
}
