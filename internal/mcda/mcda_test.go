package mcda

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/media-librarian/internal/util"
)

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec("mabac size,-duration")
	require.NoError(t, err)
	assert.Equal(t, MABAC, spec.Method)
	assert.Equal(t, []Criterion{{Column: "size"}, {Column: "duration", Minimize: true}}, spec.Criteria)

	spec, err = ParseSpec("size")
	require.NoError(t, err)
	assert.Equal(t, TOPSIS, spec.Method)

	_, err = ParseSpec("spotis")
	assert.True(t, errors.Is(err, util.ErrBadPredicate))
}

func TestEntropyWeights(t *testing.T) {
	// the constant column carries no information
	matrix := [][]float64{{1, 5}, {2, 5}, {10, 5}}
	w := EntropyWeights(matrix)
	require.Len(t, w, 2)
	assert.InDelta(t, 1.0, w[0], 1e-9)
	assert.InDelta(t, 0.0, w[1], 1e-9)

	w = EntropyWeights([][]float64{{3, 4}})
	assert.Equal(t, []float64{0.5, 0.5}, w)
}

func TestMethodsAgreeOnDominantAlternative(t *testing.T) {
	// row 2 is best on both: largest size, shortest duration
	matrix := [][]float64{
		{100, 600},
		{200, 300},
		{900, 60},
		{400, 1200},
	}
	criteria := []Criterion{{Column: "size"}, {Column: "duration", Minimize: true}}

	for _, method := range []Method{TOPSIS, MABAC, SPOTIS, Borda} {
		t.Run(string(method), func(t *testing.T) {
			scores := Scores(matrix, Spec{Method: method, Criteria: criteria})
			require.Len(t, scores, 4)
			assert.Equal(t, 2, Order(scores)[0])
			for _, s := range scores {
				assert.False(t, math.IsNaN(s))
			}
		})
	}
}

func TestOrderIsStable(t *testing.T) {
	assert.Equal(t, []int{1, 0, 2, 3}, Order([]float64{1, 2, 1, 0}))
}

func TestBordaCount(t *testing.T) {
	points := BordaCount([]float64{3, 2, 1}, []float64{1, 3, 2})
	assert.Equal(t, []float64{2, 3, 1}, points)
}
