package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForceFit_TruncatesLongerVector(t *testing.T) {
	v := []float32{1, 2, 3, 4, 5}
	got := ForceFit(v, 3)
	assert.Equal(t, []float32{1, 2, 3}, got)
}

func TestForceFit_ZeroPadsShorterVector(t *testing.T) {
	v := []float32{1, 2}
	got := ForceFit(v, 5)
	assert.Equal(t, []float32{1, 2, 0, 0, 0}, got)
}

func TestForceFit_NoOpWhenDimensionsMatch(t *testing.T) {
	v := []float32{1, 2, 3}
	got := ForceFit(v, 3)
	assert.Equal(t, v, got)
}

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_OrthogonalVectorsIsZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarity_MismatchedLengthsIsZero(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1, 2}
	assert.Zero(t, CosineSimilarity(a, b))
}
