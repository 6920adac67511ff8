package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestEmbedder_Defaults(t *testing.T) {
	e := NewEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())
	assert.Equal(t, "hashing", e.Name())
}

func TestEmbedder_Embed(t *testing.T) {
	e := NewEmbedder(64)
	ctx := context.Background()

	v, err := e.Embed(ctx, "Quarterly revenue grew in the northern region")
	require.NoError(t, err)
	assert.Len(t, v, 64)
	assert.InDelta(t, 1.0, norm(v), 1e-9)

	again, err := e.Embed(ctx, "Quarterly revenue grew in the northern region")
	require.NoError(t, err)
	assert.Equal(t, v, again)
}

func TestEmbedder_StopwordsOnly(t *testing.T) {
	e := NewEmbedder(16)
	v, err := e.Embed(context.Background(), "the and of is")
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 16), v)
}

func TestEmbedder_SimilarTextScoresHigher(t *testing.T) {
	e := NewEmbedder(1024)
	ctx := context.Background()

	q, _ := e.Embed(ctx, "revenue growth")
	related, _ := e.Embed(ctx, "revenue growth was strong this quarter")
	unrelated, _ := e.Embed(ctx, "penguins live near antarctic ice shelves")

	assert.Greater(t, dot(q, related), dot(q, unrelated))
}

func TestEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
