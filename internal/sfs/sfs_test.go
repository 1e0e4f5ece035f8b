package sfs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFoldShape3(t *testing.T) {
	q, err := New(Shape{3})
	require.NoError(t, err)
	copy(q.Data(), []float64{1, 2, 3})

	folded := q.Fold()
	require.Equal(t, []float64{4, 2, 0}, folded.Data())
}

func TestFoldShape2x2(t *testing.T) {
	q, err := New(Shape{2, 2})
	require.NoError(t, err)
	copy(q.Data(), []float64{1, 2, 3, 4})

	folded := q.Fold()
	require.Equal(t, []float64{5, 5, 0, 0}, folded.Data())
}

func TestFoldIdempotent(t *testing.T) {
	q, err := New(Shape{4, 3})
	require.NoError(t, err)
	for i := range q.Data() {
		q.Data()[i] = float64(i + 1)
	}
	once := q.Fold()
	twice := once.Fold()
	require.Equal(t, once.Data(), twice.Data())
}

func TestNormaliseSumsToOne(t *testing.T) {
	q, err := New(Shape{3})
	require.NoError(t, err)
	copy(q.Data(), []float64{1, 2, 3})

	require.NoError(t, q.Normalise())
	require.InDelta(t, 1.0, q.Sum(), 1e-12)
}

func TestNormaliseZeroSum(t *testing.T) {
	q, err := New(Shape{3})
	require.NoError(t, err)
	require.Error(t, q.Normalise())
}

func TestTextRoundTrip(t *testing.T) {
	q, err := New(Shape{2, 3})
	require.NoError(t, err)
	for i := range q.Data() {
		q.Data()[i] = float64(i) * 1.5
	}

	var buf bytes.Buffer
	require.NoError(t, q.WriteText(&buf))

	got, err := ReadText(&buf)
	require.NoError(t, err)
	require.True(t, got.Shape().Equal(q.Shape()))
	require.Equal(t, q.Data(), got.Data())
}

func TestNpyRoundTrip(t *testing.T) {
	q, err := New(Shape{2, 2})
	require.NoError(t, err)
	copy(q.Data(), []float64{1, 2, 3, 4})

	var buf bytes.Buffer
	require.NoError(t, q.WriteNpy(&buf))

	got, err := ReadNpy(&buf)
	require.NoError(t, err)
	require.True(t, got.Shape().Equal(q.Shape()))
	require.Equal(t, q.Data(), got.Data())
}

func TestScaleTo(t *testing.T) {
	q, err := New(Shape{2})
	require.NoError(t, err)
	copy(q.Data(), []float64{1, 1})

	require.NoError(t, q.ScaleTo(10))
	require.InDelta(t, 10, q.Sum(), 1e-12)
}

func TestUniformScaledToSiteCount(t *testing.T) {
	q, err := Uniform(Shape{3, 4}, 100)
	require.NoError(t, err)
	require.InDelta(t, 100, q.Sum(), 1e-9)
}
