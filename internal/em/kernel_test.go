package em

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/winsfs/winsfs/internal/sfs"
	"github.com/winsfs/winsfs/internal/site"
)

func TestEvaluateSingleSiteProportional(t *testing.T) {
	q, err := sfs.New(sfs.Shape{3})
	require.NoError(t, err)
	q.Fill(1.0 / 3.0)

	block := []site.Site{{site.Likelihoods{0.1, 0.7, 0.2}}}
	scratch := NewScratch(q.Shape())

	res, err := Evaluate(q, block, scratch)
	require.NoError(t, err)
	require.Equal(t, 0, res.Skipped)

	require.NoError(t, res.T.Normalise())
	expected := []float64{0.1, 0.7, 0.2}
	for i, v := range expected {
		require.InDelta(t, v, res.T.Data()[i], 1e-12)
	}
}

func TestEvaluateTwoIdenticalSitesConvergesToPoint(t *testing.T) {
	q, err := sfs.New(sfs.Shape{2})
	require.NoError(t, err)
	q.Fill(0.5)

	block := []site.Site{
		{site.Likelihoods{1, 0}},
		{site.Likelihoods{1, 0}},
	}
	scratch := NewScratch(q.Shape())

	for i := 0; i < 20; i++ {
		res, err := Evaluate(q, block, scratch)
		require.NoError(t, err)
		require.NoError(t, res.T.ScaleTo(1))
		q = res.T
	}

	require.InDelta(t, 1, q.Data()[0], 1e-9)
	require.InDelta(t, 0, q.Data()[1], 1e-9)
}

func TestEvaluateSkipsZeroPosteriorSite(t *testing.T) {
	q, err := sfs.New(sfs.Shape{2})
	require.NoError(t, err)
	// Q has zero mass on category 0, but the site's likelihood has all
	// of its mass on category 0: Z_m is 0 and the site must be skipped.
	q.Data()[0] = 0
	q.Data()[1] = 1

	block := []site.Site{{site.Likelihoods{1, 0}}}
	scratch := NewScratch(q.Shape())

	res, err := Evaluate(q, block, scratch)
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 0.0, res.T.Sum())
	require.False(t, math.IsNaN(res.LogLik) || math.IsInf(res.LogLik, 0))
}

func TestEvaluateMultiPopulationNoOuterProductOverflow(t *testing.T) {
	q, err := sfs.New(sfs.Shape{2, 3})
	require.NoError(t, err)
	q.Fill(1)

	block := []site.Site{{
		site.Likelihoods{1, 2},
		site.Likelihoods{1, 1, 1},
	}}
	scratch := NewScratch(q.Shape())
	res, err := Evaluate(q, block, scratch)
	require.NoError(t, err)
	require.Equal(t, 0, res.Skipped)
	require.InDelta(t, 1.0, res.T.Sum(), 1e-9)
}
