// Package em implements the E-step sufficient-statistic kernel shared by
// both the in-memory and streaming drivers: the per-site expected
// posterior under a current SFS, the block sufficient statistic, and
// block log-likelihood accumulation, per spec.md 4.4.
package em

import (
	"math"

	"github.com/winsfs/winsfs/internal/sfs"
	"github.com/winsfs/winsfs/internal/site"
)

// Scratch holds the two flip-flopping buffers the dimension sweep needs,
// sized to Shape.Len(). A worker reuses one Scratch across every site in
// its slice; Scratch is never shared across workers (spec.md Shared
// resource policy).
type Scratch struct {
	shape   sfs.Shape
	strides []int
	a, b    []float64
}

// NewScratch allocates a Scratch for the given shape.
func NewScratch(shape sfs.Shape) *Scratch {
	n := shape.Len()
	return &Scratch{
		shape:   shape,
		strides: shape.Strides(),
		a:       make([]float64, n),
		b:       make([]float64, n),
	}
}

// posterior fills s.a with the unnormalised joint posterior
// P_m[i] = Q[i] * prod_j L_j[i_j], sweeping one population at a time so
// the full outer product of the per-population likelihood vectors is
// never separately materialised (spec.md Design Notes).
func (s *Scratch) posterior(q *sfs.Sfs, st site.Site) []float64 {
	copy(s.a, q.Data())
	cur, next := s.a, s.b
	n := len(cur)
	for p, lik := range st {
		stride := s.strides[p]
		size := s.shape[p]
		for i := 0; i < n; i++ {
			ip := (i / stride) % size
			next[i] = cur[i] * lik[ip]
		}
		cur, next = next, cur
	}
	return cur
}

// Result is the sufficient statistic and log-likelihood produced by
// Evaluate for one block.
type Result struct {
	T       *sfs.Sfs // same shape as Q; sum(T) == M - Skipped
	LogLik  float64
	Skipped int
}

// Evaluate computes the block sufficient statistic T[i] = sum_m
// P_m[i]/Z_m and the block log-likelihood sum_m log(Z_m) for the sites
// in block, under the current estimate q. Sites where Z_m == 0 are
// skipped: they contribute to neither T nor the log-likelihood, but are
// counted in Result.Skipped so the driver can enforce the 50% abort
// threshold.
func Evaluate(q *sfs.Sfs, block []site.Site, scratch *Scratch) (Result, error) {
	t, err := sfs.New(q.Shape())
	if err != nil {
		return Result{}, err
	}
	var logLik float64
	skipped := 0
	tData := t.Data()
	for _, st := range block {
		p := scratch.posterior(q, st)
		z := 0.0
		for _, v := range p {
			z += v
		}
		if z == 0 {
			skipped++
			continue
		}
		invZ := 1 / z
		for i, v := range p {
			tData[i] += v * invZ
		}
		logLik += math.Log(z)
	}
	return Result{T: t, LogLik: logLik, Skipped: skipped}, nil
}
