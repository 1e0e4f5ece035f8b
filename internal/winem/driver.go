// Package winem implements the in-memory windowed EM driver (C5): epoch
// orchestration, parallel block scheduling in fixed-size stripes, the
// sliding window of block-SFS estimates, and convergence control, as
// specified in spec.md 4.5 and 5.
package winem

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/winsfs/winsfs/internal/em"
	"github.com/winsfs/winsfs/internal/sfs"
	"github.com/winsfs/winsfs/internal/site"
	"github.com/winsfs/winsfs/internal/werr"
	"github.com/winsfs/winsfs/internal/window"
)

// Config configures a Driver. BlockSize and Blocks are mutually
// exclusive; if neither is set, Blocks defaults to 500 (spec.md 4.5
// Defaults).
type Config struct {
	BlockSize  int
	Blocks     int
	WindowSize int
	MaxEpochs  int
	Tolerance  float64
	Threads    int
	Seed       int64
	Initial    *sfs.Sfs
	WarmStart  bool
}

// DefaultConfig returns the documented defaults (spec.md 4.5).
func DefaultConfig() Config {
	return Config{
		WindowSize: 100,
		MaxEpochs:  200,
		Tolerance:  1e-4,
		Threads:    4,
	}
}

// Validate checks the mutually-exclusive and positivity constraints
// spec.md 7 assigns to werr.Config.
func (c Config) Validate(n int) error {
	if c.BlockSize > 0 && c.Blocks > 0 {
		return werr.New(werr.Config, "winem: --block-size and --blocks are mutually exclusive")
	}
	if c.BlockSize > n {
		return werr.New(werr.Config, "winem: block-size %d exceeds site count %d", c.BlockSize, n)
	}
	if c.WindowSize <= 0 {
		return werr.New(werr.Config, "winem: window-size must be > 0")
	}
	if c.Threads <= 0 {
		return werr.New(werr.Config, "winem: threads must be > 0")
	}
	return nil
}

// Stats reports per-epoch driver outcomes.
type Stats struct {
	Epochs    int
	LogLiks   []float64
	Converged bool
	Aborted   bool
}

// EpochCallback, if set, is invoked after each epoch with the epoch
// number (1-based) and its log-likelihood, for CLI progress logging.
type EpochCallback func(epoch int, logLik float64)

// Driver orchestrates the in-memory windowed EM estimator.
type Driver struct {
	cfg      Config
	OnEpoch  EpochCallback
	OnBlock  func(blockIdx, skipped, total int)
}

// New builds a Driver from cfg.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

func blockPlan(cfg Config, n int) []site.Block {
	switch {
	case cfg.Blocks > 0:
		return site.Plan(n, cfg.Blocks)
	case cfg.BlockSize > 0:
		return site.PlanBySize(n, cfg.BlockSize)
	default:
		return site.Plan(n, 500)
	}
}

// Run executes the windowed EM estimator over idx until convergence,
// --max-epochs, or cancellation via ctx.
func (d *Driver) Run(ctx context.Context, idx site.Index) (*sfs.Sfs, Stats, error) {
	n := idx.Len()
	if err := d.cfg.Validate(n); err != nil {
		return nil, Stats{}, err
	}
	shapeInts := idx.Shape()
	shape := sfs.Shape(shapeInts)
	blocks := blockPlan(d.cfg, n)
	if len(blocks) == 0 {
		return nil, Stats{}, werr.New(werr.Config, "winem: no blocks produced for %d sites", n)
	}

	current, err := d.initialEstimate(shape, float64(n))
	if err != nil {
		return nil, Stats{}, err
	}

	win, err := window.New(d.cfg.WindowSize, shape)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{}
	prevLogLik := math.Inf(-1)

	for epoch := 1; d.cfg.MaxEpochs <= 0 || epoch <= d.cfg.MaxEpochs; epoch++ {
		if !d.cfg.WarmStart {
			win.Clear()
		}

		select {
		case <-ctx.Done():
			stats.Aborted = true
			q, err := scaledCopy(current, float64(n))
			return q, stats, err
		default:
		}

		perm := rand.New(rand.NewSource(subSeed(d.cfg.Seed, epoch))).Perm(len(blocks))

		epochLogLik, aborted, err := d.runEpoch(ctx, perm, blocks, idx, shape, win, &current)
		if err != nil {
			return nil, stats, err
		}
		if aborted {
			stats.Aborted = true
			q, err := scaledCopy(current, float64(n))
			return q, stats, err
		}
		if math.IsNaN(epochLogLik) || math.IsInf(epochLogLik, 0) {
			return nil, stats, werr.New(werr.Numeric, "winem: non-finite epoch log-likelihood at epoch %d", epoch)
		}

		stats.Epochs = epoch
		stats.LogLiks = append(stats.LogLiks, epochLogLik)
		if d.OnEpoch != nil {
			d.OnEpoch(epoch, epochLogLik)
		}

		denom := math.Max(math.Abs(prevLogLik), 1)
		if epoch > 1 && math.Abs(epochLogLik-prevLogLik)/denom < d.cfg.Tolerance {
			stats.Converged = true
			prevLogLik = epochLogLik
			break
		}
		prevLogLik = epochLogLik
	}

	out, err := scaledCopy(current, float64(n))
	if err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// runEpoch processes every block in permutation order, in stripes of
// d.cfg.Threads blocks processed concurrently against a frozen Q
// snapshot, pushing results into the window in stable permutation order.
func (d *Driver) runEpoch(ctx context.Context, perm []int, blocks []site.Block, idx site.Index, shape sfs.Shape, win *window.Window, current **sfs.Sfs) (float64, bool, error) {
	var epochLogLik float64
	stripe := d.cfg.Threads
	if stripe <= 0 {
		stripe = 1
	}

	for start := 0; start < len(perm); start += stripe {
		select {
		case <-ctx.Done():
			return 0, true, nil
		default:
		}

		end := start + stripe
		if end > len(perm) {
			end = len(perm)
		}
		stripeIdx := perm[start:end]

		snapshot := (*current).Clone()
		results := make([]em.Result, len(stripeIdx))
		errs := make([]error, len(stripeIdx))

		var wg sync.WaitGroup
		for si, blockIdx := range stripeIdx {
			wg.Add(1)
			go func(si, blockIdx int) {
				defer wg.Done()
				b := blocks[blockIdx]
				sites := idx.Slice(b.Start, b.Count)
				scratch := em.NewScratch(shape)
				res, err := em.Evaluate(snapshot, sites, scratch)
				results[si] = res
				errs[si] = err
			}(si, blockIdx)
		}
		wg.Wait()

		for si, blockIdx := range stripeIdx {
			if errs[si] != nil {
				return 0, false, errs[si]
			}
			res := results[si]
			b := blocks[blockIdx]
			if b.Count > 0 && res.Skipped*2 > b.Count {
				return 0, false, werr.New(werr.Numeric, "winem: block %d skipped %d/%d sites, exceeding 50%%", blockIdx, res.Skipped, b.Count)
			}
			if d.OnBlock != nil {
				d.OnBlock(blockIdx, res.Skipped, b.Count)
			}
			epochLogLik += res.LogLik

			// Normalise the block statistic to the block's full site
			// count before it enters the window (spec.md 4.5 epoch
			// protocol), even though skipped sites mean the raw sum is
			// b.Count-res.Skipped.
			if err := res.T.ScaleTo(float64(b.Count)); err != nil {
				return 0, false, werr.Wrap(werr.Numeric, err, "winem: normalise block %d statistic", blockIdx)
			}

			if err := win.Push(res.T); err != nil {
				return 0, false, err
			}
			mean := win.Mean()
			if err := mean.Normalise(); err != nil {
				return 0, false, werr.Wrap(werr.Numeric, err, "winem: normalise window mean")
			}
			*current = mean
		}
	}
	return epochLogLik, false, nil
}

func (d *Driver) initialEstimate(shape sfs.Shape, n float64) (*sfs.Sfs, error) {
	var q *sfs.Sfs
	if d.cfg.Initial != nil {
		if !d.cfg.Initial.Shape().Equal(shape) {
			return nil, werr.New(werr.InputParse, "winem: initial SFS shape %s does not match data shape %s", d.cfg.Initial.Shape(), shape)
		}
		q = d.cfg.Initial.Clone()
	} else {
		var err error
		q, err = sfs.Uniform(shape, n)
		if err != nil {
			return nil, err
		}
	}
	if err := q.Normalise(); err != nil {
		return nil, werr.Wrap(werr.Numeric, err, "winem: normalise initial estimate")
	}
	return q, nil
}

// scaledCopy returns an independent copy of q rescaled so Sum() ==
// total, used when the driver emits a result (on convergence, on
// max-epochs, or on cancellation).
func scaledCopy(q *sfs.Sfs, total float64) (*sfs.Sfs, error) {
	out := q.Clone()
	if err := out.ScaleTo(total); err != nil {
		return nil, err
	}
	return out, nil
}

// subSeed derives a per-epoch PRNG seed deterministically from the
// driver seed and epoch number (spec.md 5: "each epoch derives a
// sub-seed deterministically").
func subSeed(seed int64, epoch int) int64 {
	return seed*31 + int64(epoch)
}
