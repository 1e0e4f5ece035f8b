package stream

import (
	"context"
	"math"

	"github.com/winsfs/winsfs/internal/em"
	"github.com/winsfs/winsfs/internal/sfs"
	"github.com/winsfs/winsfs/internal/site"
	"github.com/winsfs/winsfs/internal/werr"
	"github.com/winsfs/winsfs/internal/window"
)

// Config configures a Driver. BlockSize and Blocks are mutually
// exclusive; block boundaries, once computed, are identical across
// epochs (spec.md 4.7).
type Config struct {
	BlockSize  int
	Blocks     int
	WindowSize int
	MaxEpochs  int
	Tolerance  float64
	Initial    *sfs.Sfs
	WarmStart  bool
}

// DefaultConfig mirrors internal/winem's documented defaults, minus the
// parallelism and seed knobs that do not apply to the single-threaded
// streaming driver (spec.md 4.7 re-permutation is absent here).
func DefaultConfig() Config {
	return Config{
		WindowSize: 100,
		MaxEpochs:  200,
		Tolerance:  1e-4,
	}
}

// Stats reports per-epoch driver outcomes, identical in shape to
// internal/winem.Stats.
type Stats struct {
	Epochs    int
	LogLiks   []float64
	Converged bool
	Aborted   bool
}

// EpochCallback is invoked after each epoch, for CLI progress logging.
type EpochCallback func(epoch int, logLik float64)

// Driver runs the windowed EM estimator over a single File with exactly
// one goroutine (spec.md 5(b) "strictly single-threaded sequential
// execution for C7").
type Driver struct {
	cfg     Config
	OnEpoch EpochCallback
	OnBlock func(blockIdx, skipped, total int)
}

// New builds a Driver from cfg.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

func (c Config) blockPlan(sf *File) []site.Block {
	switch {
	case c.Blocks > 0:
		return site.Plan(sf.Len(), c.Blocks)
	case c.BlockSize > 0:
		return sf.Blocks(c.BlockSize)
	default:
		return site.Plan(sf.Len(), 500)
	}
}

func divCeil(n, d int) int {
	if d <= 0 {
		return n
	}
	return (n + d - 1) / d
}

// Run executes the streaming windowed EM estimator over sf until
// convergence, --max-epochs, or cancellation via ctx.
func (d *Driver) Run(ctx context.Context, sf *File) (*sfs.Sfs, Stats, error) {
	n := sf.Len()
	if d.cfg.WindowSize <= 0 {
		return nil, Stats{}, werr.New(werr.Config, "stream: window-size must be > 0")
	}
	if d.cfg.BlockSize > 0 && d.cfg.Blocks > 0 {
		return nil, Stats{}, werr.New(werr.Config, "stream: --block-size and --blocks are mutually exclusive")
	}

	shape := sfs.Shape(sf.Shape())
	blocks := d.cfg.blockPlan(sf)
	if len(blocks) == 0 {
		return nil, Stats{}, werr.New(werr.Config, "stream: no blocks produced for %d sites", n)
	}

	current, err := d.initialEstimate(shape, float64(n))
	if err != nil {
		return nil, Stats{}, err
	}

	win, err := window.New(d.cfg.WindowSize, shape)
	if err != nil {
		return nil, Stats{}, err
	}

	scratch := em.NewScratch(shape)
	var recBuf []byte

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

		var epochLogLik float64
		for blockIdx, b := range blocks {
			select {
			case <-ctx.Done():
				stats.Aborted = true
				q, err := scaledCopy(current, float64(n))
				return q, stats, err
			default:
			}

			sites, err := sf.ReadBlock(b, recBuf)
			if err != nil {
				return nil, stats, err
			}

			res, err := em.Evaluate(current, sites, scratch)
			if err != nil {
				return nil, stats, err
			}
			if b.Count > 0 && res.Skipped*2 > b.Count {
				return nil, stats, werr.New(werr.Numeric, "stream: block %d skipped %d/%d sites, exceeding 50%%", blockIdx, res.Skipped, b.Count)
			}
			if d.OnBlock != nil {
				d.OnBlock(blockIdx, res.Skipped, b.Count)
			}
			epochLogLik += res.LogLik

			if err := res.T.ScaleTo(float64(b.Count)); err != nil {
				return nil, stats, werr.Wrap(werr.Numeric, err, "stream: normalise block %d statistic", blockIdx)
			}
			if err := win.Push(res.T); err != nil {
				return nil, stats, err
			}
			mean := win.Mean()
			if err := mean.Normalise(); err != nil {
				return nil, stats, werr.Wrap(werr.Numeric, err, "stream: normalise window mean")
			}
			current = mean
		}

		if math.IsNaN(epochLogLik) || math.IsInf(epochLogLik, 0) {
			return nil, stats, werr.New(werr.Numeric, "stream: non-finite epoch log-likelihood at epoch %d", epoch)
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

	return scaledCopy(current, float64(n))
}

func (d *Driver) initialEstimate(shape sfs.Shape, n float64) (*sfs.Sfs, error) {
	var q *sfs.Sfs
	if d.cfg.Initial != nil {
		if !d.cfg.Initial.Shape().Equal(shape) {
			return nil, werr.New(werr.InputParse, "stream: initial SFS shape %s does not match data shape %s", d.cfg.Initial.Shape(), shape)
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
		return nil, werr.Wrap(werr.Numeric, err, "stream: normalise initial estimate")
	}
	return q, nil
}

func scaledCopy(q *sfs.Sfs, total float64) (*sfs.Sfs, error) {
	out := q.Clone()
	if err := out.ScaleTo(total); err != nil {
		return nil, err
	}
	return out, nil
}
