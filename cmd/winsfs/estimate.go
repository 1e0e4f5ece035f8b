package main

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/winsfs/winsfs/internal/intersect"
	"github.com/winsfs/winsfs/internal/saf"
	"github.com/winsfs/winsfs/internal/sfs"
	"github.com/winsfs/winsfs/internal/site"
	"github.com/winsfs/winsfs/internal/stream"
	"github.com/winsfs/winsfs/internal/werr"
	"github.com/winsfs/winsfs/internal/winem"
)

var estimateFlags = []cli.Flag{
	cli.BoolFlag{Name: "v", Usage: "log one line per epoch"},
	cli.BoolFlag{Name: "vv", Usage: "log one line per epoch and per block"},
	cli.IntFlag{Name: "threads, t", Value: 4, Usage: "number of blocks processed concurrently per stripe (in-memory mode only)"},
	cli.Int64Flag{Name: "seed, s", Value: 1, Usage: "PRNG seed for per-epoch block permutation"},
	cli.IntFlag{Name: "block-size, b", Usage: "sites per block; mutually exclusive with --blocks"},
	cli.IntFlag{Name: "blocks, B", Usage: "number of blocks; default 500 if neither is given"},
	cli.IntFlag{Name: "window-size, w", Value: 100, Usage: "number of trailing block estimates averaged into the current Q"},
	cli.Float64Flag{Name: "tolerance, l", Value: 1e-4, Usage: "relative log-likelihood change below which the estimator has converged"},
	cli.IntFlag{Name: "max-epochs", Value: 200, Usage: "maximum number of epochs before stopping regardless of convergence"},
	cli.StringFlag{Name: "initial", Usage: "initial SFS file (text or .npy); defaults to uniform"},
	cli.BoolFlag{Name: "fold", Usage: "fold the output SFS before writing"},
	cli.BoolFlag{Name: "warm-start", Usage: "do not clear the window between epochs"},
	cli.StringFlag{Name: "output, o", Usage: "output SFS path; .npy extension writes NumPy format, otherwise text"},
}

// estimateAction is the default action: it sniffs its positional
// arguments to decide between in-memory (C3+C5) and streaming (C7) mode,
// runs the estimator, and writes the resulting Sfs.
func estimateAction(c *cli.Context) error {
	paths := []string(c.Args())
	if len(paths) == 0 {
		return exitErr(werr.New(werr.Config, "estimate: at least one SAF path or one shuffled-file path is required"))
	}

	verbose := c.Bool("v") || c.Bool("vv")
	veryVerbose := c.Bool("vv")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		if _, ok := <-sigCh; ok {
			log.Println("interrupt received, stopping after the blocks in progress")
			cancel()
		}
	}()
	defer signal.Stop(sigCh)

	streaming := len(paths) == 1 && looksShuffled(paths[0])

	var (
		q     *sfs.Sfs
		n     int
		epochs int
	)

	if streaming {
		log.Println("mode: streaming")
		sf, err := stream.Open(paths[0])
		if err != nil {
			return exitErr(err)
		}
		defer sf.Close()
		n = sf.Len()

		initial, err := loadInitial(c.String("initial"))
		if err != nil {
			return exitErr(err)
		}

		cfg := stream.Config{
			BlockSize:  c.Int("block-size"),
			Blocks:     c.Int("blocks"),
			WindowSize: c.Int("window-size"),
			MaxEpochs:  c.Int("max-epochs"),
			Tolerance:  c.Float64("tolerance"),
			Initial:    initial,
			WarmStart:  c.Bool("warm-start"),
		}
		log.Println("sites:", n, "window-size:", cfg.WindowSize, "max-epochs:", cfg.MaxEpochs, "tolerance:", cfg.Tolerance)

		d := stream.New(cfg)
		d.OnBlock = func(blockIdx, skipped, total int) {
			warnIfHeavilySkipped(skipped, total)
			if veryVerbose {
				log.Println("block", blockIdx, "skipped", skipped, "of", total)
			}
		}
		if verbose {
			d.OnEpoch = func(epoch int, logLik float64) {
				log.Println("epoch", epoch, "logLik", logLik)
			}
		}

		var stats stream.Stats
		q, stats, err = d.Run(ctx, sf)
		if err != nil {
			return exitErr(err)
		}
		epochs = stats.Epochs
		if !stats.Converged && !stats.Aborted {
			color.Yellow("winsfs: did not converge within %d epochs", cfg.MaxEpochs)
		}
	} else {
		log.Println("mode: in-memory")
		idx, err := loadIntersection(paths)
		if err != nil {
			return exitErr(err)
		}
		n = idx.Len()

		initial, err := loadInitial(c.String("initial"))
		if err != nil {
			return exitErr(err)
		}

		cfg := winem.Config{
			BlockSize:  c.Int("block-size"),
			Blocks:     c.Int("blocks"),
			WindowSize: c.Int("window-size"),
			MaxEpochs:  c.Int("max-epochs"),
			Tolerance:  c.Float64("tolerance"),
			Threads:    c.Int("threads"),
			Seed:       c.Int64("seed"),
			Initial:    initial,
			WarmStart:  c.Bool("warm-start"),
		}
		log.Println("sites:", n, "threads:", cfg.Threads, "seed:", cfg.Seed, "window-size:", cfg.WindowSize, "max-epochs:", cfg.MaxEpochs, "tolerance:", cfg.Tolerance)

		d := winem.New(cfg)
		d.OnBlock = func(blockIdx, skipped, total int) {
			warnIfHeavilySkipped(skipped, total)
			if veryVerbose {
				log.Println("block", blockIdx, "skipped", skipped, "of", total)
			}
		}
		if verbose {
			d.OnEpoch = func(epoch int, logLik float64) {
				log.Println("epoch", epoch, "logLik", logLik)
			}
		}

		var stats winem.Stats
		q, stats, err = d.Run(ctx, idx)
		if err != nil {
			return exitErr(err)
		}
		epochs = stats.Epochs
		if !stats.Converged && !stats.Aborted {
			color.Yellow("winsfs: did not converge within %d epochs", cfg.MaxEpochs)
		}
	}

	log.Println("epochs run:", epochs)

	if c.Bool("fold") {
		q = q.Fold()
	}

	return exitErr(writeSfs(q, c.String("output")))
}

// warnIfHeavilySkipped surfaces a yellow warning once a block crosses 25%
// skipped sites, short of the 50% threshold that aborts the run.
func warnIfHeavilySkipped(skipped, total int) {
	if total > 0 && skipped*4 > total {
		color.Yellow("winsfs: block skipped %d/%d sites (>25%%)", skipped, total)
	}
}

// looksShuffled sniffs the first 8 bytes of path for the shuffled-file
// magic, distinguishing streaming mode from a list of SAF paths.
func looksShuffled(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	magic := make([]byte, 8)
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}
	return string(magic) == "winsfshu"
}

func openSaf(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func loadIntersection(paths []string) (site.Index, error) {
	readers := make([]saf.Reader, len(paths))
	for i, p := range paths {
		r, err := saf.Open(p, openSaf)
		if err != nil {
			return nil, err
		}
		readers[i] = r
	}
	sites, err := intersect.Collect(intersect.New(readers))
	if err != nil {
		return nil, err
	}
	return site.NewSliceIndex(sites)
}

func loadInitial(path string) (*sfs.Sfs, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, werr.Wrap(werr.Io, err, "estimate: open initial SFS %s", path)
	}
	defer f.Close()
	if isNpyPath(path) {
		return sfs.ReadNpy(f)
	}
	return sfs.ReadText(f)
}

func isNpyPath(path string) bool {
	return len(path) >= 4 && path[len(path)-4:] == ".npy"
}

func writeSfs(q *sfs.Sfs, path string) error {
	var w io.Writer = os.Stdout
	var closer io.Closer
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return werr.Wrap(werr.Io, err, "estimate: create output %s", path)
		}
		w = f
		closer = f
	}
	bw := bufio.NewWriter(w)
	var err error
	if path != "" && isNpyPath(path) {
		err = q.WriteNpy(bw)
	} else {
		err = q.WriteText(bw)
	}
	if err != nil {
		return err
	}
	if ferr := bw.Flush(); ferr != nil {
		return werr.Wrap(werr.Io, ferr, "estimate: flush output")
	}
	if closer != nil {
		if cerr := closer.Close(); cerr != nil {
			return werr.Wrap(werr.Io, cerr, "estimate: close output")
		}
	}
	return nil
}
