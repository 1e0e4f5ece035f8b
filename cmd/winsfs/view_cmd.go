package main

import (
	"bufio"
	"os"

	"github.com/urfave/cli"

	"github.com/winsfs/winsfs/internal/sfs"
	"github.com/winsfs/winsfs/internal/werr"
)

var viewCommand = cli.Command{
	Name:      "view",
	Usage:     "read an SFS file, optionally normalise/fold it, and rewrite it",
	ArgsUsage: "SFS-FILE",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "normalise", Usage: "rescale the SFS to sum to 1"},
		cli.BoolFlag{Name: "fold", Usage: "fold the SFS before writing"},
		cli.StringFlag{Name: "output-format", Value: "text", Usage: "text or npy"},
		cli.StringFlag{Name: "output, o", Usage: "output path; default stdout"},
	},
	Action: viewAction,
}

func viewAction(c *cli.Context) error {
	paths := []string(c.Args())
	if len(paths) != 1 {
		return exitErr(werr.New(werr.Config, "view: exactly one SFS file is required"))
	}

	f, err := os.Open(paths[0])
	if err != nil {
		return exitErr(werr.Wrap(werr.Io, err, "view: open %s", paths[0]))
	}
	q, err := readSfsAuto(f, paths[0])
	f.Close()
	if err != nil {
		return exitErr(err)
	}

	if c.Bool("normalise") {
		if err := q.Normalise(); err != nil {
			return exitErr(err)
		}
	}
	if c.Bool("fold") {
		q = q.Fold()
	}

	format := c.String("output-format")
	if format != "text" && format != "npy" {
		return exitErr(werr.New(werr.Config, "view: --output-format must be text or npy, got %q", format))
	}

	var w = os.Stdout
	outPath := c.String("output")
	if outPath != "" {
		of, err := os.Create(outPath)
		if err != nil {
			return exitErr(werr.Wrap(werr.Io, err, "view: create %s", outPath))
		}
		defer of.Close()
		w = of
	}

	bw := bufio.NewWriter(w)
	if format == "npy" {
		err = q.WriteNpy(bw)
	} else {
		err = q.WriteText(bw)
	}
	if err != nil {
		return exitErr(err)
	}
	if err := bw.Flush(); err != nil {
		return exitErr(werr.Wrap(werr.Io, err, "view: flush output"))
	}
	return nil
}

func readSfsAuto(f *os.File, path string) (*sfs.Sfs, error) {
	if isNpyPath(path) {
		return sfs.ReadNpy(f)
	}
	return sfs.ReadText(f)
}
