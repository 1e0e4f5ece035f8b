// Command winsfs estimates a site frequency spectrum from SAF likelihood
// files using the windowed EM algorithm, either directly in memory or
// streaming from a pre-shuffled file.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/winsfs/winsfs/internal/werr"
)

// exitErr wraps a non-nil error as a cli.ExitCoder carrying the exit code
// werr.KindOf(err) maps to, so cli.App.Run's default OsExiter handling
// does the exiting (the teacher's checkError does this with a single
// os.Exit(-1); winsfs has three distinct exit codes to preserve).
func exitErr(err error) error {
	if err == nil {
		return nil
	}
	return cli.NewExitError(err.Error(), werr.KindOf(err).ExitCode())
}

// VERSION is injected by build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "winsfs"
	myApp.Usage = "windowed-EM site frequency spectrum estimator"
	myApp.Version = VERSION
	myApp.Flags = estimateFlags
	myApp.Action = estimateAction
	myApp.Commands = []cli.Command{
		shuffleCommand,
		viewCommand,
	}

	if err := myApp.Run(os.Args); err != nil {
		log.Printf("%+v\n", err)
	}
}
