// Command lemma is the command-line front end of the reasoner.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/lemma/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
