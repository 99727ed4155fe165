// Command interleave checks concurrent data structures for linearizability
// and relaxed correctness conditions.
package main

import (
	"os"

	"github.com/roach88/interleave/internal/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewRootCommand()))
}
