package main

import (
	"os"

	"github.com/tsurube/tsurube/internal/cli"
	"github.com/tsurube/tsurube/internal/term"
)

func main() {
	cl := cli.NewCLI(os.Stdout, os.Stderr, os.Stdin, term.IsTerminal(os.Stderr))
	os.Exit(cl.Run(os.Args))
}
