// Command combinectl drives a single Combiner session over NDJSON files
// on disk, for manual exercise and smoke-testing of binding specs outside
// a running data plane.
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	var _, err = parser.AddCommand("combine", "Combine NDJSON documents", `
Read a JSON file of binding specs and an NDJSON input file, combine every
document by its binding's key, and print the fully-reduced, sorted output as
NDJSON.
`, &cmdCombine{})
	if err != nil {
		log.WithError(err).Fatal("failed to add command")
	}

	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
