// swapctl is the operator-facing command line tool for the swap core,
// modeled on the teacher's lnd.go "parse flags, load config, run"
// shape but built around go-flags' Commander interface instead of a
// single monolithic daemon loop, since swapctl is a client for a
// wallet process rather than a daemon itself.
package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

type options struct {
	DataDir string `long:"datadir" description:"directory holding swap-*.json trade records" default:"."`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)

	parser.AddCommand("list", "List known trades", "List every swap-id this wallet holds a record for.", &listCommand{opts: &opts})
	parser.AddCommand("dump", "Dump a trade", "Print a diagnostic snapshot of a single trade.", &dumpCommand{opts: &opts})
	parser.AddCommand("adjust", "Force a trade's state", "Apply an operator override to a trade's state.", &adjustCommand{opts: &opts})
	parser.AddCommand("stop-all", "Stop every autoswap driver", "Set the process-wide autoswap stop flag.", &stopAllCommand{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
