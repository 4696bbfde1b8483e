package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/haugr/bondvet/cmd"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runFlags := flag.NewFlagSet("run", flag.ExitOnError)
		var f cmd.RunFlags
		runFlags.StringVar(&f.ConfigFile, "config", "", "Configuration file (HCL)")
		runFlags.StringVar(&f.Inventory, "hosts", "", "Inventory file (hosts.yaml); default is the local machine only")
		runFlags.StringVar(&f.Interfaces, "interfaces", "", "Comma-separated interfaces to test (default: discover)")
		runFlags.StringVar(&f.Mode, "mode", "", "Test only this bonding mode ("+cmd.ValidModeNames()+")")
		runFlags.BoolVar(&f.NoCleanBoot, "no-clean-boot", false, "Skip removal of leftover test bonds before testing")
		runFlags.BoolVar(&f.NoPermutations, "no-permutations", false, "Test one representative configuration per mode")
		runFlags.IntVar(&f.ParallelHosts, "parallel-hosts", 0, "Hosts tested concurrently (default 3)")
		runFlags.Var((*cmd.DurationSeconds)(&f.TestDuration), "test-duration", "Negotiation deadline per configuration, seconds or Go duration (default 30s)")
		runFlags.StringVar(&f.OutputFormat, "output-format", "", "Report format: json or markdown")
		runFlags.StringVar(&f.OutputFile, "output-file", "", "Write the report here instead of stdout")
		runFlags.BoolVar(&f.Verbose, "verbose", false, "Debug logging")
		runFlags.BoolVar(&f.Verbose, "v", false, "Debug logging (short)")
		runFlags.BoolVar(&f.LogJSON, "log-json", false, "Log as JSON instead of console format")
		runFlags.StringVar(&f.MetricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
		runFlags.Parse(os.Args[2:])

		if err := cmd.RunSweep(f); err != nil {
			fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
			os.Exit(1)
		}

	case "enumerate":
		enumFlags := flag.NewFlagSet("enumerate", flag.ExitOnError)
		var f cmd.EnumerateFlags
		enumFlags.StringVar(&f.Interfaces, "interfaces", "", "Comma-separated interfaces (default: discover locally)")
		enumFlags.StringVar(&f.Mode, "mode", "", "Only this bonding mode")
		enumFlags.BoolVar(&f.NoPermutations, "no-permutations", false, "One representative configuration per mode")
		enumFlags.Parse(os.Args[2:])

		if err := cmd.RunEnumerate(f); err != nil {
			fmt.Fprintf(os.Stderr, "Enumerate failed: %v\n", err)
			os.Exit(1)
		}

	case "version":
		fmt.Printf("bondvet %s\n", version)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`bondvet - bonding interoperability validation

Usage:
  bondvet run [flags]         Sweep bonding configurations across hosts
  bondvet enumerate [flags]   Print the configurations a sweep would test
  bondvet version             Print version
  bondvet help                Show this help

Run 'bondvet <command> -h' for command flags.
`)
}
