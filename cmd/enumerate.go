package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/haugr/bondvet/internal/bond"
	"github.com/haugr/bondvet/internal/netops"
	"github.com/haugr/bondvet/internal/runner"
)

// EnumerateFlags carries the enumerate subcommand's parsed flags.
type EnumerateFlags struct {
	Interfaces     string
	Mode           string
	NoPermutations bool
}

// RunEnumerate prints the configurations a sweep would test, without
// touching any interface. With no --interfaces it discovers the local
// machine's eligible ones.
func RunEnumerate(flags EnumerateFlags) error {
	var names []string
	if flags.Interfaces != "" {
		names = splitList(flags.Interfaces)
	} else {
		t, err := netops.NewNetlinkTransport()
		if err != nil {
			return fmt.Errorf("local discovery unavailable, pass --interfaces: %w", err)
		}
		defer t.Close()
		infos, err := netops.DiscoverInterfaces(t, nil)
		if err != nil {
			return err
		}
		names = netops.InterfaceNames(infos)
	}

	var modes []bond.Mode
	if flags.Mode != "" {
		mode, err := bond.ParseMode(flags.Mode)
		if err != nil {
			return err
		}
		modes = []bond.Mode{mode}
	}

	configs := bond.Enumerate(names, bond.EnumerateOptions{
		Reduced:    flags.NoPermutations,
		Modes:      modes,
		NamePrefix: runner.DefaultNamePrefix,
	})
	if len(configs) == 0 {
		fmt.Printf("nothing to test: %d eligible interfaces\n", len(names))
		return nil
	}

	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.AppendHeader(table.Row{"#", "Name", "Mode", "Members", "MII", "LACP Rate"})
	for i, cfg := range configs {
		rate := "-"
		if cfg.Mode.IsLACP() {
			rate = string(cfg.LACPRate)
		}
		w.AppendRow(table.Row{
			i + 1, cfg.Name, string(cfg.Mode),
			strings.Join(cfg.Interfaces, ","), int(cfg.MIIMon), rate,
		})
	}
	w.Render()
	fmt.Printf("%d configurations over %d interfaces\n", len(configs), len(names))
	return nil
}
