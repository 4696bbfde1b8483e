// Package cmd implements the CLI entry points.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haugr/bondvet/internal/analyze"
	"github.com/haugr/bondvet/internal/bond"
	"github.com/haugr/bondvet/internal/config"
	"github.com/haugr/bondvet/internal/inventory"
	"github.com/haugr/bondvet/internal/logging"
	"github.com/haugr/bondvet/internal/orchestrate"
	"github.com/haugr/bondvet/internal/report"
	"github.com/haugr/bondvet/internal/runner"
)

// RunFlags carries the run subcommand's parsed flags. Zero values mean "not
// given"; the config file and its defaults fill the gaps.
type RunFlags struct {
	ConfigFile     string
	Inventory      string
	Interfaces     string // comma-separated
	Mode           string
	NoCleanBoot    bool
	NoPermutations bool
	ParallelHosts  int
	TestDuration   time.Duration
	OutputFormat   string
	OutputFile     string
	Verbose        bool
	LogJSON        bool
	MetricsListen  string
}

// DurationSeconds is a flag.Value accepting either a Go duration string or a
// bare integer meaning seconds, so both --test-duration 60 and
// --test-duration 1m30s work.
type DurationSeconds time.Duration

func (d *DurationSeconds) String() string {
	return time.Duration(*d).String()
}

func (d *DurationSeconds) Set(s string) error {
	if n, err := strconv.Atoi(s); err == nil {
		*d = DurationSeconds(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = DurationSeconds(v)
	return nil
}

// RunSweep executes a full validation run. A non-nil error means an
// orchestration-level failure; individual configuration failures do not.
func RunSweep(flags RunFlags) error {
	cfg, err := config.LoadFile(flags.ConfigFile)
	if err != nil {
		return err
	}
	applyFlags(cfg, flags)

	logCfg := logging.DefaultConfig()
	logCfg.JSON = flags.LogJSON
	if flags.Verbose || os.Getenv("BONDVET_VERBOSE") != "" {
		logCfg.Level = logging.LevelDebug
	}
	log := logging.New(logCfg)
	logging.SetDefault(log)

	if cfg.MetricsListen != "" {
		go serveMetrics(cfg.MetricsListen, log)
	}

	inv, err := loadInventory(cfg.Inventory)
	if err != nil {
		return err
	}
	if len(inv.Hosts) == 0 {
		return fmt.Errorf("no hosts to test")
	}

	modes, err := cfg.ParsedModes()
	if err != nil {
		return err
	}
	ropts := runner.Options{
		Modes:            modes,
		Reduced:          !*cfg.Permutations,
		SkipCleanBoot:    !*cfg.CleanBoot,
		ProbeTimeout:     config.Duration(cfg.ProbeTimeout),
		SettlePause:      config.Duration(cfg.SettlePause),
		BreakerThreshold: cfg.Breaker.Threshold,
		BreakerCooldown:  config.Duration(cfg.Breaker.Cooldown),
	}
	if flags.Interfaces != "" {
		ropts.Interfaces = splitList(flags.Interfaces)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := report.NewSessionID()
	startedAt := time.Now()
	log.Info("starting validation run",
		"session", sessionID, "hosts", len(inv.Hosts), "parallel", cfg.ParallelHosts)

	sessions := orchestrate.Run(ctx, inv, orchestrate.DefaultFactory(log, ropts), orchestrate.Options{
		Width:       cfg.ParallelHosts,
		HostTimeout: config.Duration(cfg.HostTimeout),
	}, log)

	artifact := report.Build(sessionID, startedAt, sessions, analyze.Analyze(sessions))
	return writeReport(artifact, cfg.OutputFormat, cfg.OutputFile)
}

// applyFlags lets explicit CLI flags win over file and environment values.
func applyFlags(cfg *config.Config, flags RunFlags) {
	if flags.Inventory != "" {
		cfg.Inventory = flags.Inventory
	}
	if flags.Mode != "" {
		cfg.Modes = []string{flags.Mode}
	}
	if flags.NoCleanBoot {
		f := false
		cfg.CleanBoot = &f
	}
	if flags.NoPermutations {
		f := false
		cfg.Permutations = &f
	}
	if flags.ParallelHosts > 0 {
		cfg.ParallelHosts = flags.ParallelHosts
	}
	if flags.TestDuration > 0 {
		cfg.ProbeTimeout = flags.TestDuration.String()
	}
	if flags.OutputFormat != "" {
		cfg.OutputFormat = flags.OutputFormat
	}
	if flags.OutputFile != "" {
		cfg.OutputFile = flags.OutputFile
	}
	if flags.MetricsListen != "" {
		cfg.MetricsListen = flags.MetricsListen
	}
}

func loadInventory(path string) (*inventory.Inventory, error) {
	if path == "" {
		return inventory.LocalOnly(), nil
	}
	return inventory.Load(path)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeReport(artifact *report.Artifact, format, path string) error {
	var data []byte
	switch format {
	case "markdown":
		data = []byte(artifact.Markdown())
	default:
		var err error
		data, err = artifact.JSON()
		if err != nil {
			return err
		}
	}

	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logging.Info("report written", "path", path)
	return nil
}

func serveMetrics(addr string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", "error", err)
	}
}

// ValidModeNames returns the accepted --mode values, for usage text.
func ValidModeNames() string {
	names := make([]string, len(bond.AllModes))
	for i, m := range bond.AllModes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}
