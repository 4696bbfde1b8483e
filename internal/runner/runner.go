// Package runner executes a full configuration sweep on one host: snapshot,
// enumerate, probe each configuration behind a circuit breaker, tear down
// between probes, and restore the host's network state no matter how the
// sweep ends.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haugr/bondvet/internal/bond"
	"github.com/haugr/bondvet/internal/breaker"
	"github.com/haugr/bondvet/internal/clock"
	"github.com/haugr/bondvet/internal/logging"
	"github.com/haugr/bondvet/internal/metrics"
	"github.com/haugr/bondvet/internal/netops"
	"github.com/haugr/bondvet/internal/probe"
)

// DefaultSettlePause is the wait between teardown of one configuration and
// creation of the next. The bonding driver needs a moment to release
// members.
const DefaultSettlePause = 2 * time.Second

// DefaultNamePrefix names the bonds this engine creates. The prefix is also
// what pre-sweep cleanup and restore look for.
const DefaultNamePrefix = "bondvet"

// Options tunes one host's sweep.
type Options struct {
	// Modes restricts testing to these modes. Empty means all seven.
	Modes []bond.Mode

	// Reduced tests one representative configuration per mode instead of
	// the full matrix.
	Reduced bool

	// Interfaces restricts testing to the named interfaces. Empty means
	// discover.
	Interfaces []string

	// SkipCleanBoot leaves any leftover test bonds in place instead of
	// sweeping them before the snapshot.
	SkipCleanBoot bool

	NamePrefix  string
	SettlePause time.Duration

	ProbeTimeout time.Duration
	PollInterval time.Duration

	BreakerThreshold int
	BreakerCooldown  time.Duration

	// SwitchLogs, when non-nil, is attached to failed probes.
	SwitchLogs probe.SwitchLogFetcher

	// Clock substitutes the time source, for tests.
	Clock clock.Clock
}

func (o *Options) applyDefaults() {
	if o.NamePrefix == "" {
		o.NamePrefix = DefaultNamePrefix
	}
	if o.SettlePause == 0 {
		o.SettlePause = DefaultSettlePause
	}
	if o.ProbeTimeout == 0 {
		o.ProbeTimeout = probe.DefaultTimeout
	}
	if o.PollInterval == 0 {
		o.PollInterval = probe.DefaultPollInterval
	}
	if o.BreakerThreshold == 0 {
		o.BreakerThreshold = breaker.DefaultFailureThreshold
	}
	if o.BreakerCooldown == 0 {
		o.BreakerCooldown = breaker.DefaultCooldown
	}
	if o.Clock == nil {
		o.Clock = &clock.RealClock{}
	}
}

// Session is the immutable record of one host's sweep. It is only returned
// once the sweep, including restore, has finished.
type Session struct {
	Host       string                `json:"host"`
	StartedAt  time.Time             `json:"started_at"`
	EndedAt    time.Time             `json:"ended_at"`
	Interfaces []netops.InterfaceInfo `json:"interfaces"`
	Results    []probe.Result        `json:"results"`

	// Fatal is set when the sweep aborted before probing every enumerated
	// configuration: cancellation, discovery failure, or snapshot failure.
	Fatal string `json:"fatal,omitempty"`

	RestoreOK    bool   `json:"restore_ok"`
	RestoreError string `json:"restore_error,omitempty"`

	Tested    int `json:"tested"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// HostRunner sweeps one host.
type HostRunner struct {
	host      string
	transport netops.Transport
	opts      Options
	clk       clock.Clock
	log       *logging.Logger
	lifecycle *netops.Lifecycle
	prober    *probe.Prober
	breakers  *breaker.Group
}

// New returns a HostRunner for the named host over the given transport.
func New(host string, t netops.Transport, log *logging.Logger, opts Options) *HostRunner {
	opts.applyDefaults()
	if log == nil {
		log = logging.Default()
	}
	log = log.WithHost(host)

	proberOpts := []probe.Option{
		probe.WithTimeout(opts.ProbeTimeout),
		probe.WithPollInterval(opts.PollInterval),
		probe.WithClock(opts.Clock),
	}
	if opts.SwitchLogs != nil {
		proberOpts = append(proberOpts, probe.WithSwitchLogs(opts.SwitchLogs))
	}

	r := &HostRunner{
		host:      host,
		transport: t,
		opts:      opts,
		clk:       opts.Clock,
		log:       log.WithComponent("runner"),
		lifecycle: netops.NewLifecycle(t, log),
		prober:    probe.New(t, log, proberOpts...),
	}
	r.breakers = breaker.NewGroup(
		breaker.WithThreshold(opts.BreakerThreshold),
		breaker.WithCooldown(opts.BreakerCooldown),
		breaker.WithClock(opts.Clock),
	)
	r.breakers.OnStateChange(func(class string, from, to breaker.State) {
		r.log.Info("breaker state change",
			"class", class, "from", from.String(), "to", to.String())
		metrics.Get().RecordBreakerState(host, class, int(to))
	})
	return r
}

// Run executes the sweep. The returned Session is complete: by the time Run
// returns, restore has been attempted on every exit path.
func (r *HostRunner) Run(ctx context.Context) *Session {
	session := &Session{Host: r.host, StartedAt: r.clk.Now(), RestoreOK: true}
	defer func() {
		session.EndedAt = r.clk.Now()
		status := "ok"
		if session.Fatal != "" {
			status = "fatal"
		}
		metrics.Get().HostsProcessed.WithLabelValues(status).Inc()
		metrics.Get().HostSweepTime.WithLabelValues(r.host).
			Observe(session.EndedAt.Sub(session.StartedAt).Seconds())
	}()

	infos, err := netops.DiscoverInterfaces(r.transport, r.opts.Interfaces)
	if err != nil {
		session.Fatal = fmt.Sprintf("interface discovery failed: %v", err)
		return session
	}
	session.Interfaces = infos
	names := netops.InterfaceNames(infos)
	if len(names) < 2 {
		// Nothing to test, not an error: the session finalizes with an
		// empty result list.
		r.log.Info("fewer than 2 bondable interfaces, nothing to test", "found", len(names))
		return session
	}
	r.log.Info("starting sweep", "interfaces", len(names))

	// Leftover bonds from an earlier aborted run would skew both the
	// snapshot and the probes.
	if !r.opts.SkipCleanBoot {
		if err := r.lifecycle.RemoveTestBonds(r.opts.NamePrefix); err != nil {
			r.log.Warn("pre-sweep cleanup incomplete", "error", err)
		}
	}

	snapshot, err := netops.TakeSnapshot(r.transport, names, r.clk.Now())
	if err != nil {
		session.Fatal = fmt.Sprintf("snapshot failed: %v", err)
		return session
	}
	defer r.restore(snapshot, session)

	configs := bond.Enumerate(names, bond.EnumerateOptions{
		Reduced:    r.opts.Reduced,
		Modes:      r.opts.Modes,
		NamePrefix: r.opts.NamePrefix,
	})
	r.log.Info("enumerated configurations", "count", len(configs))

	for _, cfg := range configs {
		if ctx.Err() != nil {
			session.Fatal = "cancelled before completing all configurations"
			break
		}
		res := r.probeOne(ctx, cfg)
		session.Results = append(session.Results, res)
		r.account(session, res)

		if res.Outcome == probe.OutcomeCancelled {
			session.Fatal = "cancelled before completing all configurations"
			break
		}
		r.clk.Sleep(r.opts.SettlePause)
	}
	return session
}

// classLifecycle keys the breaker shared by interface creation and teardown
// across all modes. Generic create and teardown failures point at the
// hardware rather than at the mode under test, so one dying NIC stops the
// sweep after a single threshold instead of one threshold per mode.
const classLifecycle = "lifecycle"

// probeOne runs a single configuration behind two breakers, the shared
// lifecycle one and the one for its mode, and always tears the bond down
// afterwards.
func (r *HostRunner) probeOne(ctx context.Context, cfg bond.Config) probe.Result {
	lifecycle := r.breakers.Get(classLifecycle)
	if err := lifecycle.Allow(); err != nil {
		return r.recordProbe(cfg, r.skipped(cfg))
	}

	var res probe.Result
	var teardownErr error
	err := r.breakers.Call(string(cfg.Mode), func() error {
		res = r.prober.Probe(ctx, cfg)
		if teardownErr = r.lifecycle.Teardown(cfg); teardownErr != nil {
			r.log.Warn("teardown incomplete", "bond", cfg.Name, "error", teardownErr)
		}
		switch res.Outcome {
		case probe.OutcomeSuccess, probe.OutcomeCancelled:
			return nil
		default:
			return fmt.Errorf("%s: %s", cfg.Name, res.Outcome)
		}
	})
	if errors.Is(err, breaker.ErrOpen) {
		lifecycle.Cancel()
		return r.recordProbe(cfg, r.skipped(cfg))
	}
	lifecycle.Record(lifecycleFailure(res, teardownErr))
	return r.recordProbe(cfg, res)
}

// lifecycleFailure reports the hardware-facing error of a finished probe,
// nil when creation and teardown both worked. Driver rejections stay with
// the mode breaker: they condemn the parameter combination, not the NIC.
func lifecycleFailure(res probe.Result, teardownErr error) error {
	if res.Outcome == probe.OutcomeCreateFailed {
		return errors.New(res.Error)
	}
	return teardownErr
}

func (r *HostRunner) skipped(cfg bond.Config) probe.Result {
	r.log.Warn("breaker open, skipping configuration",
		"mode", string(cfg.Mode), "bond", cfg.Name)
	now := r.clk.Now()
	return probe.Result{
		Config:    cfg,
		Outcome:   probe.OutcomeBreakerOpen,
		StartedAt: now,
		EndedAt:   now,
		Error:     breaker.ErrOpen.Error(),
	}
}

func (r *HostRunner) recordProbe(cfg bond.Config, res probe.Result) probe.Result {
	metrics.Get().RecordProbe(r.host, string(cfg.Mode), string(res.Outcome),
		res.NegotiationTime.Seconds(), res.ActiveMembers)
	return res
}

func (r *HostRunner) account(session *Session, res probe.Result) {
	switch res.Outcome {
	case probe.OutcomeSuccess:
		session.Tested++
		session.Succeeded++
	case probe.OutcomeBreakerOpen, probe.OutcomeCancelled:
		session.Skipped++
	default:
		session.Tested++
		session.Failed++
	}
}

// restore puts the host's network back and records how well that went.
func (r *HostRunner) restore(snapshot *netops.Snapshot, session *Session) {
	if err := r.lifecycle.RemoveTestBonds(r.opts.NamePrefix); err != nil {
		r.log.Warn("post-sweep bond cleanup incomplete", "error", err)
	}
	if err := snapshot.Restore(r.transport, r.log); err != nil {
		session.RestoreOK = false
		session.RestoreError = err.Error()
		metrics.Get().RestoreFailures.WithLabelValues(r.host).Inc()
		r.log.Error("network state restore failed", "error", err)
		return
	}
	if err := snapshot.Verify(r.transport); err != nil {
		session.RestoreOK = false
		session.RestoreError = err.Error()
		metrics.Get().RestoreFailures.WithLabelValues(r.host).Inc()
		r.log.Error("restored state does not match snapshot", "error", err)
		return
	}
	r.log.Info("network state restored")
}
