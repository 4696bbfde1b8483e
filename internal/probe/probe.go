// Package probe drives a single bond configuration through creation and
// negotiation and classifies the outcome. A probe never retries and never
// tears down: the caller owns cleanup regardless of how the probe ends.
package probe

import (
	"context"
	"strings"
	"time"

	"github.com/haugr/bondvet/internal/bond"
	"github.com/haugr/bondvet/internal/clock"
	"github.com/haugr/bondvet/internal/logging"
	"github.com/haugr/bondvet/internal/netops"
)

// Outcome classifies how a probe ended.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeCreateFailed   Outcome = "create_failed"
	OutcomeDriverRejected Outcome = "driver_rejected"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeNoPartner      Outcome = "no_partner"
	OutcomeBreakerOpen    Outcome = "breaker_open"
	OutcomeCancelled      Outcome = "cancelled"
)

const (
	// DefaultTimeout bounds how long a bond gets to come up. LACP with the
	// slow rate exchanges PDUs every 30 seconds, so anything shorter risks
	// false negatives.
	DefaultTimeout = 30 * time.Second
	// DefaultPollInterval is how often the bond's runtime state is re-read
	// while waiting.
	DefaultPollInterval = 1 * time.Second
)

// Result is the immutable record of one probe.
type Result struct {
	Config    bond.Config `json:"configuration"`
	Outcome   Outcome     `json:"outcome"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`

	// NegotiationTime is how long the bond took to reach its success
	// condition. Zero unless the probe succeeded.
	NegotiationTime time.Duration `json:"negotiation_time_ns,omitempty"`

	ActiveMembers int    `json:"active_members"`
	AggregatorID  string `json:"aggregator_id,omitempty"`
	PartnerMAC    string `json:"partner_mac,omitempty"`
	SwitchLog     string `json:"switch_log,omitempty"`
}

// SwitchLogFetcher pulls recent log lines from the peer switch. Wired in
// only when the inventory names a switch for the host; probes attach its
// output to failed results for diagnosis.
type SwitchLogFetcher interface {
	FetchLogs(ctx context.Context) (string, error)
}

// Prober runs negotiation probes on one host.
type Prober struct {
	t          netops.Transport
	lifecycle  *netops.Lifecycle
	clk        clock.Clock
	log        *logging.Logger
	timeout    time.Duration
	pollEvery  time.Duration
	switchLogs SwitchLogFetcher
}

// Option tunes a Prober at construction time.
type Option func(*Prober)

// WithTimeout overrides the negotiation deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) { p.timeout = d }
}

// WithPollInterval overrides the state re-read interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Prober) { p.pollEvery = d }
}

// WithClock substitutes the time source, for tests.
func WithClock(clk clock.Clock) Option {
	return func(p *Prober) { p.clk = clk }
}

// WithSwitchLogs attaches a switch log fetcher for failure diagnosis.
func WithSwitchLogs(f SwitchLogFetcher) Option {
	return func(p *Prober) { p.switchLogs = f }
}

// New returns a Prober over the given transport.
func New(t netops.Transport, log *logging.Logger, opts ...Option) *Prober {
	if log == nil {
		log = logging.Default()
	}
	p := &Prober{
		t:         t,
		lifecycle: netops.NewLifecycle(t, log),
		clk:       &clock.RealClock{},
		log:       log.WithComponent("probe"),
		timeout:   DefaultTimeout,
		pollEvery: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe creates the bond described by cfg, waits for it to negotiate, and
// classifies the outcome. The bond is left in place; the caller tears it
// down. ctx cancellation is honored between polls.
func (p *Prober) Probe(ctx context.Context, cfg bond.Config) Result {
	res := Result{Config: cfg, StartedAt: p.clk.Now()}
	log := p.log.WithFields(map[string]any{"bond": cfg.Name, "mode": string(cfg.Mode)})

	if err := ctx.Err(); err != nil {
		return p.finish(ctx, res, OutcomeCancelled, err)
	}

	log.Debug("starting probe", "members", strings.Join(cfg.Interfaces, ","))
	if err := p.lifecycle.Create(cfg); err != nil {
		if isDriverRejection(err) {
			return p.finish(ctx, res, OutcomeDriverRejected, err)
		}
		return p.finish(ctx, res, OutcomeCreateFailed, err)
	}

	var last *netops.BondState
	for p.clk.Since(res.StartedAt) < p.timeout {
		if err := ctx.Err(); err != nil {
			return p.finish(ctx, res, OutcomeCancelled, err)
		}

		state, err := netops.ReadBondState(p.t, cfg.Name)
		if err == nil {
			last = state
			if p.negotiated(cfg, state) {
				res.NegotiationTime = p.clk.Since(res.StartedAt)
				p.attachState(&res, state)
				log.Info("bond negotiated",
					"active_members", res.ActiveMembers,
					"duration", res.NegotiationTime.String())
				return p.finish(ctx, res, OutcomeSuccess, nil)
			}
		}
		p.clk.Sleep(p.pollEvery)
	}

	if last != nil {
		p.attachState(&res, last)
	}
	if cfg.Mode.IsLACP() && (last == nil || !last.PartnerDetected()) {
		log.Warn("no LACP partner responded")
		return p.finish(ctx, res, OutcomeNoPartner, nil)
	}
	log.Warn("bond did not come up before the deadline")
	return p.finish(ctx, res, OutcomeTimeout, nil)
}

// negotiated decides whether the bond has reached its success condition.
// LACP additionally requires a responding partner and an aggregator; link-up
// of every member is necessary for all modes.
func (p *Prober) negotiated(cfg bond.Config, state *netops.BondState) bool {
	if state.ActiveMembers() < len(cfg.Interfaces) {
		return false
	}
	if cfg.Mode.IsLACP() {
		return state.PartnerDetected() && state.AggregatorID != ""
	}
	return true
}

func (p *Prober) attachState(res *Result, state *netops.BondState) {
	res.ActiveMembers = state.ActiveMembers()
	res.AggregatorID = state.AggregatorID
	if state.PartnerDetected() {
		res.PartnerMAC = state.PartnerMAC
	}
}

func (p *Prober) finish(ctx context.Context, res Result, outcome Outcome, err error) Result {
	res.Outcome = outcome
	res.Success = outcome == OutcomeSuccess
	res.EndedAt = p.clk.Now()
	if err != nil {
		res.Error = err.Error()
	}

	if !res.Success && p.switchLogs != nil && ctx.Err() == nil {
		if logs, lerr := p.switchLogs.FetchLogs(ctx); lerr == nil {
			res.SwitchLog = logs
		} else {
			p.log.Debug("switch log fetch failed", "error", lerr)
		}
	}
	return res
}

// isDriverRejection spots the kernel refusing a parameter combination, as
// opposed to the create sequence failing for environmental reasons.
func isDriverRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "operation not supported") ||
		strings.Contains(msg, "write error")
}
