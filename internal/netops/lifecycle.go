package netops

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haugr/bondvet/internal/bond"
	"github.com/haugr/bondvet/internal/logging"
)

// Lifecycle creates and tears down bonded interfaces on one host. It owns
// the create→enslave→activate sequence and its inverse; it never retries,
// and it never decides negotiation outcomes.
type Lifecycle struct {
	t   Transport
	log *logging.Logger
}

// NewLifecycle returns a Lifecycle over the given transport.
func NewLifecycle(t Transport, log *logging.Logger) *Lifecycle {
	if log == nil {
		log = logging.Default()
	}
	return &Lifecycle{t: t, log: log.WithComponent("lifecycle")}
}

// paramsFor maps a bond.Config onto driver parameters.
func paramsFor(cfg bond.Config) BondParams {
	p := BondParams{
		Mode:         string(cfg.Mode),
		KernelMode:   cfg.Mode.KernelValue(),
		MIIMonMillis: int(cfg.MIIMon),
	}
	if cfg.Mode.IsLACP() {
		p.LACPRate = string(cfg.LACPRate)
		p.XmitHashPolicy = cfg.XmitHashPolicy
	}
	return p
}

// Create brings up the bond described by cfg: create with driver
// parameters, set the primary for active-backup, activate the bond, then
// enslave each member (down → enslave → up). On any error the caller is
// expected to run Teardown; Create does not clean up after itself.
func (l *Lifecycle) Create(cfg bond.Config) error {
	l.log.Debug("creating bond", "bond", cfg.Name, "mode", string(cfg.Mode),
		"members", strings.Join(cfg.Interfaces, ","))

	if err := l.t.CreateBond(cfg.Name, paramsFor(cfg)); err != nil {
		return err
	}

	if cfg.Primary != "" {
		if err := l.t.WriteFile(BondParamPath(cfg.Name, "primary"), cfg.Primary); err != nil {
			return fmt.Errorf("failed to set primary %s on %s: %w", cfg.Primary, cfg.Name, err)
		}
	}

	if err := l.t.SetLinkUp(cfg.Name); err != nil {
		return fmt.Errorf("failed to activate bond %s: %w", cfg.Name, err)
	}

	for _, member := range cfg.Interfaces {
		// Members must be down before the driver accepts them.
		if err := l.t.SetLinkDown(member); err != nil {
			return fmt.Errorf("failed to bring down %s: %w", member, err)
		}
		if err := l.t.Enslave(cfg.Name, member); err != nil {
			return err
		}
		if err := l.t.SetLinkUp(member); err != nil {
			return fmt.Errorf("failed to bring up %s: %w", member, err)
		}
	}
	return nil
}

// Teardown removes the bond and returns its members to the up state. It is
// best-effort and idempotent: a bond that is already gone is not an error,
// and member recovery continues past individual failures.
func (l *Lifecycle) Teardown(cfg bond.Config) error {
	var errs []error

	if _, err := l.t.LinkAttrs(cfg.Name); err == nil {
		if err := l.t.SetLinkDown(cfg.Name); err != nil {
			errs = append(errs, err)
		}
		if err := l.t.DeleteLink(cfg.Name); err != nil {
			errs = append(errs, err)
		}
	}

	for _, member := range cfg.Interfaces {
		if err := l.t.SetLinkUp(member); err != nil {
			errs = append(errs, fmt.Errorf("failed to recover %s: %w", member, err))
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		l.log.Warn("bond teardown incomplete", "bond", cfg.Name, "error", err)
		return err
	}
	return nil
}

// RemoveTestBonds deletes all bond interfaces whose name carries the given
// prefix. Used by clean-boot preparation and by restore to sweep leftovers
// from earlier aborted runs.
func (l *Lifecycle) RemoveTestBonds(prefix string) error {
	names, err := l.t.LinkNames()
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		attrs, err := l.t.LinkAttrs(name)
		if err != nil || !attrs.IsBond {
			continue
		}
		l.log.Debug("removing leftover test bond", "bond", name)
		if err := l.t.DeleteLink(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
