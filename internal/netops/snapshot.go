package netops

import (
	"errors"
	"fmt"
	"time"

	"github.com/haugr/bondvet/internal/logging"
)

// SavedLink is the pre-test state of one physical interface.
type SavedLink struct {
	Name      string
	Exists    bool
	OperState OperState
	MTU       int
	Enslaved  bool // was already part of a bond before the run
}

// Snapshot captures the pre-test state of every interface a host run will
// touch, plus the set of bond interfaces that already existed and must
// survive restore. It is owned by one host runner and is not safe for
// concurrent use.
type Snapshot struct {
	TakenAt time.Time
	Links   map[string]SavedLink

	// preexistingBonds guards restore against deleting aggregates that were
	// on the host before testing started.
	preexistingBonds map[string]bool
}

// TakeSnapshot records the state of the named interfaces and the host's
// current bond inventory. It must run before the first configuration is
// applied.
func TakeSnapshot(t Transport, interfaces []string, now time.Time) (*Snapshot, error) {
	snap := &Snapshot{
		TakenAt:          now,
		Links:            make(map[string]SavedLink, len(interfaces)),
		preexistingBonds: make(map[string]bool),
	}

	names, err := t.LinkNames()
	if err != nil {
		return nil, fmt.Errorf("snapshot failed: %w", err)
	}
	for _, name := range names {
		attrs, err := t.LinkAttrs(name)
		if err != nil {
			continue
		}
		if attrs.IsBond {
			snap.preexistingBonds[name] = true
		}
	}

	for _, name := range interfaces {
		attrs, err := t.LinkAttrs(name)
		if err != nil {
			if errors.Is(err, ErrLinkNotFound) {
				snap.Links[name] = SavedLink{Name: name, Exists: false}
				continue
			}
			return nil, fmt.Errorf("snapshot of %s failed: %w", name, err)
		}
		snap.Links[name] = SavedLink{
			Name:      name,
			Exists:    true,
			OperState: attrs.OperState,
			MTU:       attrs.MTU,
			Enslaved:  attrs.Master != "",
		}
	}
	return snap, nil
}

// Restore returns the host to the snapshotted state: every bond created
// since the snapshot is removed, then each physical interface gets its
// original MTU and operational state back. Restore is best-effort; all
// failures are collected and returned as one error for the caller to log
// as a session warning, never to escalate.
func (s *Snapshot) Restore(t Transport, log *logging.Logger) error {
	if log == nil {
		log = logging.Default()
	}
	var errs []error

	names, err := t.LinkNames()
	if err != nil {
		errs = append(errs, fmt.Errorf("restore could not list links: %w", err))
	} else {
		for _, name := range names {
			attrs, err := t.LinkAttrs(name)
			if err != nil || !attrs.IsBond || s.preexistingBonds[name] {
				continue
			}
			log.Debug("restore removing bond", "bond", name)
			if err := t.DeleteLink(name); err != nil {
				errs = append(errs, fmt.Errorf("restore could not delete bond %s: %w", name, err))
			}
		}
	}

	for _, saved := range s.Links {
		if !saved.Exists {
			continue
		}
		if err := t.SetLinkMTU(saved.Name, saved.MTU); err != nil {
			errs = append(errs, fmt.Errorf("restore MTU on %s: %w", saved.Name, err))
		}
		switch saved.OperState {
		case OperUp, OperUnknown:
			if err := t.SetLinkUp(saved.Name); err != nil {
				errs = append(errs, fmt.Errorf("restore link state on %s: %w", saved.Name, err))
			}
		case OperDown:
			if err := t.SetLinkDown(saved.Name); err != nil {
				errs = append(errs, fmt.Errorf("restore link state on %s: %w", saved.Name, err))
			}
		}
	}

	return errors.Join(errs...)
}

// Verify re-reads the snapshotted interfaces and reports any drift from the
// saved state. Used by tests and by post-restore validation.
func (s *Snapshot) Verify(t Transport) error {
	var errs []error

	names, err := t.LinkNames()
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	for _, name := range names {
		attrs, err := t.LinkAttrs(name)
		if err != nil {
			continue
		}
		if attrs.IsBond && !s.preexistingBonds[name] {
			errs = append(errs, fmt.Errorf("leftover bond %s", name))
		}
	}

	for _, saved := range s.Links {
		if !saved.Exists {
			continue
		}
		attrs, err := t.LinkAttrs(saved.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("interface %s missing after restore", saved.Name))
			continue
		}
		if attrs.MTU != saved.MTU {
			errs = append(errs, fmt.Errorf("interface %s MTU %d, want %d", saved.Name, attrs.MTU, saved.MTU))
		}
		if attrs.OperState != saved.OperState && saved.OperState != OperUnknown {
			errs = append(errs, fmt.Errorf("interface %s state %s, want %s", saved.Name, attrs.OperState, saved.OperState))
		}
		if !saved.Enslaved && attrs.Master != "" {
			errs = append(errs, fmt.Errorf("interface %s still enslaved to %s", saved.Name, attrs.Master))
		}
	}
	return errors.Join(errs...)
}
