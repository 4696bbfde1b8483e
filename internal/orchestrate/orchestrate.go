// Package orchestrate fans a configuration sweep out across the inventory
// with bounded parallelism. One host failing, timing out, or refusing its
// connection never stops the others; every host gets a Session either way.
package orchestrate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haugr/bondvet/internal/hostconn"
	"github.com/haugr/bondvet/internal/inventory"
	"github.com/haugr/bondvet/internal/logging"
	"github.com/haugr/bondvet/internal/netops"
	"github.com/haugr/bondvet/internal/probe"
	"github.com/haugr/bondvet/internal/runner"
)

const (
	// DefaultWidth is how many hosts sweep concurrently.
	DefaultWidth = 3
	// DefaultHostTimeout bounds one host's whole sweep. A full matrix on
	// four interfaces runs long; the timeout is a backstop, not a pace.
	DefaultHostTimeout = 40 * time.Minute
)

// Options tunes the fan-out.
type Options struct {
	Width       int
	HostTimeout time.Duration

	// Runner is passed through to each host's sweep.
	Runner runner.Options
}

func (o *Options) applyDefaults() {
	if o.Width == 0 {
		o.Width = DefaultWidth
	}
	if o.HostTimeout == 0 {
		o.HostTimeout = DefaultHostTimeout
	}
}

// HostSweeper runs one host's sweep. Satisfied by runner.HostRunner.
type HostSweeper interface {
	Run(ctx context.Context) *runner.Session
}

// RunnerFactory builds the sweeper for one host, plus a cleanup function.
// Errors become a fatal Session for that host rather than failing the run.
type RunnerFactory func(h inventory.Host) (HostSweeper, func(), error)

// Run sweeps every inventory host, at most opts.Width at a time. The result
// map has one Session per host and is only written after that host's sweep,
// including restore, has finished.
func Run(ctx context.Context, inv *inventory.Inventory, factory RunnerFactory, opts Options, log *logging.Logger) map[string]*runner.Session {
	opts.applyDefaults()
	if log == nil {
		log = logging.Default()
	}
	log = log.WithComponent("orchestrate")

	var mu sync.Mutex
	sessions := make(map[string]*runner.Session, len(inv.Hosts))
	record := func(s *runner.Session) {
		mu.Lock()
		sessions[s.Host] = s
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(opts.Width)
	for _, h := range inv.Hosts {
		h := h
		g.Go(func() error {
			hctx, cancel := context.WithTimeout(ctx, opts.HostTimeout)
			defer cancel()

			sweeper, cleanup, err := factory(h)
			if err != nil {
				log.Error("host unavailable", "host", h.Name, "error", err)
				record(&runner.Session{Host: h.Name, Fatal: err.Error()})
				return nil
			}
			defer cleanup()

			log.Info("host sweep starting", "host", h.Name)
			record(sweeper.Run(hctx))
			log.Info("host sweep finished", "host", h.Name)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
	return sessions
}

// DefaultFactory builds real sweepers: netlink for the local host, SSH plus
// shell commands for remote ones. The host must answer a liveness check
// before it is swept.
func DefaultFactory(log *logging.Logger, ropts runner.Options) RunnerFactory {
	return func(h inventory.Host) (HostSweeper, func(), error) {
		hostOpts := ropts
		if len(h.Interfaces) > 0 {
			hostOpts.Interfaces = h.Interfaces
		}
		if h.SwitchAddress != "" {
			hostOpts.SwitchLogs = switchLogsFor(h, log)
		}

		if h.IsLocal() {
			t, err := netops.NewNetlinkTransport()
			if err != nil {
				return nil, nil, err
			}
			return runner.New(h.Name, t, log, hostOpts), t.Close, nil
		}

		conn, err := hostconn.NewSSHRunner(hostconn.SSHConfig{
			Host:    h.Address,
			Port:    h.Port,
			User:    h.User,
			KeyPath: h.SSHKey,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		if err := conn.CheckAlive(); err != nil {
			conn.Close()
			return nil, nil, err
		}
		t := netops.NewExecTransport(conn)
		return runner.New(h.Name, t, log, hostOpts), func() { conn.Close() }, nil
	}
}

// switchLogsFor wires switch log collection when the inventory names a
// switch for the host. The fetcher is lazy; a switch that refuses its
// connection only costs the failed probes their diagnosis.
func switchLogsFor(h inventory.Host, log *logging.Logger) probe.SwitchLogFetcher {
	return &hostconn.SwitchLogSource{
		Address: h.SwitchAddress,
		User:    h.SwitchUser,
		KeyPath: h.SSHKey,
		Log:     log,
	}
}
