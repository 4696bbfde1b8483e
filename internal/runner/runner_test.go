package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haugr/bondvet/internal/bond"
	"github.com/haugr/bondvet/internal/clock"
	"github.com/haugr/bondvet/internal/metrics"
	"github.com/haugr/bondvet/internal/netops"
	"github.com/haugr/bondvet/internal/probe"
)

const rrUpProc = `Bonding Mode: load balancing (round-robin)
MII Status: up

Slave Interface: eth0
MII Status: up

Slave Interface: eth1
MII Status: up
`

const rrDownProc = `Bonding Mode: load balancing (round-robin)
MII Status: down

Slave Interface: eth0
MII Status: down

Slave Interface: eth1
MII Status: down
`

// healthyHost stubs a two-interface host where every transport operation
// succeeds. Bond state reads return procOut.
func healthyHost(procOut string) *netops.MockTransport {
	mt := new(netops.MockTransport)
	mt.On("LinkNames").Return([]string{"eth0", "eth1", "lo"}, nil)
	for _, name := range []string{"eth0", "eth1"} {
		mt.On("LinkAttrs", name).Return(&netops.LinkAttrs{
			Name: name, OperState: netops.OperUp, MTU: 1500,
		}, nil)
		mt.On("InterfaceDetails", name).Return(&netops.InterfaceInfo{
			Name: name, Driver: "ixgbe", LinkDetected: true,
		}, nil)
	}
	mt.On("LinkAttrs", "lo").Return(&netops.LinkAttrs{Name: "lo", OperState: netops.OperUnknown}, nil)
	mt.On("LinkAttrs", mock.MatchedBy(func(name string) bool {
		return len(name) > 7 && name[:7] == "bondvet"
	})).Return(nil, netops.ErrLinkNotFound)

	mt.On("CreateBond", mock.Anything, mock.AnythingOfType("netops.BondParams")).Return(nil)
	mt.On("WriteFile", mock.Anything, mock.Anything).Return(nil)
	mt.On("SetLinkUp", mock.Anything).Return(nil)
	mt.On("SetLinkDown", mock.Anything).Return(nil)
	mt.On("SetLinkMTU", mock.Anything, mock.Anything).Return(nil)
	mt.On("Enslave", mock.Anything, mock.Anything).Return(nil)
	mt.On("DeleteLink", mock.Anything).Return(nil)
	mt.On("ReadFile", mock.Anything).Return(procOut, nil)
	return mt
}

func TestRunReducedSweepSucceeds(t *testing.T) {
	mt := healthyHost(rrUpProc)
	clk := clock.NewMockClock(time.Now())

	r := New("node1", mt, nil, Options{
		Reduced:    true,
		Modes:      []bond.Mode{bond.ModeBalanceRR},
		Interfaces: []string{"eth0", "eth1"},
		Clock:      clk,
	})
	session := r.Run(context.Background())

	assert.Empty(t, session.Fatal)
	require.Len(t, session.Results, 1)
	assert.Equal(t, probe.OutcomeSuccess, session.Results[0].Outcome)
	assert.Equal(t, 1, session.Tested)
	assert.Equal(t, 1, session.Succeeded)
	assert.Zero(t, session.Failed)
	assert.True(t, session.RestoreOK)
	assert.True(t, session.EndedAt.After(session.StartedAt) || session.EndedAt.Equal(session.StartedAt))
}

func TestRunRestoresInterfaceState(t *testing.T) {
	mt := healthyHost(rrUpProc)
	clk := clock.NewMockClock(time.Now())

	r := New("node1", mt, nil, Options{
		Reduced:    true,
		Modes:      []bond.Mode{bond.ModeBalanceRR},
		Interfaces: []string{"eth0", "eth1"},
		Clock:      clk,
	})
	session := r.Run(context.Background())

	require.True(t, session.RestoreOK)
	mt.AssertCalled(t, "SetLinkMTU", "eth0", 1500)
	mt.AssertCalled(t, "SetLinkMTU", "eth1", 1500)
}

func TestRunCancelledBeforeFirstConfig(t *testing.T) {
	mt := healthyHost(rrUpProc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New("node1", mt, nil, Options{
		Reduced:    true,
		Modes:      []bond.Mode{bond.ModeBalanceRR},
		Interfaces: []string{"eth0", "eth1"},
		Clock:      clock.NewMockClock(time.Now()),
	})
	session := r.Run(ctx)

	assert.Contains(t, session.Fatal, "cancelled")
	assert.Empty(t, session.Results)
	// Restore still runs on the cancellation path.
	mt.AssertCalled(t, "SetLinkMTU", "eth0", 1500)
}

func TestRunBreakerSkipsAfterFailures(t *testing.T) {
	mt := healthyHost(rrDownProc)
	clk := clock.NewMockClock(time.Now())

	// Full enumeration of one mode on two interfaces yields three
	// configurations (one per monitor interval).
	r := New("node1", mt, nil, Options{
		Modes:            []bond.Mode{bond.ModeBalanceRR},
		Interfaces:       []string{"eth0", "eth1"},
		BreakerThreshold: 1,
		Clock:            clk,
	})
	session := r.Run(context.Background())

	require.Len(t, session.Results, 3)
	assert.Equal(t, probe.OutcomeTimeout, session.Results[0].Outcome)
	assert.Equal(t, probe.OutcomeBreakerOpen, session.Results[1].Outcome)
	assert.Equal(t, probe.OutcomeBreakerOpen, session.Results[2].Outcome)
	assert.Equal(t, 1, session.Tested)
	assert.Equal(t, 1, session.Failed)
	assert.Equal(t, 2, session.Skipped)
	assert.Empty(t, session.Fatal)

	// The trip is visible on the metrics side as well.
	assert.InDelta(t, 1, promtestutil.ToFloat64(
		metrics.Get().BreakerState.WithLabelValues("node1", "balance-rr")), 0.001)
	assert.InDelta(t, 1, promtestutil.ToFloat64(
		metrics.Get().BreakerTrips.WithLabelValues("node1", "balance-rr")), 0.001)
}

func TestRunLifecycleBreakerSharedAcrossModes(t *testing.T) {
	mt := new(netops.MockTransport)
	mt.On("LinkNames").Return([]string{"eth0", "eth1", "lo"}, nil)
	for _, name := range []string{"eth0", "eth1"} {
		mt.On("LinkAttrs", name).Return(&netops.LinkAttrs{
			Name: name, OperState: netops.OperUp, MTU: 1500,
		}, nil)
		mt.On("InterfaceDetails", name).Return(&netops.InterfaceInfo{
			Name: name, Driver: "ixgbe", LinkDetected: true,
		}, nil)
	}
	mt.On("LinkAttrs", "lo").Return(&netops.LinkAttrs{Name: "lo", OperState: netops.OperUnknown}, nil)
	mt.On("LinkAttrs", mock.MatchedBy(func(name string) bool {
		return len(name) > 7 && name[:7] == "bondvet"
	})).Return(nil, netops.ErrLinkNotFound)
	mt.On("CreateBond", mock.Anything, mock.AnythingOfType("netops.BondParams")).
		Return(errors.New("ioctl failed: device or resource busy"))
	mt.On("SetLinkUp", mock.Anything).Return(nil)
	mt.On("SetLinkDown", mock.Anything).Return(nil)
	mt.On("SetLinkMTU", mock.Anything, mock.Anything).Return(nil)
	mt.On("DeleteLink", mock.Anything).Return(nil)

	r := New("node-lcb", mt, nil, Options{
		Reduced:          true,
		Modes:            []bond.Mode{bond.ModeBalanceRR, bond.ModeBalanceXOR, bond.ModeBroadcast},
		Interfaces:       []string{"eth0", "eth1"},
		BreakerThreshold: 2,
		Clock:            clock.NewMockClock(time.Now()),
	})
	session := r.Run(context.Background())

	// Generic create failures in two different modes open the shared
	// lifecycle breaker; the third mode is skipped without its own mode
	// breaker ever having failed.
	require.Len(t, session.Results, 3)
	assert.Equal(t, probe.OutcomeCreateFailed, session.Results[0].Outcome)
	assert.Equal(t, probe.OutcomeCreateFailed, session.Results[1].Outcome)
	assert.Equal(t, probe.OutcomeBreakerOpen, session.Results[2].Outcome)
	mt.AssertNumberOfCalls(t, "CreateBond", 2)
	assert.InDelta(t, 1, promtestutil.ToFloat64(
		metrics.Get().BreakerState.WithLabelValues("node-lcb", "lifecycle")), 0.001)
}

func TestRunDiscoveryFailureIsFatal(t *testing.T) {
	mt := new(netops.MockTransport)
	mt.On("LinkAttrs", "eth9").Return(nil, netops.ErrLinkNotFound)

	r := New("node1", mt, nil, Options{
		Interfaces: []string{"eth9"},
		Clock:      clock.NewMockClock(time.Now()),
	})
	session := r.Run(context.Background())

	assert.Contains(t, session.Fatal, "discovery failed")
	assert.Empty(t, session.Results)
}

func TestRunTooFewInterfacesNothingToTest(t *testing.T) {
	mt := new(netops.MockTransport)
	mt.On("LinkAttrs", "eth0").Return(&netops.LinkAttrs{Name: "eth0", OperState: netops.OperUp}, nil)
	mt.On("InterfaceDetails", "eth0").Return(&netops.InterfaceInfo{Name: "eth0", LinkDetected: true}, nil)

	r := New("node1", mt, nil, Options{
		Interfaces: []string{"eth0"},
		Clock:      clock.NewMockClock(time.Now()),
	})
	session := r.Run(context.Background())

	// An empty candidate set finalizes cleanly: no fatal marker, no
	// results, nothing touched.
	assert.Empty(t, session.Fatal)
	assert.Empty(t, session.Results)
	assert.True(t, session.RestoreOK)
	mt.AssertNotCalled(t, "CreateBond", mock.Anything, mock.Anything)
}
