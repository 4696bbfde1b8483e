package analyze

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haugr/bondvet/internal/bond"
	"github.com/haugr/bondvet/internal/probe"
	"github.com/haugr/bondvet/internal/runner"
)

func result(mode bond.Mode, members int, success bool, negotiation time.Duration) probe.Result {
	ifaces := make([]string, members)
	for i := range ifaces {
		ifaces[i] = "eth0"
	}
	res := probe.Result{
		Config:  bond.Config{Mode: mode, Interfaces: ifaces},
		Success: success,
	}
	if success {
		res.Outcome = probe.OutcomeSuccess
		res.NegotiationTime = negotiation
	} else {
		res.Outcome = probe.OutcomeTimeout
	}
	return res
}

func twoHostSessions() map[string]*runner.Session {
	return map[string]*runner.Session{
		"node1": {
			Host:      "node1",
			RestoreOK: true,
			Results: []probe.Result{
				result(bond.Mode8023AD, 2, true, 4*time.Second),
				result(bond.ModeActiveBackup, 2, true, 2*time.Second),
				result(bond.ModeBalanceRR, 2, true, 2*time.Second),
				result(bond.ModeBalanceTLB, 2, false, 0),
			},
		},
		"node2": {
			Host:      "node2",
			RestoreOK: true,
			Results: []probe.Result{
				result(bond.Mode8023AD, 2, true, 6*time.Second),
				result(bond.ModeActiveBackup, 2, false, 0),
				result(bond.ModeBalanceRR, 2, true, 4*time.Second),
			},
		},
	}
}

func TestAnalyzeModeRanking(t *testing.T) {
	r := Analyze(twoHostSessions())

	require.NotEmpty(t, r.MostCompatibleModes)
	// balance-rr and 802.3ad both succeeded on 2 hosts; balance-rr comes
	// first in kernel mode order.
	assert.Equal(t, ModeCount{Mode: "balance-rr", Hosts: 2}, r.MostCompatibleModes[0])
	assert.Equal(t, ModeCount{Mode: "802.3ad", Hosts: 2}, r.MostCompatibleModes[1])
	assert.Equal(t, ModeCount{Mode: "active-backup", Hosts: 1}, r.MostCompatibleModes[2])
}

func TestAnalyzeUniversalConfigurations(t *testing.T) {
	r := Analyze(twoHostSessions())

	assert.Contains(t, r.UniversalConfigurations, UniversalConfig{Mode: "balance-rr", Members: 2, Hosts: 2})
	assert.Contains(t, r.UniversalConfigurations, UniversalConfig{Mode: "802.3ad", Members: 2, Hosts: 2})
	// active-backup failed on node2, balance-tlb failed on its only host.
	for _, uc := range r.UniversalConfigurations {
		assert.NotEqual(t, "active-backup", uc.Mode)
		assert.NotEqual(t, "balance-tlb", uc.Mode)
	}
}

func TestAnalyzeTimingRanking(t *testing.T) {
	r := Analyze(twoHostSessions())

	// Only the universal classes are ranked: balance-rr/2 (mean 3s) and
	// 802.3ad/2 (mean 5s). active-backup is faster on node1 but failed on
	// node2, so it must not appear.
	require.Len(t, r.PerformanceRecommendations, 2)
	assert.Equal(t, "balance-rr", r.PerformanceRecommendations[0].Mode)
	assert.Equal(t, 2, r.PerformanceRecommendations[0].Members)
	assert.InDelta(t, 3.0, r.PerformanceRecommendations[0].MeanSeconds, 0.001)
	assert.Equal(t, "802.3ad", r.PerformanceRecommendations[1].Mode)
	assert.InDelta(t, 5.0, r.PerformanceRecommendations[1].MeanSeconds, 0.001)
	assert.Equal(t, 2, r.PerformanceRecommendations[1].Samples)
}

func TestAnalyzeTimingsExcludeNonUniversalModes(t *testing.T) {
	sessions := map[string]*runner.Session{
		"node1": {
			Host:      "node1",
			RestoreOK: true,
			Results: []probe.Result{
				result(bond.ModeBalanceRR, 2, true, 1*time.Second),
				result(bond.Mode8023AD, 2, true, 3*time.Second),
			},
		},
		"node2": {
			Host:      "node2",
			RestoreOK: true,
			Results: []probe.Result{
				result(bond.ModeBalanceRR, 2, false, 0),
				result(bond.Mode8023AD, 2, true, 3*time.Second),
			},
		},
	}
	r := Analyze(sessions)

	// balance-rr negotiated fastest where it worked, but it failed on
	// node2; only 802.3ad/2 is safe to recommend.
	require.Len(t, r.PerformanceRecommendations, 1)
	assert.Equal(t, "802.3ad", r.PerformanceRecommendations[0].Mode)
	assert.Equal(t, 2, r.PerformanceRecommendations[0].Members)
	assert.InDelta(t, 3.0, r.PerformanceRecommendations[0].MeanSeconds, 0.001)
}

func TestAnalyzeSkippedResultsAreNotAttempts(t *testing.T) {
	skippedRR := result(bond.Mode8023AD, 2, false, 0)
	skippedRR.Outcome = probe.OutcomeBreakerOpen
	cancelled := result(bond.Mode8023AD, 2, false, 0)
	cancelled.Outcome = probe.OutcomeCancelled
	sessions := map[string]*runner.Session{
		"node1": {
			Host:      "node1",
			RestoreOK: true,
			Results:   []probe.Result{result(bond.Mode8023AD, 2, true, 2*time.Second)},
		},
		"node2": {
			Host:      "node2",
			RestoreOK: true,
			Results:   []probe.Result{skippedRR, cancelled},
		},
	}
	r := Analyze(sessions)

	// node2 never actually tried 802.3ad/2, so node1's success makes the
	// class universal among the hosts that attempted it.
	require.Len(t, r.UniversalConfigurations, 1)
	assert.Equal(t, UniversalConfig{Mode: "802.3ad", Members: 2, Hosts: 1}, r.UniversalConfigurations[0])
}

func TestAnalyzeLACPWinsTimingTies(t *testing.T) {
	sessions := map[string]*runner.Session{
		"node1": {
			Host:      "node1",
			RestoreOK: true,
			Results: []probe.Result{
				result(bond.Mode8023AD, 2, true, 3*time.Second),
				result(bond.ModeBalanceRR, 2, true, 3*time.Second),
			},
		},
	}
	r := Analyze(sessions)

	require.Len(t, r.PerformanceRecommendations, 2)
	assert.Equal(t, "802.3ad", r.PerformanceRecommendations[0].Mode)
}

func TestAnalyzeRecommendations(t *testing.T) {
	sessions := twoHostSessions()
	r := Analyze(sessions)

	require.NotEmpty(t, r.Recommendations)
	assert.Contains(t, r.Recommendations[0], "balance-rr")
	assert.Contains(t, r.Recommendations[0], "all 2 hosts")

	var lacpRec bool
	for _, rec := range r.Recommendations {
		if rec == "802.3ad negotiated everywhere; prefer LACP over static modes for link-failure detection." {
			lacpRec = true
		}
	}
	assert.True(t, lacpRec)
}

func TestAnalyzeFlagsFatalAndRestoreFailures(t *testing.T) {
	sessions := map[string]*runner.Session{
		"node1": {
			Host:         "node1",
			Fatal:        "cancelled before completing all configurations",
			RestoreOK:    false,
			RestoreError: "interface eth0 MTU 9000, want 1500",
		},
	}
	r := Analyze(sessions)

	joined := ""
	for _, rec := range r.Recommendations {
		joined += rec + "\n"
	}
	assert.Contains(t, joined, "did not complete its sweep")
	assert.Contains(t, joined, "not fully restored")
	assert.Contains(t, joined, "MTU 9000")
}

func TestAnalyzeEmptySessions(t *testing.T) {
	r := Analyze(map[string]*runner.Session{})

	assert.Empty(t, r.MostCompatibleModes)
	assert.Empty(t, r.UniversalConfigurations)
	assert.Empty(t, r.PerformanceRecommendations)
	require.NotEmpty(t, r.Recommendations)
	assert.Contains(t, r.Recommendations[0], "No bonding mode succeeded")
}
