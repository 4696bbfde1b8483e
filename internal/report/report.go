// Package report serializes a finished run: a JSON artifact for machines
// and a markdown rendering for humans.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/haugr/bondvet/internal/analyze"
	"github.com/haugr/bondvet/internal/netops"
	"github.com/haugr/bondvet/internal/probe"
	"github.com/haugr/bondvet/internal/runner"
)

// NewSessionID returns a fresh run identifier.
func NewSessionID() string {
	return "lacp-" + uuid.NewString()
}

// TestSession identifies one run.
type TestSession struct {
	ID        string    `json:"session_id"`
	StartedAt time.Time `json:"start_time"`
	Hosts     []string  `json:"hosts"`
}

// Summary aggregates counts across all hosts.
type Summary struct {
	TotalHosts              int     `json:"total_hosts"`
	ConfigurationsTested    int     `json:"configurations_tested"`
	ConfigurationsSucceeded int     `json:"configurations_succeeded"`
	SuccessRate             float64 `json:"success_rate"`
}

// BestConfig is the fastest-negotiating successful configuration on a host.
type BestConfig struct {
	Mode            string   `json:"mode"`
	Interfaces      []string `json:"interfaces"`
	NegotiationTime float64  `json:"negotiation_time"`
}

// HostResult is the per-host section of the artifact.
type HostResult struct {
	Interfaces   []netops.InterfaceInfo `json:"interfaces"`
	Tested       int                    `json:"configurations_tested"`
	Succeeded    int                    `json:"successful"`
	Failed       int                    `json:"failed"`
	Skipped      int                    `json:"skipped"`
	BestConfig   *BestConfig            `json:"best_config,omitempty"`
	Fatal        string                 `json:"fatal,omitempty"`
	RestoreOK    bool                   `json:"restore_ok"`
	RestoreError string                 `json:"restore_error,omitempty"`
	Results      []probe.Result         `json:"results"`
}

// Artifact is the whole run, ready to serialize.
type Artifact struct {
	TestSession           TestSession           `json:"test_session"`
	Summary               Summary               `json:"summary"`
	HostResults           map[string]HostResult `json:"host_results"`
	CompatibilityAnalysis *analyze.Report       `json:"compatibility_analysis"`
}

// Build assembles the artifact from finished sessions.
func Build(sessionID string, startedAt time.Time, sessions map[string]*runner.Session, analysis *analyze.Report) *Artifact {
	hosts := make([]string, 0, len(sessions))
	for name := range sessions {
		hosts = append(hosts, name)
	}
	sort.Strings(hosts)

	a := &Artifact{
		TestSession: TestSession{
			ID:        sessionID,
			StartedAt: startedAt,
			Hosts:     hosts,
		},
		HostResults:           make(map[string]HostResult, len(sessions)),
		CompatibilityAnalysis: analysis,
	}

	for _, name := range hosts {
		s := sessions[name]
		hr := HostResult{
			Interfaces:   s.Interfaces,
			Tested:       s.Tested,
			Succeeded:    s.Succeeded,
			Failed:       s.Failed,
			Skipped:      s.Skipped,
			BestConfig:   bestConfig(s.Results),
			Fatal:        s.Fatal,
			RestoreOK:    s.RestoreOK,
			RestoreError: s.RestoreError,
			Results:      s.Results,
		}
		a.HostResults[name] = hr
		a.Summary.ConfigurationsTested += s.Tested
		a.Summary.ConfigurationsSucceeded += s.Succeeded
	}
	a.Summary.TotalHosts = len(hosts)
	if a.Summary.ConfigurationsTested > 0 {
		a.Summary.SuccessRate = float64(a.Summary.ConfigurationsSucceeded) /
			float64(a.Summary.ConfigurationsTested)
	}
	return a
}

// bestConfig picks the successful result with the lowest negotiation time.
func bestConfig(results []probe.Result) *BestConfig {
	var best *probe.Result
	for i := range results {
		res := &results[i]
		if !res.Success {
			continue
		}
		if best == nil || res.NegotiationTime < best.NegotiationTime {
			best = res
		}
	}
	if best == nil {
		return nil
	}
	return &BestConfig{
		Mode:            string(best.Config.Mode),
		Interfaces:      best.Config.Interfaces,
		NegotiationTime: best.NegotiationTime.Seconds(),
	}
}

// JSON renders the artifact as indented JSON.
func (a *Artifact) JSON() ([]byte, error) {
	out, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return append(out, '\n'), nil
}
