// Package analyze turns per-host sweep sessions into a cross-host
// compatibility picture: which modes work everywhere, which configurations
// are safe to roll out, and which modes negotiate fastest.
package analyze

import (
	"fmt"
	"sort"

	"github.com/haugr/bondvet/internal/bond"
	"github.com/haugr/bondvet/internal/probe"
	"github.com/haugr/bondvet/internal/runner"
)

// ModeCount is one entry of the mode compatibility ranking.
type ModeCount struct {
	Mode  string `json:"mode"`
	Hosts int    `json:"hosts"`
}

// UniversalConfig is a (mode, member count) class that succeeded on every
// host that attempted it.
type UniversalConfig struct {
	Mode    string `json:"mode"`
	Members int    `json:"members"`
	Hosts   int    `json:"hosts"`
}

// ConfigTiming is the mean negotiation time for one universal configuration
// class across the fleet.
type ConfigTiming struct {
	Mode        string  `json:"mode"`
	Members     int     `json:"members"`
	MeanSeconds float64 `json:"mean_negotiation_seconds"`
	Samples     int     `json:"samples"`
}

// Report is the cross-host compatibility analysis.
type Report struct {
	MostCompatibleModes        []ModeCount       `json:"most_compatible_modes"`
	UniversalConfigurations    []UniversalConfig `json:"universal_configurations"`
	PerformanceRecommendations []ConfigTiming    `json:"performance_recommendations"`
	Recommendations            []string          `json:"recommendations"`
}

// Analyze builds the report from finished sessions.
func Analyze(sessions map[string]*runner.Session) *Report {
	universal := universalConfigs(sessions)
	r := &Report{
		MostCompatibleModes:        rankModes(sessions),
		UniversalConfigurations:    universal,
		PerformanceRecommendations: rankTimings(sessions, universal),
	}
	r.Recommendations = recommendations(sessions, r)
	return r
}

// modeOrder gives ties a stable, kernel-documented order.
func modeOrder(mode string) int {
	for i, m := range bond.AllModes {
		if string(m) == mode {
			return i
		}
	}
	return len(bond.AllModes)
}

// rankModes counts, per mode, the hosts with at least one successful probe,
// most compatible first.
func rankModes(sessions map[string]*runner.Session) []ModeCount {
	hostsByMode := make(map[string]map[string]bool)
	for host, s := range sessions {
		for _, res := range s.Results {
			if !res.Success {
				continue
			}
			mode := string(res.Config.Mode)
			if hostsByMode[mode] == nil {
				hostsByMode[mode] = make(map[string]bool)
			}
			hostsByMode[mode][host] = true
		}
	}

	out := make([]ModeCount, 0, len(hostsByMode))
	for mode, hosts := range hostsByMode {
		out = append(out, ModeCount{Mode: mode, Hosts: len(hosts)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hosts != out[j].Hosts {
			return out[i].Hosts > out[j].Hosts
		}
		return modeOrder(out[i].Mode) < modeOrder(out[j].Mode)
	})
	return out
}

// universalConfigs finds (mode, member count) classes where every host that
// attempted the class had at least one success in it.
func universalConfigs(sessions map[string]*runner.Session) []UniversalConfig {
	type classKey struct {
		mode    string
		members int
	}
	attempted := make(map[classKey]map[string]bool)
	succeeded := make(map[classKey]map[string]bool)

	for host, s := range sessions {
		for _, res := range s.Results {
			// A configuration skipped by an open breaker or a cancelled
			// sweep was never tried; it must not veto a class another
			// host proved out.
			if res.Outcome == probe.OutcomeBreakerOpen || res.Outcome == probe.OutcomeCancelled {
				continue
			}
			key := classKey{string(res.Config.Mode), len(res.Config.Interfaces)}
			if attempted[key] == nil {
				attempted[key] = make(map[string]bool)
				succeeded[key] = make(map[string]bool)
			}
			attempted[key][host] = true
			if res.Success {
				succeeded[key][host] = true
			}
		}
	}

	var out []UniversalConfig
	for key, hosts := range attempted {
		if len(hosts) == 0 || len(succeeded[key]) != len(hosts) {
			continue
		}
		out = append(out, UniversalConfig{
			Mode:    key.mode,
			Members: key.members,
			Hosts:   len(hosts),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mode != out[j].Mode {
			return modeOrder(out[i].Mode) < modeOrder(out[j].Mode)
		}
		return out[i].Members < out[j].Members
	})
	return out
}

// rankTimings orders the universal configuration classes by mean negotiation
// time, fastest first. Only classes that succeeded everywhere are worth
// recommending on timing. LACP wins ties: a tie means the dynamic protocol
// costs nothing extra.
func rankTimings(sessions map[string]*runner.Session, universal []UniversalConfig) []ConfigTiming {
	type classKey struct {
		mode    string
		members int
	}
	eligible := make(map[classKey]bool, len(universal))
	for _, uc := range universal {
		eligible[classKey{uc.Mode, uc.Members}] = true
	}

	totals := make(map[classKey]float64)
	counts := make(map[classKey]int)
	for _, s := range sessions {
		for _, res := range s.Results {
			if !res.Success {
				continue
			}
			key := classKey{string(res.Config.Mode), len(res.Config.Interfaces)}
			if !eligible[key] {
				continue
			}
			totals[key] += res.NegotiationTime.Seconds()
			counts[key]++
		}
	}

	out := make([]ConfigTiming, 0, len(counts))
	for key, n := range counts {
		out = append(out, ConfigTiming{
			Mode:        key.mode,
			Members:     key.members,
			MeanSeconds: totals[key] / float64(n),
			Samples:     n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanSeconds != out[j].MeanSeconds {
			return out[i].MeanSeconds < out[j].MeanSeconds
		}
		iLACP := bond.Mode(out[i].Mode).IsLACP()
		jLACP := bond.Mode(out[j].Mode).IsLACP()
		if iLACP != jLACP {
			return iLACP
		}
		if out[i].Mode != out[j].Mode {
			return modeOrder(out[i].Mode) < modeOrder(out[j].Mode)
		}
		return out[i].Members < out[j].Members
	})
	return out
}

func recommendations(sessions map[string]*runner.Session, r *Report) []string {
	var recs []string
	total := len(sessions)

	if len(r.MostCompatibleModes) == 0 {
		recs = append(recs, "No bonding mode succeeded on any host; check cabling and switch configuration before rolling out bonding.")
	} else if top := r.MostCompatibleModes[0]; top.Hosts == total {
		recs = append(recs, fmt.Sprintf("Mode %s succeeded on all %d hosts and is the safest default.", top.Mode, total))
	} else {
		recs = append(recs, fmt.Sprintf("Mode %s has the widest support (%d of %d hosts); the remaining hosts need individual attention.", top.Mode, top.Hosts, total))
	}

	for _, mc := range r.MostCompatibleModes {
		if bond.Mode(mc.Mode).IsLACP() && mc.Hosts == total && total > 0 {
			recs = append(recs, "802.3ad negotiated everywhere; prefer LACP over static modes for link-failure detection.")
			break
		}
	}

	if len(r.PerformanceRecommendations) > 0 {
		fastest := r.PerformanceRecommendations[0]
		recs = append(recs, fmt.Sprintf("Mode %s with %d members negotiated fastest among universal configurations (mean %.1fs over %d probes).", fastest.Mode, fastest.Members, fastest.MeanSeconds, fastest.Samples))
	}

	hosts := make([]string, 0, len(sessions))
	for name := range sessions {
		hosts = append(hosts, name)
	}
	sort.Strings(hosts)
	for _, name := range hosts {
		s := sessions[name]
		if s.Fatal != "" {
			recs = append(recs, fmt.Sprintf("Host %s did not complete its sweep: %s.", name, s.Fatal))
		}
		if !s.RestoreOK {
			recs = append(recs, fmt.Sprintf("Host %s was not fully restored; inspect it manually: %s.", name, s.RestoreError))
		}
	}
	return recs
}
