package report

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Markdown renders the artifact as a human-readable report.
func (a *Artifact) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Bonding Interoperability Report\n\n")
	fmt.Fprintf(&b, "Session `%s`, started %s.\n\n", a.TestSession.ID,
		a.TestSession.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "%d hosts, %d configurations tested, %d succeeded (%.0f%%).\n\n",
		a.Summary.TotalHosts, a.Summary.ConfigurationsTested,
		a.Summary.ConfigurationsSucceeded, a.Summary.SuccessRate*100)

	b.WriteString("## Hosts\n\n")
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Host", "Interfaces", "Tested", "OK", "Failed", "Skipped", "Best Mode", "Negotiation", "Restored"})
	for _, name := range a.TestSession.Hosts {
		hr := a.HostResults[name]
		bestMode, bestTime := "-", "-"
		if hr.BestConfig != nil {
			bestMode = hr.BestConfig.Mode
			bestTime = fmt.Sprintf("%.1fs", hr.BestConfig.NegotiationTime)
		}
		restored := "yes"
		if !hr.RestoreOK {
			restored = "NO"
		}
		t.AppendRow(table.Row{
			name, len(hr.Interfaces), hr.Tested, hr.Succeeded, hr.Failed,
			hr.Skipped, bestMode, bestTime, restored,
		})
	}
	b.WriteString(t.RenderMarkdown())
	b.WriteString("\n\n")

	for _, name := range a.TestSession.Hosts {
		if fatal := a.HostResults[name].Fatal; fatal != "" {
			fmt.Fprintf(&b, "Host `%s` aborted: %s\n\n", name, fatal)
		}
	}

	analysis := a.CompatibilityAnalysis
	if analysis == nil {
		return b.String()
	}

	b.WriteString("## Mode Compatibility\n\n")
	t = table.NewWriter()
	t.AppendHeader(table.Row{"Mode", "Hosts"})
	for _, mc := range analysis.MostCompatibleModes {
		t.AppendRow(table.Row{mc.Mode, mc.Hosts})
	}
	b.WriteString(t.RenderMarkdown())
	b.WriteString("\n\n")

	if len(analysis.UniversalConfigurations) > 0 {
		b.WriteString("## Universal Configurations\n\n")
		t = table.NewWriter()
		t.AppendHeader(table.Row{"Mode", "Members", "Hosts"})
		for _, uc := range analysis.UniversalConfigurations {
			t.AppendRow(table.Row{uc.Mode, uc.Members, uc.Hosts})
		}
		b.WriteString(t.RenderMarkdown())
		b.WriteString("\n\n")
	}

	if len(analysis.PerformanceRecommendations) > 0 {
		b.WriteString("## Negotiation Performance\n\n")
		t = table.NewWriter()
		t.AppendHeader(table.Row{"Mode", "Members", "Mean Negotiation", "Samples"})
		for _, ct := range analysis.PerformanceRecommendations {
			t.AppendRow(table.Row{ct.Mode, ct.Members, fmt.Sprintf("%.1fs", ct.MeanSeconds), ct.Samples})
		}
		b.WriteString(t.RenderMarkdown())
		b.WriteString("\n\n")
	}

	if len(analysis.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for _, rec := range analysis.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}
	return b.String()
}
