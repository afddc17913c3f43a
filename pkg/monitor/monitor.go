// Package monitor summarizes outcomes of published proposals and derives
// long-lived conversational memory facts. The monitor tool is optional; a
// local heuristic over evaluation risk signals stands in when it is missing
// or failing.
package monitor

import (
	"context"
	"fmt"

	"github.com/policyforge/advisor/pkg/textutil"
	"github.com/policyforge/advisor/pkg/turn"
)

// Monitor report statuses and source tags.
const (
	StatusOK      = "OK"
	StatusAlerts  = "ALERTS"
	StatusSkipped = "SKIPPED"

	SourceTool      = "MONITOR_TOOL"
	SourceHeuristic = "LOCAL_HEURISTIC"
	SourceToolError = "MONITOR_ERROR"
)

const maxMonitorItems = 8

// Request carries the full published-proposal context to the monitor tool.
type Request struct {
	MerchantID         string
	SessionID          string
	PublishedProposals []turn.Proposal
	ExplainPack        []turn.ExplainItem
	PublishReport      *turn.PublishResult
}

// Tool is the optional external outcome monitor.
type Tool interface {
	MonitorPublishedPolicies(ctx context.Context, req Request) (*turn.MonitorReport, error)
}

// Observe attaches a monitor report for the turn's published proposals. Only
// proposals whose publish outcome is ok are monitored; with none, the report
// is SKIPPED.
func Observe(ctx context.Context, tool Tool, in *turn.Turn, merchantID, sessionID string) *turn.Turn {
	out := *in
	t := &out

	published := publishedProposals(t)
	if len(published) == 0 {
		t.Protocol.PostPublishMonitor = &turn.MonitorReport{Status: StatusSkipped}
		return t
	}

	if tool != nil {
		var explain []turn.ExplainItem
		if t.Protocol.Ranking != nil {
			explain = t.Protocol.Ranking.ExplainPack
		}
		report, err := tool.MonitorPublishedPolicies(ctx, Request{
			MerchantID:         merchantID,
			SessionID:          sessionID,
			PublishedProposals: published,
			ExplainPack:        explain,
			PublishReport:      t.Protocol.Publish,
		})
		switch {
		case err != nil:
			fallback := heuristicReport(published)
			fallback.Source = SourceToolError
			fallback.Error = textutil.SummarizeError(err, 240)
			t.Protocol.PostPublishMonitor = fallback
		case report == nil:
			// A tool that answers with nothing is treated as absent, not
			// failing.
			t.Protocol.PostPublishMonitor = heuristicReport(published)
		default:
			attached := *report
			if attached.Source == "" {
				attached.Source = SourceTool
			}
			t.Protocol.PostPublishMonitor = &attached
		}
		return t
	}

	t.Protocol.PostPublishMonitor = heuristicReport(published)
	return t
}

// heuristicReport scans published proposals' evaluations for risk flags and
// rejected counts, deduplicates, and caps list sizes.
func heuristicReport(published []turn.Proposal) *turn.MonitorReport {
	report := &turn.MonitorReport{Status: StatusOK, Source: SourceHeuristic}
	for _, p := range published {
		ev := p.Evaluation
		if ev == nil {
			continue
		}
		if len(ev.RiskFlags) > 0 {
			report.Alerts = append(report.Alerts,
				fmt.Sprintf("%q was published with risk flags: %v", p.Title, ev.RiskFlags))
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("monitor %q hourly for the first day", p.Title))
		}
		if ev.RejectedCount > 0 {
			report.Alerts = append(report.Alerts,
				fmt.Sprintf("%q had %d rejected evaluation checks", p.Title, ev.RejectedCount))
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("consider pausing %q or adjusting its thresholds", p.Title))
		}
	}
	report.Alerts = dedupeFold(report.Alerts, maxMonitorItems)
	report.Recommendations = dedupeFold(report.Recommendations, maxMonitorItems)
	if len(report.Alerts) > 0 {
		report.Status = StatusAlerts
	}
	return report
}

func publishedProposals(t *turn.Turn) []turn.Proposal {
	var out []turn.Proposal
	for _, p := range t.Proposals {
		if p.Publish != nil && p.Publish.OK {
			out = append(out, p)
		}
	}
	return out
}
