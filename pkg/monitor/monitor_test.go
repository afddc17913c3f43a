package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyforge/advisor/pkg/turn"
)

type fakeTool struct {
	report *turn.MonitorReport
	err    error
	calls  int
	last   Request
}

func (f *fakeTool) MonitorPublishedPolicies(_ context.Context, req Request) (*turn.MonitorReport, error) {
	f.calls++
	f.last = req
	return f.report, f.err
}

func publishedTurn(proposals ...turn.Proposal) *turn.Turn {
	t := &turn.Turn{Status: turn.StatusProposalReady, Proposals: proposals}
	t.Protocol.Publish = &turn.PublishResult{Source: "PUBLISH_TOOL", PublishedCount: len(proposals)}
	return t
}

func okPublish(i int) *turn.PublishItem {
	return &turn.PublishItem{ProposalIndex: i, OK: true}
}

func TestObserve_SkippedWithoutPublishedProposals(t *testing.T) {
	tool := &fakeTool{}
	in := &turn.Turn{Status: turn.StatusProposalReady, Proposals: []turn.Proposal{
		{Title: "unpublished"},
		{Title: "failed", Publish: &turn.PublishItem{ProposalIndex: 1, OK: false}},
	}}

	out := Observe(context.Background(), tool, in, "m1", "s1")

	require.NotNil(t, out.Protocol.PostPublishMonitor)
	assert.Equal(t, StatusSkipped, out.Protocol.PostPublishMonitor.Status)
	assert.Zero(t, tool.calls, "tool is not called with nothing to monitor")
}

func TestObserve_ToolReportAttachedVerbatim(t *testing.T) {
	tool := &fakeTool{report: &turn.MonitorReport{
		Status: StatusAlerts,
		Alerts: []string{"redemption rate 3x forecast"},
	}}
	in := publishedTurn(turn.Proposal{Title: "promo", Publish: okPublish(0)})

	out := Observe(context.Background(), tool, in, "m1", "s1")

	report := out.Protocol.PostPublishMonitor
	require.NotNil(t, report)
	assert.Equal(t, StatusAlerts, report.Status)
	assert.Equal(t, SourceTool, report.Source, "empty source defaults to the tool tag")
	assert.Equal(t, []string{"redemption rate 3x forecast"}, report.Alerts)
	assert.Equal(t, "m1", tool.last.MerchantID)
	require.Len(t, tool.last.PublishedProposals, 1)
}

func TestObserve_ToolErrorFallsBackToHeuristic(t *testing.T) {
	tool := &fakeTool{err: errors.New("monitor  timeout")}
	in := publishedTurn(turn.Proposal{
		Title:      "risky promo",
		Publish:    okPublish(0),
		Evaluation: &turn.Evaluation{RiskFlags: []string{"MARGIN"}},
	})

	out := Observe(context.Background(), tool, in, "m1", "s1")

	report := out.Protocol.PostPublishMonitor
	require.NotNil(t, report)
	assert.Equal(t, SourceToolError, report.Source)
	assert.Equal(t, "monitor timeout", report.Error)
	assert.Equal(t, StatusAlerts, report.Status, "heuristic still runs under the error tag")
	assert.NotEmpty(t, report.Alerts)
}

func TestObserve_NilToolReportWithoutErrorFallsBackToHeuristic(t *testing.T) {
	tool := &fakeTool{}
	in := publishedTurn(turn.Proposal{
		Title:      "quiet promo",
		Publish:    okPublish(0),
		Evaluation: &turn.Evaluation{},
	})

	out := Observe(context.Background(), tool, in, "m1", "s1")

	report := out.Protocol.PostPublishMonitor
	require.NotNil(t, report)
	assert.Equal(t, SourceHeuristic, report.Source, "nothing failed, so no error tag")
	assert.Empty(t, report.Error)
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, 1, tool.calls)
}

func TestObserve_HeuristicWithoutTool(t *testing.T) {
	in := publishedTurn(
		turn.Proposal{
			Title:      "flagged",
			Publish:    okPublish(0),
			Evaluation: &turn.Evaluation{RiskFlags: []string{"MARGIN", "VOLUME"}},
		},
		turn.Proposal{
			Title:      "rejected-checks",
			Publish:    okPublish(1),
			Evaluation: &turn.Evaluation{RejectedCount: 2},
		},
	)

	out := Observe(context.Background(), nil, in, "m1", "s1")

	report := out.Protocol.PostPublishMonitor
	require.NotNil(t, report)
	assert.Equal(t, SourceHeuristic, report.Source)
	assert.Equal(t, StatusAlerts, report.Status)
	require.Len(t, report.Alerts, 2)
	assert.Contains(t, report.Alerts[0], "risk flags")
	assert.Contains(t, report.Alerts[1], "2 rejected evaluation checks")
	require.Len(t, report.Recommendations, 2)
	assert.Contains(t, report.Recommendations[0], "hourly")
	assert.Contains(t, report.Recommendations[1], "pausing")
}

func TestObserve_CleanPublishesAreOK(t *testing.T) {
	in := publishedTurn(turn.Proposal{
		Title:      "calm",
		Publish:    okPublish(0),
		Evaluation: &turn.Evaluation{},
	})

	out := Observe(context.Background(), nil, in, "m1", "s1")

	report := out.Protocol.PostPublishMonitor
	assert.Equal(t, StatusOK, report.Status)
	assert.Empty(t, report.Alerts)
}

func TestHeuristicReport_DedupesAndCaps(t *testing.T) {
	var published []turn.Proposal
	for i := 0; i < maxMonitorItems+4; i++ {
		published = append(published, turn.Proposal{
			Title:      "same name",
			Evaluation: &turn.Evaluation{RiskFlags: []string{"MARGIN"}},
		})
	}

	report := heuristicReport(published)

	assert.Len(t, report.Alerts, 1, "identical alerts collapse")
	assert.Len(t, report.Recommendations, 1)
}

func TestPublishedProposals(t *testing.T) {
	in := &turn.Turn{Proposals: []turn.Proposal{
		{Title: "ok", Publish: okPublish(0)},
		{Title: "failed", Publish: &turn.PublishItem{OK: false}},
		{Title: "never attempted"},
	}}

	got := publishedProposals(in)

	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Title)
}
