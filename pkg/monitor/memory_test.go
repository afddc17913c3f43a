package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyforge/advisor/pkg/turn"
)

type fakeUpdater struct {
	result *turn.MemoryUpdate
	err    error
	calls  int
	last   MemoryRequest
}

func (f *fakeUpdater) UpdateStrategyMemory(_ context.Context, req MemoryRequest) (*turn.MemoryUpdate, error) {
	f.calls++
	f.last = req
	return f.result, f.err
}

func TestExtractFacts_FiveBuckets(t *testing.T) {
	in := &turn.Turn{
		Status:   turn.StatusProposalReady,
		Proposal: &turn.Proposal{TemplateID: "discount-campaign", BranchID: "percentage"},
	}
	in.Protocol.PostPublishMonitor = &turn.MonitorReport{
		Recommendations: []string{"monitor hourly"},
	}
	message := "I want to increase sales for VIP customers this weekend, but keep the budget careful."

	facts := ExtractFacts(in, message, 8)

	require.Len(t, facts.Goals, 1)
	assert.Contains(t, facts.Goals[0], "increase")
	require.GreaterOrEqual(t, len(facts.Constraints), 2)
	assert.Contains(t, facts.Constraints[0], "budget")
	assert.Contains(t, facts.Constraints, "risk preference: cautious")
	require.Len(t, facts.Audience, 1)
	require.Len(t, facts.Timing, 1)
	assert.Contains(t, facts.Timing[0], "this weekend")

	require.Len(t, facts.Decisions, 3)
	assert.Equal(t, "turn outcome: PROPOSAL_READY", facts.Decisions[0])
	assert.Contains(t, facts.Decisions[1], "discount-campaign")
	assert.Contains(t, facts.Decisions[2], "monitor hourly")
}

func TestExtractFacts_ArabicAndHebrewKeywords(t *testing.T) {
	in := &turn.Turn{Status: turn.StatusChatReply}

	arabic := ExtractFacts(in, "أريد زيادة المبيعات بشكل عاجل", 8)
	assert.NotEmpty(t, arabic.Goals)
	assert.NotEmpty(t, arabic.Timing)

	hebrew := ExtractFacts(in, "רוצה להגדיל מכירות, זה דחוף", 8)
	assert.NotEmpty(t, hebrew.Goals)
	assert.NotEmpty(t, hebrew.Timing)
}

func TestExtractFacts_ChatTurnStillRecordsOutcome(t *testing.T) {
	facts := ExtractFacts(&turn.Turn{Status: turn.StatusChatReply}, "hello", 8)

	assert.Empty(t, facts.Goals)
	require.Len(t, facts.Decisions, 1)
	assert.Equal(t, "turn outcome: CHAT_REPLY", facts.Decisions[0])
}

func TestMergeFacts_AppendOnlyDedupedCapped(t *testing.T) {
	base := turn.MemoryFacts{Goals: []string{"grow revenue", "Retain VIPs"}}
	add := turn.MemoryFacts{Goals: []string{"retain vips", "expand reach"}}

	merged := MergeFacts(base, add, 8)

	assert.Equal(t, []string{"grow revenue", "Retain VIPs", "expand reach"}, merged.Goals,
		"base order kept, case-insensitive duplicate dropped")
}

func TestMergeFacts_CapKeepsOldestEntries(t *testing.T) {
	var base turn.MemoryFacts
	for i := 0; i < 8; i++ {
		base.Decisions = append(base.Decisions, fmt.Sprintf("decision %d", i))
	}
	add := turn.MemoryFacts{Decisions: []string{"decision new"}}

	merged := MergeFacts(base, add, 8)

	require.Len(t, merged.Decisions, 8)
	assert.Equal(t, "decision 0", merged.Decisions[0])
	assert.NotContains(t, merged.Decisions, "decision new", "full bucket never evicts old facts")
}

func TestMergeFacts_DoesNotMutateInputs(t *testing.T) {
	base := turn.MemoryFacts{Goals: []string{"a"}}
	add := turn.MemoryFacts{Goals: []string{"b"}}

	_ = MergeFacts(base, add, 8)

	assert.Equal(t, []string{"a"}, base.Goals)
	assert.Equal(t, []string{"b"}, add.Goals)
}

func TestDedupeFold_UnicodeCaseFolding(t *testing.T) {
	got := dedupeFold([]string{"Straße", "STRASSE", "café", "CAFÉ", "  ", "café"}, 8)

	assert.Equal(t, []string{"Straße", "café"}, got)
}

func TestUpdateMemory_LocalWhenNoUpdater(t *testing.T) {
	in := &turn.Turn{Status: turn.StatusChatReply}

	out := UpdateMemory(context.Background(), nil, in, "boost retention", "m1", "s1", 8)

	update := out.Protocol.MemoryUpdate
	require.NotNil(t, update)
	assert.Equal(t, MemorySourceLocal, update.Source)
	assert.NotEmpty(t, update.Facts.Goals)
	assert.Equal(t, "status=CHAT_REPLY proposals=0 published=0", update.Summary)
}

func TestUpdateMemory_UpdaterErrorKeepsComputedFacts(t *testing.T) {
	updater := &fakeUpdater{err: errors.New("memory store  down")}
	in := &turn.Turn{Status: turn.StatusChatReply}

	out := UpdateMemory(context.Background(), updater, in, "increase sales", "m1", "s1", 8)

	update := out.Protocol.MemoryUpdate
	require.NotNil(t, update)
	assert.Equal(t, MemorySourceToolError, update.Source)
	assert.Equal(t, "memory store down", update.Error)
	assert.NotEmpty(t, update.Facts.Goals, "locally computed facts survive the failure")
	assert.Equal(t, 1, updater.calls)
	assert.Equal(t, "m1", updater.last.MerchantID)
}

func TestUpdateMemory_NilResultWithoutErrorIsLocal(t *testing.T) {
	updater := &fakeUpdater{}
	in := &turn.Turn{Status: turn.StatusChatReply}

	out := UpdateMemory(context.Background(), updater, in, "increase sales", "m1", "s1", 8)

	update := out.Protocol.MemoryUpdate
	require.NotNil(t, update)
	assert.Equal(t, MemorySourceLocal, update.Source, "nothing failed, so no error tag")
	assert.Empty(t, update.Error)
	assert.NotEmpty(t, update.Facts.Goals)
	assert.Equal(t, 1, updater.calls)
}

func TestUpdateMemory_ToolResultAttachedWithDefaults(t *testing.T) {
	updater := &fakeUpdater{result: &turn.MemoryUpdate{Summary: "tool summary"}}
	in := &turn.Turn{Status: turn.StatusChatReply}

	out := UpdateMemory(context.Background(), updater, in, "increase sales", "m1", "s1", 8)

	update := out.Protocol.MemoryUpdate
	require.NotNil(t, update)
	assert.Equal(t, MemorySourceTool, update.Source, "empty source defaults to the tool tag")
	assert.Equal(t, "tool summary", update.Summary)
	assert.NotEmpty(t, update.Facts.Goals, "empty tool facts fall back to computed facts")
}

func TestUpdateMemory_ToolFactsWinWhenPresent(t *testing.T) {
	updater := &fakeUpdater{result: &turn.MemoryUpdate{
		Source: "CUSTOM",
		Facts:  turn.MemoryFacts{Goals: []string{"tool-owned goal"}},
	}}
	in := &turn.Turn{Status: turn.StatusChatReply}

	out := UpdateMemory(context.Background(), updater, in, "increase sales", "m1", "s1", 8)

	update := out.Protocol.MemoryUpdate
	assert.Equal(t, "CUSTOM", update.Source)
	assert.Equal(t, []string{"tool-owned goal"}, update.Facts.Goals)
}
