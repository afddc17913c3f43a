package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyforge/advisor/pkg/turn"
)

type fakeValidator struct {
	verdict *turn.ApprovalDecision
	err     error
	calls   int
	last    ValidationRequest
}

func (f *fakeValidator) ValidateApproval(_ context.Context, req ValidationRequest) (*turn.ApprovalDecision, error) {
	f.calls++
	f.last = req
	return f.verdict, f.err
}

type fakePublisher struct {
	result *turn.PublishResult
	err    error
	calls  int
	last   PublishRequest
}

func (f *fakePublisher) PublishPolicies(_ context.Context, req PublishRequest) (*turn.PublishResult, error) {
	f.calls++
	f.last = req
	return f.result, f.err
}

func readyTurn(n int) *turn.Turn {
	t := &turn.Turn{Status: turn.StatusProposalReady, AssistantMessage: "drafted."}
	for i := 0; i < n; i++ {
		t.Proposals = append(t.Proposals, turn.Proposal{Title: string(rune('A' + i))})
	}
	return t
}

func approvedInput() Input {
	return Input{PublishIntent: true, ApprovalToken: "tok-1", MerchantID: "m1", SessionID: "s1"}
}

func TestRun_NoOpWithoutPublishIntent(t *testing.T) {
	in := readyTurn(1)

	out := Run(context.Background(), &fakeValidator{}, &fakePublisher{}, in, Input{PublishIntent: false, ApprovalToken: "tok"})

	assert.Same(t, in, out)
	assert.Nil(t, out.Protocol.Approval)
}

func TestRun_NoOpWithoutReadyProposals(t *testing.T) {
	chat := &turn.Turn{Status: turn.StatusChatReply}
	assert.Same(t, chat, Run(context.Background(), nil, nil, chat, approvedInput()))

	empty := &turn.Turn{Status: turn.StatusProposalReady}
	assert.Same(t, empty, Run(context.Background(), nil, nil, empty, approvedInput()))
}

func TestRun_MissingTokenRejectsLocally(t *testing.T) {
	v := &fakeValidator{}
	in := readyTurn(2)
	input := approvedInput()
	input.ApprovalToken = ""

	out := Run(context.Background(), v, &fakePublisher{}, in, input)

	require.NotNil(t, out.Protocol.Approval)
	assert.True(t, out.Protocol.Approval.Required)
	assert.False(t, out.Protocol.Approval.Approved)
	assert.Equal(t, ReasonMissingToken, out.Protocol.Approval.Reason)
	assert.Equal(t, SourceLocal, out.Protocol.Approval.Source)
	assert.Zero(t, v.calls)

	require.NotNil(t, out.Protocol.Publish)
	assert.Equal(t, PublishSourceSkipped, out.Protocol.Publish.Source)
	assert.Zero(t, out.Protocol.Publish.PublishedCount)
	assert.Len(t, out.Protocol.Publish.Items, 2, "skips are explicit, one per proposal")
	assert.Contains(t, out.AssistantMessage, "requires approval")
}

func TestRun_MissingValidatorRejects(t *testing.T) {
	out := Run(context.Background(), nil, &fakePublisher{}, readyTurn(1), approvedInput())

	assert.Equal(t, ReasonValidatorMissing, out.Protocol.Approval.Reason)
	assert.Equal(t, PublishSourceSkipped, out.Protocol.Publish.Source)
}

func TestRun_ValidatorErrorRejects(t *testing.T) {
	v := &fakeValidator{err: errors.New("approval  service down")}

	out := Run(context.Background(), v, &fakePublisher{}, readyTurn(1), approvedInput())

	assert.False(t, out.Protocol.Approval.Approved)
	assert.Contains(t, out.Protocol.Approval.Reason, ReasonValidatorError)
	assert.Contains(t, out.Protocol.Approval.Reason, "approval service down")
	assert.Equal(t, SourceLocal, out.Protocol.Approval.Source)
}

func TestRun_ValidatorRejectionSkipsPublish(t *testing.T) {
	v := &fakeValidator{verdict: &turn.ApprovalDecision{Approved: false, Reason: "token expired"}}
	p := &fakePublisher{}

	out := Run(context.Background(), v, p, readyTurn(1), approvedInput())

	assert.False(t, out.Protocol.Approval.Approved)
	assert.Equal(t, "token expired", out.Protocol.Approval.Reason)
	assert.Equal(t, SourceValidator, out.Protocol.Approval.Source)
	assert.Zero(t, p.calls)
	assert.Equal(t, 1, v.calls)
	assert.Equal(t, "tok-1", v.last.ApprovalToken)
}

func TestRun_ApprovedWithoutPublisherIsUnavailable(t *testing.T) {
	v := &fakeValidator{verdict: &turn.ApprovalDecision{Approved: true, ApprovalID: "ap-1"}}

	out := Run(context.Background(), v, nil, readyTurn(2), approvedInput())

	assert.True(t, out.Protocol.Approval.Approved)
	require.NotNil(t, out.Protocol.Publish)
	assert.Equal(t, PublishSourceUnavailable, out.Protocol.Publish.Source)
	assert.Zero(t, out.Protocol.Publish.PublishedCount)
	assert.Len(t, out.Protocol.Publish.Items, 2)
}

func TestRun_PublisherErrorMarksAllFailed(t *testing.T) {
	v := &fakeValidator{verdict: &turn.ApprovalDecision{Approved: true, ApprovalID: "ap-1"}}
	p := &fakePublisher{err: errors.New("publish backend 503")}

	out := Run(context.Background(), v, p, readyTurn(3), approvedInput())

	result := out.Protocol.Publish
	require.NotNil(t, result)
	assert.Equal(t, PublishSourceToolError, result.Source)
	assert.Equal(t, 3, result.FailedCount)
	assert.Zero(t, result.PublishedCount)
	require.Len(t, result.Items, 3)
	for i, item := range result.Items {
		assert.Equal(t, i, item.ProposalIndex)
		assert.False(t, item.OK)
		assert.Contains(t, item.Error, "503")
	}
	assert.Equal(t, "ap-1", p.last.ApprovalID)
}

func TestRun_SuccessfulPublishRecountsAndAttaches(t *testing.T) {
	v := &fakeValidator{verdict: &turn.ApprovalDecision{Approved: true, ApprovalID: "ap-9"}}
	p := &fakePublisher{result: &turn.PublishResult{
		Source: "PUBLISH_TOOL",
		// Counts from the tool are recomputed, not trusted.
		PublishedCount: 99,
		Items: []turn.PublishItem{
			{ProposalIndex: 0, OK: true, PolicyID: "pol-1"},
			{ProposalIndex: 1, OK: false, Error: "conflict"},
		},
	}}
	in := readyTurn(2)

	out := Run(context.Background(), v, p, in, approvedInput())

	result := out.Protocol.Publish
	require.NotNil(t, result)
	assert.Equal(t, 1, result.PublishedCount)
	assert.Equal(t, 1, result.FailedCount)

	require.NotNil(t, out.Proposals[0].Publish)
	assert.True(t, out.Proposals[0].Publish.OK)
	assert.Equal(t, "pol-1", out.Proposals[0].Publish.PolicyID)
	require.NotNil(t, out.Proposals[1].Publish)
	assert.Equal(t, "conflict", out.Proposals[1].Publish.Error)
	require.NotNil(t, out.Proposal)
	assert.True(t, out.Proposal.Publish.OK, "primary proposal mirrors the first entry")

	assert.Nil(t, in.Proposals[0].Publish, "input turn untouched")
}

func TestAttachPublishItems_FirstOKWinsOnDuplicateIndex(t *testing.T) {
	t1 := readyTurn(1)
	t1.Protocol.Publish = &turn.PublishResult{Items: []turn.PublishItem{
		{ProposalIndex: 0, OK: false, Error: "retry 1"},
		{ProposalIndex: 0, OK: true, PublishID: "pub-2"},
		{ProposalIndex: 0, OK: true, PublishID: "pub-3"},
	}}

	attachPublishItems(t1)

	require.NotNil(t, t1.Proposals[0].Publish)
	assert.True(t, t1.Proposals[0].Publish.OK)
	assert.Equal(t, "pub-2", t1.Proposals[0].Publish.PublishID, "first successful item wins")
}

func TestAttachPublishItems_OutOfRangeIndexIgnored(t *testing.T) {
	t1 := readyTurn(1)
	t1.Protocol.Publish = &turn.PublishResult{Items: []turn.PublishItem{
		{ProposalIndex: 7, OK: true},
	}}

	attachPublishItems(t1)

	assert.Nil(t, t1.Proposals[0].Publish)
}
