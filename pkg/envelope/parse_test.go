package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PlainText(t *testing.T) {
	res := Parse("Happy to help with your discount question.  ")

	assert.Equal(t, SourceFormatText, res.SourceFormat)
	assert.Equal(t, "Happy to help with your discount question.", res.AssistantMessage)
	assert.False(t, res.ParseError)
	assert.False(t, res.ForceProposal)
	assert.Empty(t, res.RawCandidates)
}

func TestParse_EnvelopeWithPrefix(t *testing.T) {
	raw := "Here is a draft.\n" + `{"schemaVersion":"1","mode":"PROPOSAL","proposals":[{"templateId":"discount-campaign","branchId":"percentage","title":"Summer sale","confidence":0.8,"patch":{"discount":{"value":15}}}]}`

	res := Parse(raw)

	require.Equal(t, SourceFormatEnvelope, res.SourceFormat)
	assert.Equal(t, "Here is a draft.", res.AssistantMessage)
	assert.Equal(t, "1", res.SchemaVersion)
	assert.True(t, res.ForceProposal)
	require.Len(t, res.RawCandidates, 1)
	assert.Equal(t, "discount-campaign", res.RawCandidates[0]["templateId"])
}

func TestParse_BareEnvelope(t *testing.T) {
	res := Parse(`{"schemaVersion":"1","proposals":[]}`)

	require.Equal(t, SourceFormatEnvelope, res.SourceFormat)
	assert.Empty(t, res.AssistantMessage)
	assert.False(t, res.ForceProposal)
	assert.Empty(t, res.RawCandidates)
}

func TestParse_AssistantMessageOverride(t *testing.T) {
	raw := "streamed prefix\n" + `{"schemaVersion":"1","assistantMessage":" Use this instead. ","proposals":[]}`

	res := Parse(raw)

	assert.Equal(t, "Use this instead.", res.AssistantMessage)
}

func TestParse_BlankOverrideKeepsPrefix(t *testing.T) {
	raw := "keep me\n" + `{"schemaVersion":"1","assistantMessage":"   ","proposals":[]}`

	res := Parse(raw)

	assert.Equal(t, "keep me", res.AssistantMessage)
}

func TestParse_SingularProposal(t *testing.T) {
	raw := "\n" + `{"schemaVersion":"1","proposal":{"templateId":"loyalty-boost","title":"Double points"}}`

	res := Parse(raw)

	require.Len(t, res.RawCandidates, 1)
	assert.Equal(t, "loyalty-boost", res.RawCandidates[0]["templateId"])
}

func TestParse_InvalidJSONFallsBackToPrefix(t *testing.T) {
	raw := "Working on it.\n" + `{"schemaVersion":"1","proposals":[{"broken"`

	res := Parse(raw)

	assert.Equal(t, SourceFormatInvalidJSON, res.SourceFormat)
	assert.True(t, res.ParseError)
	assert.Equal(t, "Working on it.", res.AssistantMessage)
	assert.Empty(t, res.RawCandidates)
}

func TestParse_InvalidJSONWithoutPrefixKeepsRaw(t *testing.T) {
	raw := `{"schemaVersion":"1","proposals":[{"broken"`

	res := Parse(raw)

	assert.Equal(t, SourceFormatInvalidJSON, res.SourceFormat)
	assert.True(t, res.ParseError)
	assert.Equal(t, raw, res.AssistantMessage)
}

func TestParse_TrailingTextAfterObjectIsInvalid(t *testing.T) {
	raw := "prefix\n" + `{"schemaVersion":"1","proposals":[]}` + " and then some more"

	res := Parse(raw)

	assert.Equal(t, SourceFormatInvalidJSON, res.SourceFormat)
	assert.True(t, res.ParseError)
	assert.Equal(t, "prefix", res.AssistantMessage)
}

func TestParse_NonProposalModeIsNotForced(t *testing.T) {
	raw := "\n" + `{"schemaVersion":"1","mode":"CHAT","proposals":[]}`

	res := Parse(raw)

	assert.Equal(t, SourceFormatEnvelope, res.SourceFormat)
	assert.False(t, res.ForceProposal)
}

func TestParse_NonObjectProposalEntriesSkipped(t *testing.T) {
	raw := "\n" + `{"schemaVersion":"1","proposals":["junk",{"templateId":"discount-campaign"},42]}`

	res := Parse(raw)

	require.Len(t, res.RawCandidates, 1)
	assert.Equal(t, "discount-campaign", res.RawCandidates[0]["templateId"])
}
