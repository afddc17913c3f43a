package turn

import "github.com/policyforge/advisor/pkg/envelope"

// Assistant messages used when the model made a promise it could not keep or
// failed to produce a parseable envelope.
const (
	msgBrokenPromise = "I drafted policy changes, but none of them passed validation. The issues are listed below; tell me how you'd like to adjust and I'll try again."
	msgParseFallback = "I couldn't produce a structured proposal this time. Could you rephrase or add a bit more detail?"
)

// Build maps a parsed envelope plus candidate-pipeline output into one of the
// three turn states. It is a pure function; later stages enrich the result.
func Build(parsed envelope.ParseResult, proposals []Proposal, invalid []InvalidCandidate) *Turn {
	t := &Turn{
		AssistantMessage: parsed.AssistantMessage,
		Proposals:        []Proposal{},
		ValidationIssues: invalid,
		Protocol: Protocol{
			Name:          envelope.ProtocolName,
			Version:       envelope.ProtocolVersion,
			SourceFormat:  parsed.SourceFormat,
			SchemaVersion: parsed.SchemaVersion,
			ParseError:    parsed.ParseError,
		},
	}

	switch {
	case parsed.ParseError:
		// Terminal: no candidates were attempted.
		t.Status = StatusChatReply
		if t.AssistantMessage == "" {
			t.AssistantMessage = msgParseFallback
		}

	case len(proposals) > 0:
		t.Status = StatusProposalReady
		t.Proposals = proposals
		first := proposals[0]
		t.Proposal = &first

	case parsed.ForceProposal && len(invalid) > 0:
		// The model promised proposals but every candidate failed
		// validation. Keep the ready state so the critic loop gets a
		// chance to repair it.
		t.Status = StatusProposalReady
		t.AssistantMessage = msgBrokenPromise

	default:
		t.Status = StatusChatReply
	}

	return t
}
