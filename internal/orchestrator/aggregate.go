package orchestrator

import (
	"fmt"

	"github.com/clearlane/claimflow/pkg/models"
)

// ReasonAllApproved is the final reason when no agent raised an issue.
const ReasonAllApproved = "all_agents_approved"

// agentFailedReason is the synthesized reason slug for a failed agent.
func agentFailedReason(agent string) string {
	return "agent_failed:" + agent
}

// Aggregate turns the ordered outcome set into one final decision. It is
// pure and deterministic: the same outcome list always yields the same
// decision, regardless of which agent happened to finish first.
//
// An AgentFailure counts as an ESCALATE verdict with reason
// agent_failed:<name> — failures surface, they are never dropped. The
// priority rule scans in configuration order and the first match wins:
// any REJECTED, else any ESCALATE, else any PARTIAL, else APPROVED.
func Aggregate(outcomes []models.AgentOutcome) models.FinalDecision {
	type entry struct {
		agent       string
		status      models.Status
		reason      string
		explanation string
	}

	entries := make([]entry, 0, len(outcomes))
	var contributing []string
	for _, o := range outcomes {
		var e entry
		switch {
		case o.Failure != nil:
			e = entry{
				agent:       o.Agent,
				status:      models.StatusEscalate,
				reason:      agentFailedReason(o.Agent),
				explanation: fmt.Sprintf("Agent %s failed (%s): %s", o.Agent, o.Failure.ErrorKind, o.Failure.LastError),
			}
		case o.Verdict != nil:
			e = entry{agent: o.Agent, status: o.Verdict.Status, reason: o.Verdict.Reason, explanation: o.Verdict.Explanation}
		default:
			// A missing side means a barrier bug upstream; treat it like
			// a failure so it cannot pass as approval.
			e = entry{
				agent:       o.Agent,
				status:      models.StatusEscalate,
				reason:      agentFailedReason(o.Agent),
				explanation: fmt.Sprintf("Agent %s produced no outcome", o.Agent),
			}
		}
		entries = append(entries, e)
		if e.status != models.StatusApproved {
			contributing = append(contributing, e.reason)
		}
	}

	for _, status := range []models.Status{models.StatusRejected, models.StatusEscalate, models.StatusPartial} {
		for _, e := range entries {
			if e.status != status {
				continue
			}
			return models.FinalDecision{
				Status:           status,
				Reason:           e.reason,
				Explanation:      decisionExplanation(status, e.agent, e.explanation),
				DeterminingAgent: e.agent,
				Contributing:     contributing,
			}
		}
	}

	return models.FinalDecision{
		Status:      models.StatusApproved,
		Reason:      ReasonAllApproved,
		Explanation: "All agents approved the claim",
	}
}

func decisionExplanation(status models.Status, agent, explanation string) string {
	switch status {
	case models.StatusRejected:
		return fmt.Sprintf("Claim rejected by %s: %s", agent, explanation)
	case models.StatusEscalate:
		return fmt.Sprintf("Claim escalated by %s: %s", agent, explanation)
	case models.StatusPartial:
		return fmt.Sprintf("Partial approval due to %s: %s", agent, explanation)
	default:
		return explanation
	}
}
