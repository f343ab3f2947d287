package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/graph"
	"github.com/myrjola/casegen/internal/models"
	"log/slog"
	"time"
)

// Simulator returns canned replies shaped like the real ones. The reply depends only on the phase in the
// context, so runs against it are reproducible.
type Simulator struct {
	// Delay is waited before every reply.
	Delay time.Duration
}

func NewSimulator() *Simulator {
	return &Simulator{}
}

const defaultSimulatedSuspects = 3

var roster = []models.SuspectOutline{
	{Name: "Avery Lindqvist", Role: "Chief Financial Officer", Archetype: "the perfectionist",
		Secret: "Hid a gambling debt from the board", Alibi: "Was at the quarterly close dinner",
		ConnectionToVictim: "Signed off every transfer"},
	{Name: "Jordan Okafor", Role: "Accounts Payable Clerk", Archetype: "the overlooked insider",
		Secret: "Runs a side business from the office", Alibi: "Claims to have left at five",
		ConnectionToVictim: "Processed the vendor invoices"},
	{Name: "Riley Santos", Role: "External Auditor", Archetype: "the outsider",
		Secret: "Was once fired for negligence", Alibi: "Reviewing another client that week",
		ConnectionToVictim: "Flagged the ledger last year"},
	{Name: "Morgan Keane", Role: "IT Administrator", Archetype: "the gatekeeper",
		Secret: "Shares admin passwords with friends", Alibi: "On call from home",
		ConnectionToVictim: "Manages access to the finance system"},
	{Name: "Sasha Petrov", Role: "Procurement Lead", Archetype: "the charmer",
		Secret: "Accepted gifts from a vendor", Alibi: "At a supplier meeting",
		ConnectionToVictim: "Chose the shell vendor"},
	{Name: "Kai Nakamura", Role: "Intern", Archetype: "the eager newcomer",
		Secret: "Forged a reference letter", Alibi: "Studying in the break room",
		ConnectionToVictim: "Scanned the paper receipts"},
	{Name: "Elena Duarte", Role: "Office Manager", Archetype: "the confidante",
		Secret: "Reads everyone's mail", Alibi: "Organising the holiday party",
		ConnectionToVictim: "Keeps the spare keys"},
	{Name: "Theo Brandt", Role: "Sales Director", Archetype: "the showman",
		Secret: "Inflated his expense reports", Alibi: "Travelling to a client",
		ConnectionToVictim: "Demanded the budget increase"},
}

// Generate returns the canned reply for the phase stored in ctx.
func (s *Simulator) Generate(ctx context.Context, _ Request) (string, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", errors.Wrap(ctx.Err(), "wait for simulated reply")
		}
	}
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "simulated generation")
	}

	phase := PhaseFrom(ctx)
	total := phase.Total
	if total <= 0 {
		total = defaultSimulatedSuspects
	}
	total = min(total, len(roster))

	var payload any
	switch phase.Name {
	case PhaseMeta:
		payload = simulatedMeta(total)
	case PhaseSuspect:
		payload = simulatedSuspect(phase.Index)
	case PhaseClimax:
		payload = simulatedClimax(total)
	case PhaseFreeform, PhaseStructured:
		g := simulatedGraph(total)
		out := map[string]any{"nodes": g.Nodes, "edges": g.Edges}
		if phase.Name == PhaseStructured {
			out["suspects"] = roster[:total]
		}
		payload = out
	default:
		return "", errors.New("no simulated reply for phase", slog.String("phase", phase.Name))
	}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal simulated reply")
	}
	return fmt.Sprintf("Here is the requested content.\n```json\n%s\n```\n", b), nil
}

func simulatedMeta(total int) models.CaseMeta {
	return models.CaseMeta{
		CaseTitle:       "The Vanishing Ledger",
		CaseDescription: "Two million disappeared from the accounts of a regional bank during the quarterly close.",
		PlotSummary: "A trusted employee routed payments to a shell vendor and erased the approvals. " +
			"Invoices, access logs and a deleted email thread reveal who had both the access and the motive.",
		MastermindIndex: total / 2,
		SuspectOutlines: append([]models.SuspectOutline(nil), roster[:total]...),
	}
}

func simulatedSuspect(index int) models.SuspectDetail {
	name := roster[index%len(roster)].Name
	return models.SuspectDetail{
		InterrogationScript: fmt.Sprintf("Detective: Where were you on the night of the close, %s?", name),
		CluesToNext:         "The access log mentions another login from the finance floor.",
		Evidence: []models.EvidenceDocument{
			{
				Label:       fmt.Sprintf("Invoice approved by %s", name),
				Description: "A vendor invoice for consulting services that were never delivered.",
				Questions: []models.Question{{
					Text:              "Which vendor received the payment?",
					CorrectAnswer:     "Northwind Advisory",
					Distractors:       []string{"Northgate Advisory", "Northwind Analytics", "Westwind Advisory"},
					Hints:             []string{"Look at the letterhead."},
					LearningObjective: "Verify vendors before approving payments",
				}},
			},
			{
				Label:       "Access log excerpt",
				Description: "Logins to the payment system between 22:00 and 23:00.",
				Questions: []models.Question{{
					Text:              "At what time was the approval recorded?",
					CorrectAnswer:     "22:41",
					Distractors:       []string{"22:14", "21:41", "23:41"},
					Hints:             []string{"Match the session id with the approval."},
					LearningObjective: "Correlate audit logs with transactions",
				}},
			},
			{
				Label:       "Deleted email",
				Description: "A recovered email asking to split a payment below the approval limit.",
				Questions: []models.Question{{
					Text:              "What was the approval limit?",
					CorrectAnswer:     "10,000",
					Distractors:       []string{"1,000", "100,000", "12,000"},
					LearningObjective: "Recognise structuring to avoid controls",
				}},
			},
		},
	}
}

func simulatedClimax(total int) models.Climax {
	culprit := roster[(total/2)%len(roster)].Name
	return models.Climax{
		Confrontation: fmt.Sprintf("Faced with the invoices and the access log, %s goes quiet.", culprit),
		Unraveling: fmt.Sprintf("%s approved fake invoices from a shell vendor, split payments below the limit "+
			"and deleted the email thread that would have exposed the scheme.", culprit),
	}
}

func simulatedGraph(total int) models.Graph {
	meta := simulatedMeta(total)
	suspects := make([]models.SuspectRecord, total)
	for i := range total {
		suspects[i] = models.SuspectRecord{SuspectOutline: meta.SuspectOutlines[i], SuspectDetail: simulatedSuspect(i)}
	}
	return graph.Assemble(meta, suspects, simulatedClimax(total))
}
