package models

// SuspectOutline is the short description of a suspect produced by the planning phase.
type SuspectOutline struct {
	Name               string `json:"name"`
	Role               string `json:"role"`
	Archetype          string `json:"archetype"`
	Secret             string `json:"secret"`
	Alibi              string `json:"alibi"`
	ConnectionToVictim string `json:"connectionToVictim"`
}

// CaseMeta is the plan of a multi-phase case. MastermindIndex points into SuspectOutlines.
type CaseMeta struct {
	CaseTitle       string           `json:"caseTitle"`
	CaseDescription string           `json:"caseDescription"`
	PlotSummary     string           `json:"plotSummary"`
	MastermindIndex int              `json:"mastermindIndex"`
	SuspectOutlines []SuspectOutline `json:"suspectOutlines"`
}

// Mastermind returns the outline of the culprit.
func (m CaseMeta) Mastermind() SuspectOutline {
	if m.MastermindIndex < 0 || m.MastermindIndex >= len(m.SuspectOutlines) {
		return SuspectOutline{}
	}
	return m.SuspectOutlines[m.MastermindIndex]
}

// Question is a multiple choice question attached to an evidence document.
type Question struct {
	Text              string   `json:"text"`
	CorrectAnswer     string   `json:"correctAnswer"`
	Distractors       []string `json:"distractors"`
	Hints             []string `json:"hints"`
	LearningObjective string   `json:"learningObjective"`
}

// EvidenceDocument is a piece of evidence the player examines.
type EvidenceDocument struct {
	Label       string     `json:"label"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// SuspectDetail is the output of one suspect phase.
type SuspectDetail struct {
	Evidence            []EvidenceDocument `json:"evidence"`
	InterrogationScript string             `json:"interrogationScript"`
	CluesToNext         string             `json:"cluesToNext"`
}

// SuspectRecord merges a suspect outline with its detail phase output.
type SuspectRecord struct {
	SuspectOutline
	SuspectDetail
}

// Climax is the output of the final multi-phase call.
type Climax struct {
	Confrontation string `json:"confrontation"`
	Unraveling    string `json:"unraveling"`
}

// TargetEvidencePerSuspect is the soft cardinality asked from the generator.
const TargetEvidencePerSuspect = 3

// DistractorsPerQuestion is the number of wrong answers asked from the generator.
const DistractorsPerQuestion = 3

// NormalizeDistractors drops empty distractors, duplicates and copies of the correct answer,
// keeping the original order.
func (q Question) NormalizeDistractors() Question {
	seen := map[string]bool{normalizeAnswer(q.CorrectAnswer): true}
	out := make([]string, 0, len(q.Distractors))
	for _, d := range q.Distractors {
		key := normalizeAnswer(d)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	q.Distractors = out
	return q
}
