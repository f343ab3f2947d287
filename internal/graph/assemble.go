// Package graph lays out multi-phase case files as a playable node graph and checks the structural invariants
// that the playback engine relies on.
package graph

import (
	"fmt"
	"github.com/myrjola/casegen/internal/models"
	"strings"
	"unicode/utf8"
)

// Layout of the assembled graph. Suspects form a row and their evidence hangs below them with questions to the
// right of each evidence document.
const (
	SuspectSpacingX  = 360.0
	SuspectRowY      = 240.0
	EvidenceSpacingY = 200.0
	QuestionOffsetX  = 300.0
	QuestionSpacingY = 120.0
)

// PlotExcerptRunes bounds the plot summary shown on the start node.
const PlotExcerptRunes = 280

// Ids of the fixed nodes.
const (
	StartID    = "start"
	IdentifyID = "identify"
	EpilogueID = "epilogue"
)

func SuspectID(i int) string {
	return fmt.Sprintf("suspect-%d", i)
}

func EvidenceID(i, j int) string {
	return fmt.Sprintf("evidence-%d-%d", i, j)
}

func QuestionID(i, j, k int) string {
	return fmt.Sprintf("question-%d-%d-%d", i, j, k)
}

func EdgeID(source, target string) string {
	return fmt.Sprintf("e:%s->%s", source, target)
}

// Assemble lays out the case plan, the detailed suspects in outline order and the climax.
//
// Iteration follows the slices as given, so equal inputs always produce equal graphs.
func Assemble(meta models.CaseMeta, suspects []models.SuspectRecord, climax models.Climax) models.Graph {
	var b builder

	b.node(StartID, models.NodeStory, 0, 0, map[string]any{
		"title":       meta.CaseTitle,
		"description": meta.CaseDescription,
		"text":        Excerpt(meta.PlotSummary, PlotExcerptRunes),
	})

	previous := StartID
	names := make([]string, 0, len(suspects))
	for i, s := range suspects {
		x := float64(i) * SuspectSpacingX
		id := SuspectID(i)
		names = append(names, s.Name)
		b.node(id, models.NodeSuspect, x, SuspectRowY, map[string]any{
			"index":               i,
			"name":                s.Name,
			"role":                s.Role,
			"archetype":           s.Archetype,
			"alibi":               s.Alibi,
			"connectionToVictim":  s.ConnectionToVictim,
			"interrogationScript": s.InterrogationScript,
			"cluesToNext":         s.CluesToNext,
		})
		b.edge(previous, id)
		previous = id

		y := SuspectRowY + EvidenceSpacingY
		for j, e := range s.Evidence {
			evidenceID := EvidenceID(i, j)
			b.node(evidenceID, models.NodeEvidence, x, y, map[string]any{
				"suspectIndex": i,
				"label":        e.Label,
				"description":  e.Description,
			})
			b.edge(id, evidenceID)

			for k, q := range e.Questions {
				questionID := QuestionID(i, j, k)
				b.node(questionID, models.NodeQuestion, x+QuestionOffsetX, y+float64(k)*QuestionSpacingY,
					map[string]any{
						"text":              q.Text,
						"correctAnswer":     q.CorrectAnswer,
						"distractors":       append([]string{}, q.Distractors...),
						"hints":             append([]string{}, q.Hints...),
						"learningObjective": q.LearningObjective,
					})
				b.edge(evidenceID, questionID)
			}
			y += max(EvidenceSpacingY, float64(len(e.Questions))*QuestionSpacingY)
		}
	}

	end := float64(len(suspects)) * SuspectSpacingX
	b.node(IdentifyID, models.NodeIdentify, end, SuspectRowY, map[string]any{
		"mastermindIndex": meta.MastermindIndex,
		"suspects":        names,
	})
	b.edge(previous, IdentifyID)

	b.node(EpilogueID, models.NodeStory, end+SuspectSpacingX, SuspectRowY, map[string]any{
		"title":         "Unraveling",
		"confrontation": climax.Confrontation,
		"text":          climax.Unraveling,
	})
	b.edge(IdentifyID, EpilogueID)

	return b.graph
}

// Excerpt shortens s to at most n runes, ending in an ellipsis when it was cut.
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

type builder struct {
	graph models.Graph
}

func (b *builder) node(id string, t models.NodeType, x, y float64, data map[string]any) {
	b.graph.Nodes = append(b.graph.Nodes, models.NarrativeNode{
		ID:       id,
		Type:     t,
		Position: models.Position{X: x, Y: y},
		Data:     data,
	})
}

func (b *builder) edge(source, target string) {
	b.graph.Edges = append(b.graph.Edges, models.NarrativeEdge{
		ID:     EdgeID(source, target),
		Source: source,
		Target: target,
	})
}
