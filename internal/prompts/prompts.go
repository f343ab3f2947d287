// Package prompts composes the instructions sent to the generation service for every mode and phase.
//
// Composition is pure: the same inputs always give byte-identical prompts.
package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/graph"
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/schema"
	"log/slog"
	"strings"
)

// Prompt is the system instruction and user message of one generation call.
type Prompt struct {
	System string
	User   string
}

const persona = "You are a writer of interactive detective cases used for workplace training. " +
	"You reply with a single JSON object and nothing else: no markdown, no commentary."

// For returns the single-shot prompt of mode.
func For(mode models.GenerationMode, cfg models.GenerationConfig) (Prompt, error) {
	switch mode {
	case models.ModeFreeform:
		return Freeform(cfg), nil
	case models.ModeStructured:
		return Structured(cfg), nil
	case models.ModeMultiPhase:
		return Prompt{}, errors.New("multi-phase mode is composed per phase", slog.String("mode", string(mode)))
	default:
		return Prompt{}, errors.New("unknown generation mode", slog.String("mode", string(mode)))
	}
}

// Freeform builds the prompt that turns a free-text story into a complete graph.
func Freeform(cfg models.GenerationConfig) Prompt {
	var sys bytes.Buffer
	writeSection(&sys, "ROLE", persona)
	writeSection(&sys, "OUTPUT", formatKeys(schema.Freeform))
	writeSection(&sys, "GRAPH FORMAT", graphFormat())
	writeSection(&sys, "RULES", formatList(graphRules()))

	var user bytes.Buffer
	writeSection(&user, "STORY", strings.TrimSpace(cfg.Story))
	writeSection(&user, "LEARNING OBJECTIVES", formatList(cfg.LearningObjectives))
	return Prompt{System: finish(&sys), User: finish(&user)}
}

// Structured builds the single-shot prompt from structured settings. The reply also lists the suspects.
func Structured(cfg models.GenerationConfig) Prompt {
	var sys bytes.Buffer
	writeSection(&sys, "ROLE", persona)
	writeSection(&sys, "OUTPUT", formatKeys(schema.Structured))
	writeSection(&sys, "GRAPH FORMAT", graphFormat())
	writeSection(&sys, "SUSPECTS FORMAT", "Each entry of \"suspects\" has the keys "+quoteAll(outlineKeys)+".")
	rules := append(graphRules(),
		fmt.Sprintf("Create exactly %d suspect nodes, one per entry of \"suspects\", in the same order.", cfg.SuspectCount),
		fmt.Sprintf("Give every suspect %d evidence nodes and every evidence node at least one question node.",
			models.TargetEvidencePerSuspect),
		"Exactly one suspect is the culprit. The \"identify\" node data has \"mastermindIndex\" pointing at it.",
	)
	writeSection(&sys, "RULES", formatList(rules))

	var user bytes.Buffer
	writeSection(&user, "CASE SETTINGS", caseSettings(cfg))
	writeSection(&user, "CAST", castDirectives(cfg))
	writeSection(&user, "LEARNING OBJECTIVES", formatList(cfg.LearningObjectives))
	return Prompt{System: finish(&sys), User: finish(&user)}
}

var outlineKeys = []string{"name", "role", "archetype", "secret", "alibi", "connectionToVictim"}

var evidenceKeys = []string{"label", "description", "questions"}

var questionKeys = []string{"text", "correctAnswer", "distractors", "hints", "learningObjective"}

// Meta plans a multi-phase case: title, plot and one outline per suspect.
func Meta(cfg models.GenerationConfig) Prompt {
	var sys bytes.Buffer
	writeSection(&sys, "ROLE", persona)
	writeSection(&sys, "TASK", "Plan the case. Later requests will detail each suspect and the finale.")
	writeSection(&sys, "OUTPUT", formatKeys(schema.Meta))
	writeSection(&sys, "SUSPECT OUTLINE FORMAT",
		"Each entry of \"suspectOutlines\" has the keys "+quoteAll(outlineKeys)+".")
	writeSection(&sys, "RULES", formatList([]string{
		fmt.Sprintf("\"suspectOutlines\" has exactly %d entries.", cfg.SuspectCount),
		fmt.Sprintf("\"mastermindIndex\" is an integer from 0 to %d naming the culprit in \"suspectOutlines\".",
			cfg.SuspectCount-1),
		"Every suspect has a plausible motive and a secret unrelated to the crime.",
		"\"plotSummary\" explains how the culprit committed the crime and how the evidence exposes them.",
	}))

	var user bytes.Buffer
	writeSection(&user, "CASE SETTINGS", caseSettings(cfg))
	writeSection(&user, "CAST", castDirectives(cfg))
	writeSection(&user, "LEARNING OBJECTIVES", formatList(cfg.LearningObjectives))
	return Prompt{System: finish(&sys), User: finish(&user)}
}

// Suspect details the suspect at index of a planned case.
func Suspect(cfg models.GenerationConfig, meta models.CaseMeta, index int) Prompt {
	var sys bytes.Buffer
	writeSection(&sys, "ROLE", persona)
	writeSection(&sys, "TASK", fmt.Sprintf("Write the evidence and interrogation of suspect %d of %d.",
		index+1, len(meta.SuspectOutlines)))
	writeSection(&sys, "OUTPUT", formatKeys(schema.Suspect)+"\n- \"cluesToNext\" (string, optional)")
	writeSection(&sys, "EVIDENCE FORMAT", "Each entry of \"evidence\" has the keys "+quoteAll(evidenceKeys)+
		".\nEach entry of \"questions\" has the keys "+quoteAll(questionKeys)+".")
	rules := []string{
		fmt.Sprintf("Write %d evidence documents.", models.TargetEvidencePerSuspect),
		fmt.Sprintf("Every question has exactly %d distractors that look like the correct answer "+
			"but differ from it and from each other.", models.DistractorsPerQuestion),
		"Evidence is self-contained: a player can answer its questions from the document alone.",
		"\"cluesToNext\" hints at the next suspect without naming the culprit.",
	}
	if index == meta.MastermindIndex {
		rules = append(rules, "This suspect is the culprit. Plant evidence that points at them subtly.")
	} else {
		rules = append(rules, "This suspect is innocent. Their evidence explains away the suspicion.")
	}
	writeSection(&sys, "RULES", formatList(rules))

	var user bytes.Buffer
	writeSection(&user, "CASE", caseSummary(meta))
	if index >= 0 && index < len(meta.SuspectOutlines) {
		writeSection(&user, "SUSPECT", formatJSON(meta.SuspectOutlines[index]))
	}
	if o, ok := cfg.Override(index); ok {
		writeSection(&user, "DEMOGRAPHICS", formatOverride(o))
	}
	writeSection(&user, "LEARNING OBJECTIVES", formatList(cfg.LearningObjectives))
	writeSection(&user, "DIFFICULTY", string(cfg.EffectiveDifficulty()))
	return Prompt{System: finish(&sys), User: finish(&user)}
}

// Climax writes the confrontation with the mastermind and the final unraveling.
func Climax(cfg models.GenerationConfig, meta models.CaseMeta, suspects []models.SuspectRecord) Prompt {
	var sys bytes.Buffer
	writeSection(&sys, "ROLE", persona)
	writeSection(&sys, "TASK", "Write the finale of the case after the player has accused a suspect.")
	writeSection(&sys, "OUTPUT", formatKeys(schema.Climax)+"\n- \"confrontation\" (string, optional)")
	writeSection(&sys, "RULES", formatList([]string{
		"\"confrontation\" is the scene in which the culprit is confronted with the evidence.",
		"\"unraveling\" explains the whole crime, referring to the evidence the player examined.",
	}))

	var user bytes.Buffer
	writeSection(&user, "CASE", caseSummary(meta))
	writeSection(&user, "MASTERMIND", formatJSON(meta.Mastermind()))
	labels := make([]string, 0, len(suspects))
	for _, s := range suspects {
		for _, e := range s.Evidence {
			labels = append(labels, fmt.Sprintf("%s: %s", s.Name, e.Label))
		}
	}
	writeSection(&user, "EVIDENCE", formatList(labels))
	writeSection(&user, "DIFFICULTY", string(cfg.EffectiveDifficulty()))
	return Prompt{System: finish(&sys), User: finish(&user)}
}

func graphFormat() string {
	types := make([]string, 0, len(models.NodeTypes))
	for _, t := range models.NodeTypes {
		types = append(types, string(t))
	}
	return strings.Join([]string{
		"\"nodes\" is a list of {\"id\", \"type\", \"position\": {\"x\", \"y\"}, \"data\"}.",
		"\"edges\" is a list of {\"id\", \"source\", \"target\", \"sourceHandle\"}.",
		"Node types: " + strings.Join(types, ", ") + ".",
	}, "\n")
}

func graphRules() []string {
	return []string{
		"The first node is a \"story\" node at position {\"x\": 0, \"y\": 0} and starts the case.",
		"Node ids are unique. Every edge source and target is the id of a node in \"nodes\".",
		"There is exactly one \"identify\" node and it is reachable from the first node.",
		fmt.Sprintf("Edges leaving a \"logic\" node have \"sourceHandle\" %q or %q.",
			models.HandleTrue, models.HandleFalse),
		"Edges leaving a node with an \"actions\" list have \"sourceHandle\" set to one of the action ids.",
		fmt.Sprintf("Place suspects %d apart horizontally at y = %d. Place evidence below its suspect, "+
			"%d apart, and questions %d to the right of their evidence.",
			int(graph.SuspectSpacingX), int(graph.SuspectRowY), int(graph.EvidenceSpacingY), int(graph.QuestionOffsetX)),
		fmt.Sprintf("Every question has exactly %d distractors.", models.DistractorsPerQuestion),
	}
}

func caseSettings(cfg models.GenerationConfig) string {
	lines := []string{
		"Industry: " + cfg.Industry,
		"Topic: " + cfg.Topic,
		"Difficulty: " + string(cfg.EffectiveDifficulty()),
		fmt.Sprintf("Suspects: %d", cfg.SuspectCount),
	}
	if cfg.Location != "" {
		lines = append(lines, "Location: "+cfg.Location)
	}
	if cfg.Date != "" {
		lines = append(lines, "Date: "+cfg.Date)
	}
	return strings.Join(lines, "\n")
}

func castDirectives(cfg models.GenerationConfig) string {
	var lines []string
	if cfg.Diversity.GenderBalance {
		lines = append(lines, "Balance the genders of the suspects.")
	}
	if cfg.Diversity.EthnicDiversity {
		lines = append(lines, "Give the suspects diverse ethnic backgrounds.")
	}
	if cfg.Diversity.AgeRange {
		lines = append(lines, "Spread the suspects over a wide age range.")
	}
	for _, o := range cfg.Overrides {
		lines = append(lines, fmt.Sprintf("Suspect %d: %s", o.Index+1, formatOverride(o)))
	}
	return formatList(lines)
}

func formatOverride(o models.SuspectOverride) string {
	var parts []string
	if o.Gender != "" {
		parts = append(parts, "gender "+o.Gender)
	}
	if o.Ethnicity != "" {
		parts = append(parts, "ethnicity "+o.Ethnicity)
	}
	if o.AgeRange != "" {
		parts = append(parts, "age "+o.AgeRange)
	}
	return strings.Join(parts, ", ")
}

func caseSummary(meta models.CaseMeta) string {
	names := make([]string, 0, len(meta.SuspectOutlines))
	for _, o := range meta.SuspectOutlines {
		names = append(names, o.Name)
	}
	return strings.Join([]string{
		"Title: " + meta.CaseTitle,
		"Description: " + meta.CaseDescription,
		"Plot: " + meta.PlotSummary,
		"Suspects: " + strings.Join(names, ", "),
	}, "\n")
}

func formatKeys(s schema.Schema) string {
	var buf strings.Builder
	buf.WriteString("A JSON object with these top-level keys:\n")
	for _, key := range s.Keys() {
		note := "required"
		for _, k := range s.NonEmpty {
			if k == key {
				note = "required, non-empty list"
			}
		}
		fmt.Fprintf(&buf, "- %q (%s)\n", key, note)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func quoteAll(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	return strings.Join(quoted, ", ")
}

func formatList(items []string) string {
	var buf strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&buf, "- %s\n", item)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[")
	buf.WriteString(title)
	buf.WriteString("]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}

func finish(buf *bytes.Buffer) string {
	return strings.TrimSpace(buf.String()) + "\n"
}
