package graph

import (
	"fmt"
	"github.com/myrjola/casegen/internal/models"
)

// Rule names reported in violations.
const (
	RuleDanglingEdge       = "dangling-edge"
	RuleDuplicateID        = "duplicate-id"
	RuleIdentifyCount      = "identify-count"
	RuleIdentifyReachable  = "identify-reachable"
	RuleLogicHandle        = "logic-handle"
	RuleActionHandle       = "action-handle"
	RuleSequentialUnlock   = "sequential-unlock"
	RuleMissingStartNode   = "missing-start"
	RuleSuspectUnreachable = "suspect-reachable"
	RuleUnknownType        = "unknown-type"
)

// Violation is one broken structural invariant.
type Violation struct {
	Rule    string `json:"rule"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s (%s): %s", v.Rule, v.Subject, v.Message)
}

type CheckOptions struct {
	// StartID names the start node. The first node is used when empty.
	StartID string
	// SequentialSuspects requires every suspect to be reachable only through the previous one, in node order.
	SequentialSuspects bool
}

// Check verifies the structural invariants of g and returns every violation found, in a stable order.
func Check(g models.Graph, opts CheckOptions) []Violation {
	var out []Violation
	report := func(rule, subject, format string, args ...any) {
		out = append(out, Violation{Rule: rule, Subject: subject, Message: fmt.Sprintf(format, args...)})
	}

	nodes := make(map[string]models.NarrativeNode, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := nodes[n.ID]; dup {
			report(RuleDuplicateID, n.ID, "node id is used more than once")
			continue
		}
		if !n.Type.Valid() {
			report(RuleUnknownType, n.ID, "node type %q is not known to the playback engine", n.Type)
		}
		nodes[n.ID] = n
	}

	adjacency := make(map[string][]string)
	for _, e := range g.Edges {
		_, sourceOK := nodes[e.Source]
		_, targetOK := nodes[e.Target]
		if !sourceOK {
			report(RuleDanglingEdge, e.ID, "source %q does not exist", e.Source)
		}
		if !targetOK {
			report(RuleDanglingEdge, e.ID, "target %q does not exist", e.Target)
		}
		if !sourceOK || !targetOK {
			continue
		}
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)

		source := nodes[e.Source]
		if source.Type == models.NodeLogic && e.SourceHandle != models.HandleTrue &&
			e.SourceHandle != models.HandleFalse {
			report(RuleLogicHandle, e.ID, "logic edge has handle %q", e.SourceHandle)
		}
		if actionIDs, ok := source.ActionIDs(); ok && !contains(actionIDs, e.SourceHandle) {
			report(RuleActionHandle, e.ID, "handle %q is not an action of %q", e.SourceHandle, e.Source)
		}
	}

	start := opts.StartID
	if start == "" && len(g.Nodes) > 0 {
		start = g.Nodes[0].ID
	}
	if _, ok := nodes[start]; !ok {
		report(RuleMissingStartNode, start, "start node does not exist")
		return out
	}

	identify := g.NodesOfType(models.NodeIdentify)
	if len(identify) != 1 {
		report(RuleIdentifyCount, string(models.NodeIdentify), "found %d identify nodes, want 1", len(identify))
	}
	reachable := reach(adjacency, start, "")
	for _, n := range identify {
		if !reachable[n.ID] {
			report(RuleIdentifyReachable, n.ID, "identify node is not reachable from %q", start)
		}
	}

	if opts.SequentialSuspects {
		suspects := g.NodesOfType(models.NodeSuspect)
		for k, s := range suspects {
			if !reachable[s.ID] {
				report(RuleSuspectUnreachable, s.ID, "suspect is not reachable from %q", start)
				continue
			}
			if k == 0 {
				continue
			}
			prev := suspects[k-1].ID
			if reach(adjacency, start, prev)[s.ID] {
				report(RuleSequentialUnlock, s.ID, "suspect is reachable without passing %q", prev)
			}
		}
	}
	return out
}

// reach returns the nodes reachable from start without entering blocked.
func reach(adjacency map[string][]string, start, blocked string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[id] {
			if next == blocked || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return seen
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
