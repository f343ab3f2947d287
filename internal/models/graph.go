package models

import "strings"

// NodeType is the tag of a narrative node. The playback engine knows exactly these types.
type NodeType string

const (
	NodeStory         NodeType = "story"
	NodeSuspect       NodeType = "suspect"
	NodeEvidence      NodeType = "evidence"
	NodeLogic         NodeType = "logic"
	NodeTerminal      NodeType = "terminal"
	NodeInterrogation NodeType = "interrogation"
	NodeMessage       NodeType = "message"
	NodeAction        NodeType = "action"
	NodeIdentify      NodeType = "identify"
	NodeQuestion      NodeType = "question"
	NodeEmail         NodeType = "email"
	NodeDecryption    NodeType = "decryption"
	NodeKeypad        NodeType = "keypad"
	NodeThreeD        NodeType = "threed"
)

// NodeTypes lists every known node type in a stable order.
var NodeTypes = []NodeType{
	NodeStory, NodeSuspect, NodeEvidence, NodeLogic, NodeTerminal, NodeInterrogation, NodeMessage,
	NodeAction, NodeIdentify, NodeQuestion, NodeEmail, NodeDecryption, NodeKeypad, NodeThreeD,
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Logic node branches are selected with these handles.
const (
	HandleTrue  = "true"
	HandleFalse = "false"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NarrativeNode is one step of the playable graph. Data depends on Type.
type NarrativeNode struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"type"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
}

// ActionIDs returns the ids of the entries in the node's "actions" data list.
//
// The second return value is false when the node has no actions list.
func (n NarrativeNode) ActionIDs() ([]string, bool) {
	raw, ok := n.Data["actions"]
	if !ok {
		return nil, false
	}
	var ids []string
	switch actions := raw.(type) {
	case []any:
		for _, a := range actions {
			if m, isMap := a.(map[string]any); isMap {
				if id, isString := m["id"].(string); isString {
					ids = append(ids, id)
				}
			}
		}
	case []map[string]any:
		for _, m := range actions {
			if id, isString := m["id"].(string); isString {
				ids = append(ids, id)
			}
		}
	default:
		return nil, false
	}
	return ids, true
}

// NarrativeEdge connects two nodes. SourceHandle selects the branch of a multi-exit source node.
type NarrativeEdge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Graph is the playable result of a generation run.
type Graph struct {
	Nodes []NarrativeNode `json:"nodes"`
	Edges []NarrativeEdge `json:"edges"`
}

// NodesOfType returns the nodes with the given type in graph order.
func (g Graph) NodesOfType(t NodeType) []NarrativeNode {
	var out []NarrativeNode
	for _, n := range g.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
