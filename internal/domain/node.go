package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// NodeTypeAgent is the node type carrying an embedded agent configuration.
const NodeTypeAgent = "agent"

// WorkflowNode is the canonical form of a workflow node. Editors emit nodes
// either with their fields at the top level or nested under "data"; both are
// folded into this struct by NormalizeNode, top-level values winning.
type WorkflowNode struct {
	ID   string
	Type string
	Name string
	// Label is read from "data" only.
	Label       string
	Description string
	WorkflowID  string
	Tags        []string
	AgentConfig json.RawMessage
}

// IsAgent reports whether the node is an agent node with a configuration.
func (n WorkflowNode) IsAgent() bool {
	return n.Type == NodeTypeAgent && len(n.AgentConfig) > 0
}

// RawNodes is a node list kept as raw JSON until normalized. A "nodes" value
// that is not an array decodes to an empty list instead of failing.
type RawNodes []json.RawMessage

// UnmarshalJSON implements json.Unmarshaler.
func (r *RawNodes) UnmarshalJSON(b []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		*r = nil
		return nil
	}
	*r = items
	return nil
}

// Normalize converts every raw node to its canonical form.
func (r RawNodes) Normalize() []WorkflowNode {
	nodes := make([]WorkflowNode, 0, len(r))
	for _, raw := range r {
		nodes = append(nodes, NormalizeNode(raw))
	}
	return nodes
}

// NormalizeNode maps a raw node of either shape into a WorkflowNode.
// Malformed input yields a zero node.
func NormalizeNode(raw json.RawMessage) WorkflowNode {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return WorkflowNode{}
	}
	var nested map[string]json.RawMessage
	if data, ok := top["data"]; ok {
		_ = json.Unmarshal(data, &nested) // non-object data is ignored
	}

	pick := func(key string) json.RawMessage {
		if v := top[key]; truthyJSON(v) {
			return v
		}
		if v := nested[key]; truthyJSON(v) {
			return v
		}
		return nil
	}

	node := WorkflowNode{
		ID:          jsonText(pick("id")),
		Type:        jsonText(pick("type")),
		Name:        jsonText(pick("name")),
		Label:       nestedText(nested, "label"),
		Description: jsonText(pick("description")),
		WorkflowID:  jsonText(pick("workflow_id")),
		Tags:        jsonStrings(pick("tags")),
	}
	if cfg := pick("agent_config"); cfg != nil {
		node.AgentConfig = append(json.RawMessage(nil), cfg...)
	}
	return node
}

func nestedText(nested map[string]json.RawMessage, key string) string {
	if v := nested[key]; truthyJSON(v) {
		return jsonText(v)
	}
	return ""
}

// truthyJSON reports whether a raw JSON value is present and not one of
// null, false, 0 or "".
func truthyJSON(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return false
	}
	switch string(v) {
	case "null", "false", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(string(v), 64); err == nil {
		return f != 0
	}
	return true
}

// jsonText renders scalar JSON as text: strings unquoted, numbers and
// booleans verbatim. Objects and arrays render empty.
func jsonText(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

func jsonStrings(v json.RawMessage) []string {
	if len(v) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := jsonText(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
