// Package models: flow graph definition types.
//
// A FlowDefinition is the operator-authored conversation graph: a set of
// identified nodes plus a starting node pointer. It is replaced wholesale on
// every save; there is no partial node diffing.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// NodeType tags the node union.
type NodeType string

const (
	// NodeStart is the graph entry node.
	NodeStart NodeType = "start"
	// NodeAction sends text, buttons and assets.
	NodeAction NodeType = "action"
	// NodeTrigger tests free text against patterns and redirects.
	NodeTrigger NodeType = "trigger"
	// NodeAdvisor hands the conversation to a human operator.
	NodeAdvisor NodeType = "advisor"
)

// TriggerType selects the matching strategy of a trigger node.
type TriggerType string

const (
	// TriggerKeywords matches comma-separated substrings.
	TriggerKeywords TriggerType = "keywords"
	// TriggerDeeplink matches newline-separated exact phrases.
	TriggerDeeplink TriggerType = "deeplink"
	// TriggerAI matches via local similarity heuristics or AI classification.
	TriggerAI TriggerType = "ai"
)

var (
	ErrFlowNotObject = errors.New("flow definition is not a JSON object")
)

// Button is one reply button on an action node. Next references a node id;
// ID carries a raw payload for legacy buttons.
type Button struct {
	Title string `json:"title"`
	Next  string `json:"next,omitempty"`
	ID    string `json:"id,omitempty"`
}

// Payload returns the wire payload this button produces when pressed, or ""
// when the button has no target at all.
func (b Button) Payload() string {
	if b.Next != "" {
		return "FLOW:" + b.Next
	}
	return b.ID
}

// Asset media types.
const (
	AssetImage    = "image"
	AssetDocument = "document"
)

// Asset is an image or document dispatched before a node's text.
type Asset struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// Link is one optional social/contact link on an advisor node.
type Link struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// Node is one step of the flow graph, tagged by Type.
type Node struct {
	Type        NodeType        `json:"type"`
	Text        string          `json:"text,omitempty"`
	Next        string          `json:"next,omitempty"`
	Keywords    string          `json:"keywords,omitempty"`
	Exact       string          `json:"exact,omitempty"`
	TriggerType TriggerType     `json:"trigger_type,omitempty"`
	Patterns    string          `json:"patterns,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Buttons     []Button        `json:"buttons,omitempty"`
	Assets      []Asset         `json:"assets,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	Links       map[string]Link `json:"links,omitempty"`
	TimeoutMin  int             `json:"timeout_min,omitempty"`
}

// EffectiveType normalizes the tag: untyped nodes behave as actions.
func (n Node) EffectiveType() NodeType {
	t := NodeType(strings.ToLower(string(n.Type)))
	if t == "" {
		return NodeAction
	}
	return t
}

// IsEnabled reports whether the node participates in matching. Nodes without
// an explicit enabled field are enabled.
func (n Node) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// EffectiveTriggerType defaults untyped triggers to keyword matching.
func (n Node) EffectiveTriggerType() TriggerType {
	t := TriggerType(strings.ToLower(string(n.TriggerType)))
	if t == "" {
		return TriggerKeywords
	}
	return t
}

// FlowDefinition is the immutable per-bot conversation graph.
type FlowDefinition struct {
	Enabled   bool            `json:"enabled"`
	StartNode string          `json:"start_node,omitempty"`
	Nodes     map[string]Node `json:"nodes"`
	// Order preserves the builder's declaration order of node ids. Entries
	// naming unknown nodes are skipped; nodes missing from Order are appended
	// in lexical order so matching stays deterministic either way.
	Order    []string  `json:"order,omitempty"`
	AIConfig *AIConfig `json:"ai_config,omitempty"`
}

// EmptyFlowDefinition is the definition used when a bot has no stored flow.
func EmptyFlowDefinition() *FlowDefinition {
	return &FlowDefinition{Enabled: false, Nodes: map[string]Node{}}
}

// ParseFlowDefinition decodes a stored definition document. Missing fields
// default so the result is always usable: nil nodes become an empty map and
// an absent enabled key means enabled.
func ParseFlowDefinition(raw json.RawMessage) (*FlowDefinition, error) {
	if len(raw) == 0 {
		return EmptyFlowDefinition(), nil
	}
	// Distinguish "enabled omitted" (default true) from explicit false.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFlowNotObject, err)
	}
	def := FlowDefinition{Enabled: true}
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("failed to decode flow definition: %w", err)
	}
	if _, ok := probe["enabled"]; !ok {
		def.Enabled = true
	}
	if def.Nodes == nil {
		def.Nodes = map[string]Node{}
	}
	return &def, nil
}

// Lookup resolves a node id. Dangling references are treated as absent.
func (d *FlowDefinition) Lookup(nodeID string) (Node, bool) {
	if d == nil || nodeID == "" {
		return Node{}, false
	}
	n, ok := d.Nodes[nodeID]
	return n, ok
}

// OrderedNodeIDs returns all node ids in declaration order. Ids listed in
// Order come first (unknown ids dropped); the remainder follows sorted, so
// repeated evaluation over the same definition is always deterministic.
func (d *FlowDefinition) OrderedNodeIDs() []string {
	seen := make(map[string]bool, len(d.Nodes))
	ids := make([]string, 0, len(d.Nodes))
	for _, id := range d.Order {
		if _, ok := d.Nodes[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	rest := make([]string, 0, len(d.Nodes))
	for id := range d.Nodes {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// DanglingReferences lists every next/button reference that does not resolve
// to an existing node. The executor treats these as absent; the save endpoint
// reports them so operators can fix the graph.
func (d *FlowDefinition) DanglingReferences() []string {
	var out []string
	for _, id := range d.OrderedNodeIDs() {
		n := d.Nodes[id]
		if n.Next != "" {
			if _, ok := d.Nodes[n.Next]; !ok {
				out = append(out, fmt.Sprintf("%s.next -> %s", id, n.Next))
			}
		}
		for i, b := range n.Buttons {
			if b.Next == "" {
				continue
			}
			if _, ok := d.Nodes[b.Next]; !ok {
				out = append(out, fmt.Sprintf("%s.buttons[%d].next -> %s", id, i, b.Next))
			}
		}
	}
	if d.StartNode != "" {
		if _, ok := d.Nodes[d.StartNode]; !ok {
			out = append(out, fmt.Sprintf("start_node -> %s", d.StartNode))
		}
	}
	return out
}
