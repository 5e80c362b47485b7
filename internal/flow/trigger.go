package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/optichat/optichat/internal/models"
)

// AI trigger heuristic thresholds.
const (
	// aiSimilarityThreshold is the minimum Ratio between the input and a
	// sample line for a local AI-trigger hit.
	aiSimilarityThreshold = 0.72
	// aiSharedTokenCount and aiSharedTokenMinLen are the fallback heuristic:
	// at least this many shared tokens of at least this length.
	aiSharedTokenCount  = 2
	aiSharedTokenMinLen = 3
)

// triggerTarget resolves where a matched trigger node sends the user: its
// next pointer when set, otherwise the trigger node itself.
func triggerTarget(id string, n models.Node) string {
	if n.Next != "" {
		return n.Next
	}
	return id
}

// splitPatterns splits a pattern blob on the given separator, trimming and
// lowercasing each entry and dropping blanks.
func splitPatterns(patterns, sep string) []string {
	var out []string
	for _, p := range strings.Split(patterns, sep) {
		p = Normalize(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MatchTriggers runs the exhaustive first pass over every enabled trigger
// node in declaration order: keyword substrings and deeplink exact phrases.
// AI-typed triggers are skipped here. Returns the target node id or "".
func MatchTriggers(def *models.FlowDefinition, input string) string {
	text := Normalize(input)
	if text == "" {
		return ""
	}
	for _, id := range def.OrderedNodeIDs() {
		n := def.Nodes[id]
		if n.EffectiveType() != models.NodeTrigger || !n.IsEnabled() {
			continue
		}
		patterns := strings.TrimSpace(n.Patterns)
		if patterns == "" {
			continue
		}
		switch n.EffectiveTriggerType() {
		case models.TriggerKeywords:
			for _, kw := range splitPatterns(patterns, ",") {
				if strings.Contains(text, kw) {
					return triggerTarget(id, n)
				}
			}
		case models.TriggerDeeplink:
			for _, line := range splitPatterns(patterns, "\n") {
				if text == line {
					return triggerTarget(id, n)
				}
			}
		}
	}
	return ""
}

// MatchAITriggers runs the local two-tier heuristic over ai-typed triggers:
// a per-line similarity ratio, or enough shared meaningful tokens with a
// sample line. First hit in declaration order wins.
func MatchAITriggers(def *models.FlowDefinition, input string) string {
	text := Normalize(input)
	if text == "" {
		return ""
	}
	inTokens := Tokens(input)
	for _, id := range def.OrderedNodeIDs() {
		n := def.Nodes[id]
		if n.EffectiveType() != models.NodeTrigger || !n.IsEnabled() {
			continue
		}
		if n.EffectiveTriggerType() != models.TriggerAI {
			continue
		}
		for _, line := range splitPatterns(n.Patterns, "\n") {
			if Ratio(text, line) >= aiSimilarityThreshold {
				return triggerTarget(id, n)
			}
			if sharedTokens(inTokens, Tokens(line), aiSharedTokenMinLen) >= aiSharedTokenCount {
				return triggerTarget(id, n)
			}
		}
	}
	return ""
}

// ClassifyTrigger asks the AI gateway to pick one candidate ai-trigger by id,
// listing each candidate's example patterns. Used only when the local
// heuristics found nothing. Returns the target node id or "".
func ClassifyTrigger(ctx context.Context, ai Classifier, def *models.FlowDefinition, input string) string {
	type candidate struct {
		id   string
		node models.Node
	}
	var cands []candidate
	var ids []string
	var sb strings.Builder
	for _, id := range def.OrderedNodeIDs() {
		n := def.Nodes[id]
		if n.EffectiveType() != models.NodeTrigger || !n.IsEnabled() {
			continue
		}
		if n.EffectiveTriggerType() != models.TriggerAI || strings.TrimSpace(n.Patterns) == "" {
			continue
		}
		cands = append(cands, candidate{id: id, node: n})
		ids = append(ids, id)
		fmt.Fprintf(&sb, "- %s: %s\n", id, strings.ReplaceAll(strings.TrimSpace(n.Patterns), "\n", "; "))
	}
	if len(cands) == 0 || ai == nil {
		return ""
	}
	model := ""
	if def.AIConfig != nil {
		model = def.AIConfig.Model
	}
	instructions := "Eres un clasificador. Dado el mensaje de un cliente, responde únicamente con el id de la categoría que mejor corresponda, o 'ninguna' si ninguna aplica.\nCategorías y ejemplos:\n" + sb.String()
	picked := ai.Classify(ctx, model, instructions, input, append(ids, "ninguna"))
	if picked == "" || picked == "ninguna" {
		return ""
	}
	for _, c := range cands {
		if c.id == picked {
			return triggerTarget(c.id, c.node)
		}
	}
	return ""
}
