package engine

import (
	"github.com/avdept/flowmachine/pkg/domain"
)

// selection carries the branch discriminators gathered before edge selection:
// the handle matched on resume, the keyword hit on a keyword node, and any AI
// tasks the assistant triggered.
type selection struct {
	handle         string
	matchedKeyword string
	triggeredTasks []string
}

// selectEdges applies the per-node-type branching policy to a node's
// outgoing edges. The returned set is further filtered by declarative edge
// conditions before traversal.
func selectEdges(node *domain.Node, outgoing []domain.Edge, vars map[string]any, sel *selection) []domain.Edge {
	switch node.Type {
	case domain.NodeTrigger:
		return selectTriggerEdges(outgoing, sel)

	case domain.NodeCondition:
		return selectConditionEdges(node, outgoing, vars)

	case domain.NodeQuickReply, domain.NodePoll, domain.NodeInteractiveButtons, domain.NodeInteractiveList:
		return edgesWithHandle(outgoing, sel.handle)

	case domain.NodeMessage, domain.NodeMedia:
		return selectKeywordEdges(node, outgoing, sel)

	case domain.NodeAIAssistant:
		return selectAIEdges(node, outgoing, sel)
	}
	return outgoing
}

// selectTriggerEdges routes a multiple_keywords trigger to the branch of the
// keyword that matched it. Triggers without keyword-specific edges, and
// matches that carry no keyword, use all outgoing edges.
func selectTriggerEdges(outgoing []domain.Edge, sel *selection) []domain.Edge {
	if sel.matchedKeyword == "" {
		return outgoing
	}
	handle := domain.KeywordHandle(sel.matchedKeyword)
	if !hasHandle(outgoing, handle) {
		return outgoing
	}
	return edgesWithHandle(outgoing, handle)
}

// selectConditionEdges evaluates the node's predicate and picks the matching
// branch family. Flows authored without yes/no style handles fall back to all
// outgoing edges; that defensive default mirrors long-standing behavior.
func selectConditionEdges(node *domain.Node, outgoing []domain.Edge, vars map[string]any) []domain.Edge {
	var cfg domain.ConditionConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		return outgoing
	}
	result := cfg.Predicate().Evaluate(vars)

	hasBranchHandles := false
	for _, e := range outgoing {
		if domain.IsBranchHandle(e.SourceHandle) {
			hasBranchHandles = true
			break
		}
	}
	if !hasBranchHandles {
		return outgoing
	}

	var picked []domain.Edge
	for _, e := range outgoing {
		if result && domain.IsPositiveHandle(e.SourceHandle) {
			picked = append(picked, e)
		}
		if !result && domain.IsNegativeHandle(e.SourceHandle) {
			picked = append(picked, e)
		}
	}
	return picked
}

// selectKeywordEdges routes keyword-enabled message/media nodes to the
// keyword-<slug> edge of the matched keyword, or to no-match. Nodes without
// keyword branching use all outgoing edges.
func selectKeywordEdges(node *domain.Node, outgoing []domain.Edge, sel *selection) []domain.Edge {
	var cfg domain.MessageConfig
	if err := node.DecodeConfig(&cfg); err != nil || !cfg.KeywordTriggers || len(cfg.Keywords) == 0 {
		return outgoing
	}
	if sel.matchedKeyword != "" {
		return edgesWithHandle(outgoing, domain.KeywordHandle(sel.matchedKeyword))
	}
	return edgesWithHandle(outgoing, domain.HandleNoMatch)
}

// selectAIEdges routes an exiting AI session to its exit handle, and a
// task-executing assistant to the handles of its triggered tasks.
func selectAIEdges(node *domain.Node, outgoing []domain.Edge, sel *selection) []domain.Edge {
	if sel.handle != "" {
		return edgesWithHandle(outgoing, sel.handle)
	}
	var cfg domain.AIAssistantConfig
	if err := node.DecodeConfig(&cfg); err == nil && cfg.TaskExecution && len(sel.triggeredTasks) > 0 {
		handles := make(map[string]struct{}, len(sel.triggeredTasks))
		for _, task := range sel.triggeredTasks {
			handles[domain.TaskHandle(task)] = struct{}{}
		}
		var picked []domain.Edge
		for _, e := range outgoing {
			if _, ok := handles[e.SourceHandle]; ok {
				picked = append(picked, e)
			}
		}
		return picked
	}
	return outgoing
}

func edgesWithHandle(outgoing []domain.Edge, handle string) []domain.Edge {
	if handle == "" {
		return outgoing
	}
	var picked []domain.Edge
	for _, e := range outgoing {
		if e.SourceHandle == handle {
			picked = append(picked, e)
		}
	}
	return picked
}

func hasHandle(outgoing []domain.Edge, handle string) bool {
	for _, e := range outgoing {
		if e.SourceHandle == handle {
			return true
		}
	}
	return false
}
