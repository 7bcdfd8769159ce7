package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/avdept/flowmachine/internal/guard"
	"github.com/avdept/flowmachine/internal/trigger"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
)

// inputMatch is the outcome of testing a message against a waiting node's
// expected-input contract.
type inputMatch struct {
	sel       *selection     // branch discriminators for edge selection
	variables map[string]any // extracted selection variables to merge
	exitsAI   bool           // clears the AI handoff sub-state
	absorbed  bool           // consumed without a transition (AI chat turn)
}

// tryResume tests the message against one waiting session. On a match the
// session re-activates and traversal continues at the waiting node's edge
// selection; its side effects are not re-executed. A non-matching message
// leaves the session untouched so the caller can fall through to other
// waiting executions and cold trigger matching.
func (e *Engine) tryResume(ctx context.Context, s *domain.FlowSessionState, env *walkEnv) (bool, error) {
	if s.WaitingContext == nil {
		return false, nil
	}

	flow, err := e.flows.Flow(ctx, s.FlowID)
	if err != nil {
		e.logger.Warn("failed to load flow for waiting session", "session_id", s.SessionID, "flow_id", s.FlowID, "err", err)
		return false, nil
	}
	node, ok := flow.NodeByID(s.WaitingContext.NodeID)
	if !ok {
		return false, nil
	}

	match, ok := matchWaitingInput(node, s, env.msg, flow.OutgoingEdges(node.ID))
	if !ok {
		return false, nil
	}

	if match.absorbed {
		// AI owns the conversation; the turn runs through the assistant's
		// executor without advancing the waiting node.
		return true, e.continueAITurn(ctx, s, flow, node, env)
	}

	if _, err := e.sessions.Update(ctx, s.SessionID, func(st *domain.FlowSessionState) {
		st.Status = domain.StatusActive
		st.WaitingContext = nil
		for name, value := range match.variables {
			st.Variables[name] = value
		}
		if match.exitsAI {
			st.AISessionActive = false
			st.AINodeID = ""
			st.AIStopKeyword = ""
			st.AIExitOutputHandle = ""
		}
	}); err != nil {
		return true, err
	}
	for name, value := range match.variables {
		e.sessions.PersistVariable(ctx, s.SessionID, name, value)
	}

	trav := guard.NewTraversal(e.maxDepth)
	if err := e.walk(ctx, s.SessionID, flow, node.ID, env, match.sel, trav); err != nil {
		return true, err
	}
	return true, e.finishTraversal(ctx, s.SessionID, flow)
}

// continueAITurn hands a mid-handoff chat turn to the assistant's executor.
// The session keeps waiting at the assistant node; when task execution is
// enabled, tasks the executor triggered branch out through their task-<slug>
// edges as a side traversal.
func (e *Engine) continueAITurn(ctx context.Context, s *domain.FlowSessionState,
	flow *domain.Flow, node *domain.Node, env *walkEnv) error {

	execCtx := ports.NewExecutionContext(s, env.msg)
	if err := e.executeNode(ctx, s.SessionID, node, execCtx, env); err != nil {
		e.failSession(ctx, s.SessionID, node.ID, err)
		return err
	}

	var cfg domain.AIAssistantConfig
	if err := node.DecodeConfig(&cfg); err == nil && cfg.TaskExecution && len(execCtx.TriggeredTasks) > 0 {
		trav := guard.NewTraversal(e.maxDepth)
		sel := &selection{triggeredTasks: execCtx.TriggeredTasks}
		if err := e.walk(ctx, s.SessionID, flow, node.ID, env, sel, trav); err != nil {
			return err
		}
		return e.finishTraversal(ctx, s.SessionID, flow)
	}
	return nil
}

// matchWaitingInput applies the expected-input contract of the waiting node.
func matchWaitingInput(node *domain.Node, s *domain.FlowSessionState,
	msg *domain.InboundMessage, outgoing []domain.Edge) (*inputMatch, bool) {

	content := strings.TrimSpace(msg.Content)

	if s.AISessionActive && node.Type == domain.NodeAIAssistant {
		return matchAIInput(s, content)
	}

	switch node.Type {
	case domain.NodeQuickReply, domain.NodePoll, domain.NodeInteractiveButtons, domain.NodeInteractiveList:
		return matchSelectionInput(node, content, outgoing)

	case domain.NodeQuestion:
		return matchQuestionInput(node, content)

	case domain.NodeMessage, domain.NodeMedia:
		return matchKeywordInput(node, content, outgoing)
	}

	// Unknown waiting contract: accept as free text.
	return &inputMatch{sel: &selection{}, variables: map[string]any{"lastInput": content}}, true
}

// matchSelectionInput accepts a 1-based index, an option label or an option
// value. "back" routes to the go-back edge when one exists; anything else
// routes to invalid-response when the author wired that edge, and otherwise
// does not match at all.
func matchSelectionInput(node *domain.Node, content string, outgoing []domain.Edge) (*inputMatch, bool) {
	var cfg domain.SelectionConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		return nil, false
	}

	if idx, ok := resolveOption(cfg.Options, content); ok {
		opt := cfg.Options[idx]
		value := opt.Value
		if value == "" {
			value = opt.Label
		}
		return &inputMatch{
			sel: &selection{handle: domain.OptionHandle(idx)},
			variables: map[string]any{
				"selectedOptionIndex": idx,
				"selectedOptionLabel": opt.Label,
				"selectedOptionValue": value,
			},
		}, true
	}

	lowered := strings.ToLower(content)
	if (lowered == "back" || lowered == "go back") && hasHandle(outgoing, domain.HandleGoBack) {
		return &inputMatch{sel: &selection{handle: domain.HandleGoBack}, variables: map[string]any{}}, true
	}
	if hasHandle(outgoing, domain.HandleInvalidResponse) {
		return &inputMatch{
			sel:       &selection{handle: domain.HandleInvalidResponse},
			variables: map[string]any{"invalidResponse": content},
		}, true
	}
	return nil, false
}

// resolveOption maps user input to a 0-based option index.
func resolveOption(options []domain.SelectionOption, content string) (int, bool) {
	if n, err := strconv.Atoi(content); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1, true
		}
		return 0, false
	}
	for i, opt := range options {
		if strings.EqualFold(content, opt.Label) || (opt.Value != "" && strings.EqualFold(content, opt.Value)) {
			return i, true
		}
	}
	return 0, false
}

// matchQuestionInput accepts any text and captures it into the configured
// variable (falling back to lastInput).
func matchQuestionInput(node *domain.Node, content string) (*inputMatch, bool) {
	var cfg domain.QuestionConfig
	variable := "lastInput"
	if err := node.DecodeConfig(&cfg); err == nil && cfg.Variable != "" {
		variable = cfg.Variable
	}
	return &inputMatch{
		sel:       &selection{},
		variables: map[string]any{variable: content},
	}, true
}

// matchKeywordInput resolves a keyword-branching message/media node. A
// keyword hit routes to keyword-<slug>; a miss routes to no-match when that
// edge exists, else falls through.
func matchKeywordInput(node *domain.Node, content string, outgoing []domain.Edge) (*inputMatch, bool) {
	var cfg domain.MessageConfig
	if err := node.DecodeConfig(&cfg); err != nil || !cfg.KeywordTriggers {
		return nil, false
	}
	if kw, ok := trigger.MatchKeyword(cfg.Keywords, content); ok {
		return &inputMatch{
			sel:       &selection{matchedKeyword: kw},
			variables: map[string]any{"matchedKeyword": kw},
		}, true
	}
	if hasHandle(outgoing, domain.HandleNoMatch) {
		return &inputMatch{sel: &selection{}, variables: map[string]any{}}, true
	}
	return nil, false
}

// matchAIInput keeps the conversation with the assistant until its stop
// keyword, which exits through the configured output handle.
func matchAIInput(s *domain.FlowSessionState, content string) (*inputMatch, bool) {
	if s.AIStopKeyword != "" && strings.EqualFold(content, s.AIStopKeyword) {
		return &inputMatch{
			sel:       &selection{handle: s.AIExitOutputHandle},
			variables: map[string]any{},
			exitsAI:   true,
		}, true
	}
	return &inputMatch{absorbed: true}, true
}
