package engine

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/avdept/flowmachine/internal/guard"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
)

// walk evaluates one node and recurses along its eligible edges. When sel is
// nil the node is executed (or suspended on, if it requires input); a non-nil
// sel means a resume entry: execution is skipped and traversal continues at
// edge selection with the already-matched branch.
func (e *Engine) walk(ctx context.Context, sessionID string, flow *domain.Flow, nodeID string,
	env *walkEnv, sel *selection, trav *guard.Traversal) error {

	if err := trav.Enter(nodeID); err != nil {
		e.failSession(ctx, sessionID, nodeID, err)
		return err
	}

	s, ok := e.sessions.Get(sessionID)
	if !ok || s.Status.IsTerminal() {
		// Terminated (or expired and evicted) while traversing; stop quietly.
		return nil
	}

	node, ok := flow.NodeByID(nodeID)
	if !ok {
		err := fmt.Errorf("%w: %s", domain.ErrNodeNotFound, nodeID)
		e.failSession(ctx, sessionID, nodeID, err)
		return err
	}

	if sel == nil {
		execCtx := ports.NewExecutionContext(s, env.msg)

		if err := e.executeNode(ctx, sessionID, node, execCtx, env); err != nil {
			e.failSession(ctx, sessionID, nodeID, err)
			return err
		}

		// Input nodes suspend here, after their send ran; the reply resumes
		// at edge selection without re-running the side effects.
		if node.Type != domain.NodeTrigger && node.RequiresInput() {
			e.suspend(ctx, sessionID, node)
			return nil
		}

		sel = &selection{
			matchedKeyword: env.msg.MatchedKeyword,
			triggeredTasks: execCtx.TriggeredTasks,
		}
	}

	snapshot, ok := e.sessions.Get(sessionID)
	if !ok {
		return nil
	}

	outgoing := flow.OutgoingEdges(nodeID)
	selected := selectEdges(node, outgoing, snapshot.Variables, sel)

	var eligible []domain.Edge
	for _, edge := range selected {
		if edge.Condition.Evaluate(snapshot.Variables) {
			eligible = append(eligible, edge)
		}
	}

	if len(eligible) == 0 {
		// Leaf of this branch. Completion is decided once, by finishTraversal,
		// after the whole fan-out unwinds; a sibling branch may still be live.
		return nil
	}

	for _, edge := range eligible {
		// Commit the transition before recursing so a crash mid-traversal
		// resumes from the last committed node instead of re-running sends.
		if _, err := e.sessions.Update(ctx, sessionID, func(st *domain.FlowSessionState) {
			st.CurrentNodeID = edge.Target
			st.ExecutionPath = append(st.ExecutionPath, edge.Target)
		}); err != nil {
			return err
		}
		if err := e.walk(ctx, sessionID, flow, edge.Target, env, nil, trav); err != nil {
			return err
		}
	}
	return nil
}

// executeNode dispatches the node's executor, records per-node bookkeeping
// and merges executor variable writes into the session (last-writer-wins),
// persisting each changed variable.
func (e *Engine) executeNode(ctx context.Context, sessionID string, node *domain.Node,
	execCtx *ports.ExecutionContext, env *walkEnv) error {

	started := time.Now()
	if _, err := e.sessions.Update(ctx, sessionID, func(st *domain.FlowSessionState) {
		st.NodeStates[node.ID] = domain.NodeState{Status: domain.NodeRunRunning, StartedAt: started}
	}); err != nil {
		return err
	}

	execErr := e.registry.Execute(ctx, node, execCtx, env.conversation, env.contact, env.connection)
	e.metrics.NodesExecuted.WithLabelValues(string(node.Type)).Inc()

	ended := time.Now()
	if execErr != nil {
		if _, err := e.sessions.Update(ctx, sessionID, func(st *domain.FlowSessionState) {
			st.NodeStates[node.ID] = domain.NodeState{
				Status: domain.NodeRunFailed, StartedAt: started, EndedAt: &ended, Error: execErr.Error(),
			}
		}); err != nil {
			return err
		}
		return fmt.Errorf("executor for node %s failed: %w", node.ID, execErr)
	}

	var changed map[string]any
	if _, err := e.sessions.Update(ctx, sessionID, func(st *domain.FlowSessionState) {
		changed = mergeVariables(st, execCtx.Variables)
		st.NodeStates[node.ID] = domain.NodeState{
			Status: domain.NodeRunCompleted, StartedAt: started, EndedAt: &ended,
		}
	}); err != nil {
		return err
	}
	for name, value := range changed {
		e.sessions.PersistVariable(ctx, sessionID, name, value)
	}
	return nil
}

// mergeVariables applies executor writes onto the session, returning the
// variables whose values actually changed. Values may be slices or maps, so
// equality goes through reflect.DeepEqual rather than ==.
func mergeVariables(s *domain.FlowSessionState, vars map[string]any) map[string]any {
	changed := make(map[string]any)
	for name, value := range vars {
		if old, ok := s.Variables[name]; ok && reflect.DeepEqual(old, value) {
			continue
		}
		s.Variables[name] = value
		changed[name] = value
	}
	return changed
}

// suspend parks the session in waiting state. AI assistant nodes also take
// over the conversation until their stop keyword.
func (e *Engine) suspend(ctx context.Context, sessionID string, node *domain.Node) {
	snapshot, err := e.sessions.Update(ctx, sessionID, func(st *domain.FlowSessionState) {
		st.Status = domain.StatusWaiting
		st.WaitingContext = &domain.WaitingContext{
			NodeID:            node.ID,
			ExpectedInputType: node.ExpectedInputType(),
			Timestamp:         time.Now(),
		}
		if node.Type == domain.NodeAIAssistant {
			var cfg domain.AIAssistantConfig
			if decErr := node.DecodeConfig(&cfg); decErr == nil {
				st.AISessionActive = true
				st.AINodeID = node.ID
				st.AIStopKeyword = cfg.StopKeyword
				st.AIExitOutputHandle = cfg.ExitOutputHandle
			}
		}
	})
	if err != nil {
		e.logger.Warn("failed to suspend session", "session_id", sessionID, "err", err)
		return
	}
	e.sessions.Emitter().Emit(domain.NewSessionEvent(domain.EventSessionWaiting, snapshot))
}

// finishTraversal settles a traversal that ran to exhaustion: a session left
// active (not suspended, not failed) either re-arms at its session-persistent
// trigger or completes. Called once per dispatched message, after the
// outermost walk returns.
func (e *Engine) finishTraversal(ctx context.Context, sessionID string, flow *domain.Flow) error {
	s, ok := e.sessions.Get(sessionID)
	if !ok || s.Status != domain.StatusActive {
		return nil
	}

	if trig, ok := flow.NodeByID(s.TriggerNodeID); ok {
		var cfg domain.TriggerConfig
		if err := trig.DecodeConfig(&cfg); err == nil && cfg.Persistent() {
			_, err := e.sessions.Update(ctx, sessionID, func(st *domain.FlowSessionState) {
				st.CurrentNodeID = st.TriggerNodeID
				st.Status = domain.StatusActive
				st.WaitingContext = nil
			})
			return err
		}
	}

	snapshot, err := e.sessions.Update(ctx, sessionID, func(st *domain.FlowSessionState) {
		st.Status = domain.StatusCompleted
	})
	if err != nil {
		return err
	}
	e.metrics.SessionsCompleted.Inc()
	e.sessions.Emitter().Emit(domain.NewSessionEvent(domain.EventSessionCompleted, snapshot))
	return nil
}

// failSession marks the session failed. The error is propagated by the
// caller but must never reach the transport.
func (e *Engine) failSession(ctx context.Context, sessionID, nodeID string, cause error) {
	_, err := e.sessions.Update(ctx, sessionID, func(st *domain.FlowSessionState) {
		st.Status = domain.StatusFailed
		if ns, ok := st.NodeStates[nodeID]; ok && ns.Error == "" {
			ns.Error = cause.Error()
			st.NodeStates[nodeID] = ns
		}
	})
	if err != nil {
		e.logger.Warn("failed to mark session failed", "session_id", sessionID, "err", err)
		return
	}
	e.metrics.SessionsFailed.Inc()
	e.logger.Warn("session failed", "session_id", sessionID, "node", nodeID, "err", cause)
}
