// Package sqlite provides a SQLite-backed SessionStore with JSON-encoded
// collection columns and a separate per-session variables table.
//
// It expects an *sql.DB using a SQLite driver; the caller imports one, e.g.:
//
//	import _ "modernc.org/sqlite"
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
)

// Store implements ports.SessionStore on SQLite.
type Store struct {
	db *sql.DB
}

var _ ports.SessionStore = (*Store)(nil)

// New initializes the schema and returns a Store.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init sqlite schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_sessions (
			session_id TEXT PRIMARY KEY,
			flow_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			company_id TEXT NOT NULL,
			status TEXT NOT NULL,
			current_node_id TEXT NOT NULL,
			trigger_node_id TEXT NOT NULL,
			execution_path TEXT,
			node_states TEXT,
			waiting_context TEXT,
			ai_state TEXT,
			started_at TIMESTAMP NOT NULL,
			last_activity_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_flow_sessions_status ON flow_sessions (status);
		CREATE TABLE IF NOT EXISTS session_variables (
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, name)
		);`,
	)
	return err
}

// aiState groups the AI handoff columns into one JSON column.
type aiState struct {
	Active     bool   `json:"active,omitempty"`
	NodeID     string `json:"nodeId,omitempty"`
	StopKw     string `json:"stopKeyword,omitempty"`
	ExitHandle string `json:"exitOutputHandle,omitempty"`
}

// Save upserts the session row and mirrors its variables.
func (s *Store) Save(ctx context.Context, session *domain.FlowSessionState) error {
	path, err := json.Marshal(session.ExecutionPath)
	if err != nil {
		return fmt.Errorf("failed to encode execution path: %w", err)
	}
	nodeStates, err := json.Marshal(session.NodeStates)
	if err != nil {
		return fmt.Errorf("failed to encode node states: %w", err)
	}
	var waiting []byte
	if session.WaitingContext != nil {
		if waiting, err = json.Marshal(session.WaitingContext); err != nil {
			return fmt.Errorf("failed to encode waiting context: %w", err)
		}
	}
	ai, err := json.Marshal(aiState{
		Active:     session.AISessionActive,
		NodeID:     session.AINodeID,
		StopKw:     session.AIStopKeyword,
		ExitHandle: session.AIExitOutputHandle,
	})
	if err != nil {
		return fmt.Errorf("failed to encode ai state: %w", err)
	}

	var expires any
	if session.ExpiresAt != nil {
		expires = session.ExpiresAt.UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO flow_sessions
			(session_id, flow_id, conversation_id, contact_id, company_id, status,
			 current_node_id, trigger_node_id, execution_path, node_states,
			 waiting_context, ai_state, started_at, last_activity_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			current_node_id = excluded.current_node_id,
			execution_path = excluded.execution_path,
			node_states = excluded.node_states,
			waiting_context = excluded.waiting_context,
			ai_state = excluded.ai_state,
			last_activity_at = excluded.last_activity_at,
			expires_at = excluded.expires_at`,
		session.SessionID, session.FlowID, session.ConversationID, session.ContactID,
		session.CompanyID, string(session.Status), session.CurrentNodeID, session.TriggerNodeID,
		string(path), string(nodeStates), nullableText(waiting), string(ai),
		session.StartedAt.UTC(), session.LastActivityAt.UTC(), expires,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for name, value := range session.Variables {
		if err := upsertVariableTx(ctx, tx, session.SessionID, name, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load hydrates one session. JSON columns parse leniently: a corrupt column
// yields an empty collection, never an error.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.FlowSessionState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, flow_id, conversation_id, contact_id, company_id, status,
		       current_node_id, trigger_node_id, execution_path, node_states,
		       waiting_context, ai_state, started_at, last_activity_at, expires_at
		FROM flow_sessions WHERE session_id = ?`, sessionID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	vars, err := s.ListVariables(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Variables = vars
	return session, nil
}

// ListLive returns sessions in active or waiting status.
func (s *Store) ListLive(ctx context.Context) ([]*domain.FlowSessionState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, flow_id, conversation_id, contact_id, company_id, status,
		       current_node_id, trigger_node_id, execution_path, node_states,
		       waiting_context, ai_state, started_at, last_activity_at, expires_at
		FROM flow_sessions WHERE status IN (?, ?)`,
		string(domain.StatusActive), string(domain.StatusWaiting))
	if err != nil {
		return nil, fmt.Errorf("failed to list live sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.FlowSessionState
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		vars, err := s.ListVariables(ctx, session.SessionID)
		if err != nil {
			return nil, err
		}
		session.Variables = vars
		out = append(out, session)
	}
	return out, rows.Err()
}

// UpsertVariable writes one variable row.
func (s *Store) UpsertVariable(ctx context.Context, sessionID, name string, value any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := upsertVariableTx(ctx, tx, sessionID, name, value); err != nil {
		return err
	}
	return tx.Commit()
}

// ListVariables returns the persisted variables of a session. Malformed
// value columns hydrate to nil rather than erroring.
func (s *Store) ListVariables(ctx context.Context, sessionID string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM session_variables WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variables: %w", err)
	}
	defer rows.Close()

	vars := make(map[string]any)
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		if value.Valid {
			vars[name] = domain.SafeUnmarshal([]byte(value.String), any(nil))
		} else {
			vars[name] = nil
		}
	}
	return vars, rows.Err()
}

func upsertVariableTx(ctx context.Context, tx *sql.Tx, sessionID, name string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode variable %s: %w", name, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_variables (session_id, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		sessionID, name, string(encoded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert variable %s: %w", name, err)
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*domain.FlowSessionState, error) {
	var (
		session                       domain.FlowSessionState
		status                        string
		path, nodeStates, waiting, ai sql.NullString
		expires                       sql.NullTime
	)
	err := sc.Scan(
		&session.SessionID, &session.FlowID, &session.ConversationID, &session.ContactID,
		&session.CompanyID, &status, &session.CurrentNodeID, &session.TriggerNodeID,
		&path, &nodeStates, &waiting, &ai,
		&session.StartedAt, &session.LastActivityAt, &expires,
	)
	if err != nil {
		return nil, err
	}

	session.Status = domain.SessionStatus(status)
	session.ExecutionPath = domain.SafeUnmarshal([]byte(path.String), []string{})
	session.NodeStates = domain.SafeUnmarshal([]byte(nodeStates.String), map[string]domain.NodeState{})
	if waiting.Valid && waiting.String != "" {
		wc := domain.SafeUnmarshal([]byte(waiting.String), domain.WaitingContext{})
		if wc.NodeID != "" {
			session.WaitingContext = &wc
		}
	}
	if ai.Valid {
		st := domain.SafeUnmarshal([]byte(ai.String), aiState{})
		session.AISessionActive = st.Active
		session.AINodeID = st.NodeID
		session.AIStopKeyword = st.StopKw
		session.AIExitOutputHandle = st.ExitHandle
	}
	if expires.Valid {
		t := expires.Time
		session.ExpiresAt = &t
	}
	return &session, nil
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
