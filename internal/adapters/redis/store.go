// Package redis provides a Redis-backed SessionStore: one JSON blob per
// session plus a ZSET index keyed by live status for cheap ListLive scans.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avdept/flowmachine/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// farFuture scores index members without a deadline. 2100-01-01.
const farFuture = 4102444800

// Store implements ports.SessionStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "flowmachine:session:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) liveIndexKey() string {
	return s.prefix + "live"
}

// Save persists the session blob and maintains the live index. Terminal
// sessions keep their blob (sessions are never deleted) but leave the index.
func (s *Store) Save(ctx context.Context, session *domain.FlowSessionState) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(session.SessionID), data, 0)

	if session.Status.IsLive() {
		score := float64(farFuture)
		if session.ExpiresAt != nil {
			score = float64(session.ExpiresAt.Unix())
		}
		pipe.ZAdd(ctx, s.liveIndexKey(), backend.Z{Score: score, Member: session.SessionID})
	} else {
		pipe.ZRem(ctx, s.liveIndexKey(), session.SessionID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// Load retrieves one session. Collection fields pass through lenient
// parsing so a mangled blob hydrates to empty collections.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.FlowSessionState, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}
	return decodeSession(sessionID, val), nil
}

// ListLive returns the active/waiting sessions via the index. Index entries
// whose blobs disappeared are pruned lazily.
func (s *Store) ListLive(ctx context.Context) ([]*domain.FlowSessionState, error) {
	ids, err := s.client.ZRange(ctx, s.liveIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list live sessions: %w", err)
	}
	out := make([]*domain.FlowSessionState, 0, len(ids))
	for _, id := range ids {
		session, err := s.Load(ctx, id)
		if err == domain.ErrSessionNotFound {
			s.client.ZRem(ctx, s.liveIndexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if session.Status.IsLive() {
			out = append(out, session)
		}
	}
	return out, nil
}

// UpsertVariable rewrites the session blob with the variable applied.
func (s *Store) UpsertVariable(ctx context.Context, sessionID, name string, value any) error {
	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Variables[name] = value
	return s.Save(ctx, session)
}

// ListVariables returns the persisted variables of a session.
func (s *Store) ListVariables(ctx context.Context, sessionID string) (map[string]any, error) {
	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Variables, nil
}

// Client exposes the underlying client so collaborators (the conversation
// locker in particular) can share the connection pool.
func (s *Store) Client() *backend.Client {
	return s.client
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// decodeSession unmarshals a session blob, degrading malformed collection
// fields to empty defaults instead of failing the load.
func decodeSession(sessionID string, data []byte) *domain.FlowSessionState {
	session := domain.SafeUnmarshal(data, domain.FlowSessionState{SessionID: sessionID})
	if session.Variables == nil {
		session.Variables = make(map[string]any)
	}
	if session.NodeStates == nil {
		session.NodeStates = make(map[string]domain.NodeState)
	}
	if session.ExecutionPath == nil {
		session.ExecutionPath = []string{}
	}
	return &session
}
