// Package encrypted wraps a session store with AES-GCM encryption of session
// variables at rest. Variables are where contact PII accumulates (free-text
// answers, webhook payloads); routing metadata stays plain so backends can
// still filter live sessions and expiry deadlines.
package encrypted

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
)

// vaultKey is the reserved variable name holding the ciphertext envelope.
const vaultKey = "__vault__"

// ErrBadKeySize is returned when the active key is not 32 bytes (AES-256).
var ErrBadKeySize = errors.New("encryption key must be 32 bytes")

// Config holds the encryption keys.
type Config struct {
	// ActiveKey encrypts new writes. Must be 32 bytes.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key fails to decrypt,
	// which allows zero-downtime key rotation.
	FallbackKeys [][]byte
}

// Store decorates a SessionStore, sealing variables on write and opening
// them on read.
type Store struct {
	next ports.SessionStore
	cfg  Config
}

// New wraps next with variable encryption.
func New(next ports.SessionStore, cfg Config) (*Store, error) {
	if len(cfg.ActiveKey) != aes.BlockSize*2 {
		return nil, ErrBadKeySize
	}
	return &Store{next: next, cfg: cfg}, nil
}

func (s *Store) Save(ctx context.Context, session *domain.FlowSessionState) error {
	sealed, err := s.seal(session)
	if err != nil {
		return err
	}
	return s.next.Save(ctx, sealed)
}

func (s *Store) Load(ctx context.Context, sessionID string) (*domain.FlowSessionState, error) {
	session, err := s.next.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.open(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) ListLive(ctx context.Context) ([]*domain.FlowSessionState, error) {
	sessions, err := s.next.ListLive(ctx)
	if err != nil {
		return nil, err
	}
	for _, session := range sessions {
		if err := s.open(session); err != nil {
			return nil, fmt.Errorf("session %s: %w", session.SessionID, err)
		}
	}
	return sessions, nil
}

// UpsertVariable cannot write through to the backend: the persisted variables
// column holds only the vault. It reads, mutates and re-seals the whole row.
func (s *Store) UpsertVariable(ctx context.Context, sessionID, name string, value any) error {
	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Variables == nil {
		session.Variables = make(map[string]any)
	}
	session.Variables[name] = value
	return s.Save(ctx, session)
}

func (s *Store) ListVariables(ctx context.Context, sessionID string) (map[string]any, error) {
	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Variables, nil
}

// seal returns a copy of the session whose variables are replaced by the
// ciphertext envelope. The caller's session is never mutated.
func (s *Store) seal(session *domain.FlowSessionState) (*domain.FlowSessionState, error) {
	plain, err := json.Marshal(session.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session variables: %w", err)
	}
	ciphertext, err := encrypt(plain, s.cfg.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session variables: %w", err)
	}

	sealed := session.Clone()
	sealed.Variables = map[string]any{
		vaultKey: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return sealed, nil
}

// open decrypts the envelope in place. Rows written before encryption was
// enabled carry no vault and pass through unchanged.
func (s *Store) open(session *domain.FlowSessionState) error {
	raw, ok := session.Variables[vaultKey].(string)
	if !ok {
		return nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("failed to decode variable vault: %w", err)
	}
	plain, err := decryptWithRotation(ciphertext, s.cfg.ActiveKey, s.cfg.FallbackKeys)
	if err != nil {
		return fmt.Errorf("failed to decrypt session variables: %w", err)
	}

	vars := make(map[string]any)
	if err := json.Unmarshal(plain, &vars); err != nil {
		return fmt.Errorf("failed to unmarshal decrypted variables: %w", err)
	}
	session.Variables = vars
	return nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
