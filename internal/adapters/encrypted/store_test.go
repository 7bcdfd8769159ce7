package encrypted_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/avdept/flowmachine/internal/adapters/encrypted"
	"github.com/avdept/flowmachine/internal/adapters/memory"
	"github.com/avdept/flowmachine/pkg/domain"
	"github.com/avdept/flowmachine/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) []byte { return bytes.Repeat([]byte{b}, 32) }

func TestEncryptedStoreContract(t *testing.T) {
	store, err := encrypted.New(memory.NewStore(), encrypted.Config{ActiveKey: key('a')})
	require.NoError(t, err)
	ports.RunSessionStoreContract(t, store)
}

func TestRejectsShortKey(t *testing.T) {
	_, err := encrypted.New(memory.NewStore(), encrypted.Config{ActiveKey: []byte("short")})
	assert.ErrorIs(t, err, encrypted.ErrBadKeySize)
}

func TestVariablesAreOpaqueAtRest(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	store, err := encrypted.New(inner, encrypted.Config{ActiveKey: key('a')})
	require.NoError(t, err)

	session := domain.NewSession("s-1", "flow-1", "conv-1", "contact-1", "co-1", "trig")
	session.Variables["email"] = "ada@example.com"
	require.NoError(t, store.Save(ctx, session))

	raw, err := inner.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.NotContains(t, raw.Variables, "email")
	assert.Len(t, raw.Variables, 1, "persisted row must hold only the vault")

	loaded, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", loaded.Variables["email"])

	// The caller's session must not be mutated by sealing.
	assert.Equal(t, "ada@example.com", session.Variables["email"])
}

func TestKeyRotation(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()

	old, err := encrypted.New(inner, encrypted.Config{ActiveKey: key('a')})
	require.NoError(t, err)
	session := domain.NewSession("s-1", "flow-1", "conv-1", "contact-1", "co-1", "trig")
	session.Variables["name"] = "ada"
	require.NoError(t, old.Save(ctx, session))

	rotated, err := encrypted.New(inner, encrypted.Config{
		ActiveKey:    key('b'),
		FallbackKeys: [][]byte{key('a')},
	})
	require.NoError(t, err)
	loaded, err := rotated.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "ada", loaded.Variables["name"])
}

func TestWrongKeyFails(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()

	writer, err := encrypted.New(inner, encrypted.Config{ActiveKey: key('a')})
	require.NoError(t, err)
	require.NoError(t, writer.Save(ctx, domain.NewSession("s-1", "f", "c", "ct", "co", "t")))

	reader, err := encrypted.New(inner, encrypted.Config{ActiveKey: key('z')})
	require.NoError(t, err)
	_, err = reader.Load(ctx, "s-1")
	assert.Error(t, err)
}

func TestPlaintextRowsPassThrough(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()

	legacy := domain.NewSession("s-legacy", "f", "c", "ct", "co", "t")
	legacy.Variables["name"] = "ada"
	require.NoError(t, inner.Save(ctx, legacy))

	store, err := encrypted.New(inner, encrypted.Config{ActiveKey: key('a')})
	require.NoError(t, err)
	loaded, err := store.Load(ctx, "s-legacy")
	require.NoError(t, err)
	assert.Equal(t, "ada", loaded.Variables["name"])
}
