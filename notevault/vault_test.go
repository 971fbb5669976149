package notevault

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardial/account-recovery-backend/interfaces"
	"github.com/guardial/account-recovery-backend/recovery"
	"github.com/guardial/account-recovery-backend/storage"
)

func newTestVault(t *testing.T) (*Vault, *storage.State) {
	t.Helper()
	state := storage.NewState()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(state, recovery.NewResolver(state), log), state
}

func TestVaultCRUD(t *testing.T) {
	vault, _ := newTestVault(t)
	ctx := context.Background()

	_, err := vault.Get(ctx, "alice", "n1")
	assert.ErrorIs(t, err, interfaces.ErrNoteNotFound)

	require.NoError(t, vault.Put(ctx, "alice", "n1", []byte("secret note")))

	blob, err := vault.Get(ctx, "alice", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret note"), blob)

	// Notes are keyed per owner.
	_, err = vault.Get(ctx, "bob", "n1")
	assert.ErrorIs(t, err, interfaces.ErrNoteNotFound)

	require.NoError(t, vault.Put(ctx, "alice", "n2", []byte("second")))
	ids, err := vault.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.NoteID{"n1", "n2"}, ids)

	require.NoError(t, vault.Delete(ctx, "alice", "n1"))
	assert.ErrorIs(t, vault.Delete(ctx, "alice", "n1"), interfaces.ErrNoteNotFound)
}

func TestVaultResolvesGrantHolder(t *testing.T) {
	vault, state := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, state.PutGrant(&interfaces.AccessGrant{
		TemporaryIdentity: "temp-1",
		OriginalIdentity:  "alice",
		ExpiresAt:         time.Now().Add(time.Hour),
	}))

	require.NoError(t, vault.Put(ctx, "alice", "n1", []byte("owner note")))

	// The grant holder reads and writes the owner's notes.
	blob, err := vault.Get(ctx, "temp-1", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("owner note"), blob)

	require.NoError(t, vault.Put(ctx, "temp-1", "n2", []byte("via grant")))
	blob, err = vault.Get(ctx, "alice", "n2")
	require.NoError(t, err)
	assert.Equal(t, []byte("via grant"), blob)
}

func TestVaultExpiredGrantFallsBack(t *testing.T) {
	vault, state := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, state.PutGrant(&interfaces.AccessGrant{
		TemporaryIdentity: "temp-1",
		OriginalIdentity:  "alice",
		ExpiresAt:         time.Now().Add(-time.Hour),
	}))
	require.NoError(t, state.PutNote("alice", "n1", []byte("owner note")))

	// An expired grant resolves to the caller itself, which has no notes.
	_, err := vault.Get(ctx, "temp-1", "n1")
	assert.ErrorIs(t, err, interfaces.ErrNoteNotFound)
}

func TestVaultContextCancellation(t *testing.T) {
	vault, _ := newTestVault(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, vault.Put(ctx, "alice", "n1", []byte("x")), context.Canceled)
}
