package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardial/account-recovery-backend/interfaces"
)

func TestState_ProfileRoundTrip(t *testing.T) {
	state := NewState()

	_, err := state.GetProfile("alice")
	assert.ErrorIs(t, err, interfaces.ErrProfileNotFound)

	profile := &interfaces.UserProfile{
		Identity:       "alice",
		TotalGuardians: 3,
		RequiredShares: 2,
		Devices:        []interfaces.DeviceRecord{{ID: "d1", Name: "phone"}},
	}
	require.NoError(t, state.PutProfile(profile))

	got, err := state.GetProfile("alice")
	require.NoError(t, err)
	assert.Equal(t, profile, got)

	// Mutating the returned copy must not leak into the store.
	got.TotalGuardians = 99
	got.Devices[0].Name = "tampered"

	again, err := state.GetProfile("alice")
	require.NoError(t, err)
	assert.Equal(t, 3, again.TotalGuardians)
	assert.Equal(t, "phone", again.Devices[0].Name)
}

func TestState_SharesByOwner(t *testing.T) {
	state := NewState()

	require.NoError(t, state.PutShare(&interfaces.KeyShare{ID: "s2", Guardian: "bob", Owner: "alice", EncryptedPayload: []byte{2}}))
	require.NoError(t, state.PutShare(&interfaces.KeyShare{ID: "s1", Guardian: "carol", Owner: "alice", EncryptedPayload: []byte{1}}))
	require.NoError(t, state.PutShare(&interfaces.KeyShare{ID: "s3", Guardian: "dave", Owner: "erin", EncryptedPayload: []byte{3}}))

	shares, err := state.SharesByOwner("alice")
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, interfaces.ShareID("s1"), shares[0].ID)
	assert.Equal(t, interfaces.ShareID("s2"), shares[1].ID)

	require.NoError(t, state.DeleteShare("s1"))
	// Deleting an absent share is a no-op.
	require.NoError(t, state.DeleteShare("s1"))

	shares, err = state.SharesByOwner("alice")
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, interfaces.ShareID("s2"), shares[0].ID)

	_, err = state.GetShare("s1")
	assert.ErrorIs(t, err, interfaces.ErrShareNotFound)
}

func TestState_Sessions(t *testing.T) {
	state := NewState()

	_, err := state.GetSession("alice")
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)

	session := &interfaces.RecoverySession{
		Owner:             "alice",
		RequestedAt:       time.Now().UTC(),
		Status:            interfaces.StatusInProgress,
		ApprovedGuardians: []interfaces.Identity{"bob"},
		CollectedShares:   []interfaces.ShareID{"s1"},
	}
	require.NoError(t, state.PutSession(session))

	got, err := state.GetSession("alice")
	require.NoError(t, err)
	assert.Equal(t, session, got)

	require.NoError(t, state.DeleteSession("alice"))
	require.NoError(t, state.DeleteSession("alice"))

	_, err = state.GetSession("alice")
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestState_Notes(t *testing.T) {
	state := NewState()

	_, err := state.GetNote("alice", "n1")
	assert.ErrorIs(t, err, interfaces.ErrNoteNotFound)
	assert.ErrorIs(t, state.DeleteNote("alice", "n1"), interfaces.ErrNoteNotFound)

	require.NoError(t, state.PutNote("alice", "n2", []byte("two")))
	require.NoError(t, state.PutNote("alice", "n1", []byte("one")))

	ids, err := state.ListNotes("alice")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.NoteID{"n1", "n2"}, ids)

	blob, err := state.GetNote("alice", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), blob)

	require.NoError(t, state.DeleteNote("alice", "n1"))
	_, err = state.GetNote("alice", "n1")
	assert.ErrorIs(t, err, interfaces.ErrNoteNotFound)
}

func TestState_SnapshotRestore(t *testing.T) {
	state := NewState()

	require.NoError(t, state.PutProfile(&interfaces.UserProfile{Identity: "alice", TotalGuardians: 3, RequiredShares: 2, RecoveryEnabled: true}))
	require.NoError(t, state.PutShare(&interfaces.KeyShare{ID: "s1", Guardian: "bob", Owner: "alice", EncryptedPayload: []byte{1}}))
	require.NoError(t, state.PutSession(&interfaces.RecoverySession{Owner: "alice", Status: interfaces.StatusApprovalComplete, ApprovedGuardians: []interfaces.Identity{"bob", "carol"}}))
	require.NoError(t, state.PutGrant(&interfaces.AccessGrant{TemporaryIdentity: "temp", OriginalIdentity: "alice", ExpiresAt: time.Now().UTC().Add(time.Hour)}))
	require.NoError(t, state.PutNote("alice", "n1", []byte("note")))

	snap, err := state.Snapshot()
	require.NoError(t, err)

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded interfaces.Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored := NewState()
	require.NoError(t, restored.Restore(&decoded))

	restoredSnap, err := restored.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap, restoredSnap)

	profile, err := restored.GetProfile("alice")
	require.NoError(t, err)
	assert.True(t, profile.RecoveryEnabled)

	grant, err := restored.GetGrant("temp")
	require.NoError(t, err)
	assert.Equal(t, interfaces.Identity("alice"), grant.OriginalIdentity)
}

func TestState_SnapshotDeterministic(t *testing.T) {
	state := NewState()
	for _, id := range []interfaces.ShareID{"c", "a", "b"} {
		require.NoError(t, state.PutShare(&interfaces.KeyShare{ID: id, Guardian: "bob", Owner: "alice", EncryptedPayload: []byte{0}}))
	}

	first, err := state.Snapshot()
	require.NoError(t, err)
	second, err := state.Snapshot()
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)

	require.Len(t, first.Shares, 3)
	assert.Equal(t, interfaces.ShareID("a"), first.Shares[0].ID)
	assert.Equal(t, interfaces.ShareID("c"), first.Shares[2].ID)
}

func TestState_RestoreReplacesExisting(t *testing.T) {
	state := NewState()
	require.NoError(t, state.PutProfile(&interfaces.UserProfile{Identity: "stale", TotalGuardians: 2, RequiredShares: 2}))

	require.NoError(t, state.Restore(&interfaces.Snapshot{
		Profiles: []*interfaces.UserProfile{{Identity: "alice", TotalGuardians: 3, RequiredShares: 2}},
	}))

	_, err := state.GetProfile("stale")
	assert.ErrorIs(t, err, interfaces.ErrProfileNotFound)

	_, err = state.GetProfile("alice")
	assert.NoError(t, err)
}
