package recovery

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardial/account-recovery-backend/interfaces"
	"github.com/guardial/account-recovery-backend/storage"
)

type issuerFixture struct {
	state  *storage.State
	issuer *Issuer
}

func newIssuerFixture(t *testing.T) *issuerFixture {
	t.Helper()
	state := storage.NewState()
	require.NoError(t, state.PutProfile(&interfaces.UserProfile{
		Identity:       "alice",
		TotalGuardians: 3,
		RequiredShares: 2,
		Devices:        []interfaces.DeviceRecord{{ID: "d1"}},
	}))
	require.NoError(t, state.PutGrant(&interfaces.AccessGrant{
		TemporaryIdentity:  "temp-1",
		OriginalIdentity:   "alice",
		EncryptedAccessKey: []byte("wrapped-key"),
		ExpiresAt:          testTime.Add(GrantTTL),
	}))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := NewIssuer(state, state, log)
	issuer.now = func() time.Time { return testTime }
	return &issuerFixture{state: state, issuer: issuer}
}

func TestActivate(t *testing.T) {
	f := newIssuerFixture(t)

	grant, err := f.issuer.Activate("temp-1", "alice", interfaces.DeviceRecord{ID: "d2", Name: "new-phone"})
	require.NoError(t, err)
	assert.True(t, grant.Used)

	profile, err := f.state.GetProfile("alice")
	require.NoError(t, err)
	require.Len(t, profile.Devices, 2)
	assert.Equal(t, "d2", profile.Devices[1].ID)

	stored, err := f.state.GetGrant("temp-1")
	require.NoError(t, err)
	assert.True(t, stored.Used)
}

func TestActivate_OneTimeUse(t *testing.T) {
	f := newIssuerFixture(t)

	_, err := f.issuer.Activate("temp-1", "alice", interfaces.DeviceRecord{ID: "d2"})
	require.NoError(t, err)

	_, err = f.issuer.Activate("temp-1", "alice", interfaces.DeviceRecord{ID: "d3"})
	assert.ErrorIs(t, err, interfaces.ErrGrantUsed)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyDone)

	// The second attempt must not have appended a device.
	profile, err := f.state.GetProfile("alice")
	require.NoError(t, err)
	assert.Len(t, profile.Devices, 2)
}

func TestActivate_Errors(t *testing.T) {
	f := newIssuerFixture(t)

	_, err := f.issuer.Activate("unknown", "alice", interfaces.DeviceRecord{ID: "d2"})
	assert.ErrorIs(t, err, interfaces.ErrGrantNotFound)

	_, err = f.issuer.Activate("temp-1", "mallory", interfaces.DeviceRecord{ID: "d2"})
	assert.ErrorIs(t, err, interfaces.ErrGrantMismatch)
	assert.ErrorIs(t, err, interfaces.ErrAuthorization)

	// A rejected activation leaves the grant unconsumed.
	stored, err := f.state.GetGrant("temp-1")
	require.NoError(t, err)
	assert.False(t, stored.Used)
}

func TestActivate_Expired(t *testing.T) {
	f := newIssuerFixture(t)
	f.issuer.now = func() time.Time { return testTime.Add(GrantTTL + time.Second) }

	_, err := f.issuer.Activate("temp-1", "alice", interfaces.DeviceRecord{ID: "d2"})
	assert.ErrorIs(t, err, interfaces.ErrGrantExpired)
	assert.ErrorIs(t, err, interfaces.ErrExpired)
}

func TestActivate_ExactExpiryBoundary(t *testing.T) {
	f := newIssuerFixture(t)
	// Expiry is strict: a grant activated exactly at ExpiresAt still works.
	f.issuer.now = func() time.Time { return testTime.Add(GrantTTL) }

	_, err := f.issuer.Activate("temp-1", "alice", interfaces.DeviceRecord{ID: "d2"})
	assert.NoError(t, err)
}

func TestAccessKey(t *testing.T) {
	f := newIssuerFixture(t)

	key, err := f.issuer.AccessKey("temp-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped-key"), key)

	_, err = f.issuer.AccessKey("unknown")
	assert.ErrorIs(t, err, interfaces.ErrGrantNotFound)
}

func TestAccessKey_UsedGrantStillReadable(t *testing.T) {
	f := newIssuerFixture(t)

	_, err := f.issuer.Activate("temp-1", "alice", interfaces.DeviceRecord{ID: "d2"})
	require.NoError(t, err)

	// Consumption blocks re-activation, not key retrieval.
	key, err := f.issuer.AccessKey("temp-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped-key"), key)
}

func TestAccessKey_Expired(t *testing.T) {
	f := newIssuerFixture(t)
	f.issuer.now = func() time.Time { return testTime.Add(GrantTTL + time.Hour) }

	_, err := f.issuer.AccessKey("temp-1")
	assert.ErrorIs(t, err, interfaces.ErrGrantExpired)
}
