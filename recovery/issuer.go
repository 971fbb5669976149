package recovery

import (
	"log/slog"
	"time"

	"github.com/guardial/account-recovery-backend/interfaces"
)

// Issuer validates and consumes access grants. Grant creation happens in
// Machine.Finalize; the issuer owns the activation and key retrieval side.
type Issuer struct {
	grants   interfaces.GrantStore
	profiles interfaces.ProfileStore
	log      *slog.Logger

	now func() time.Time
}

// NewIssuer creates an access grant issuer.
func NewIssuer(grants interfaces.GrantStore, profiles interfaces.ProfileStore, log *slog.Logger) *Issuer {
	return &Issuer{
		grants:   grants,
		profiles: profiles,
		log:      log,
		now:      time.Now,
	}
}

// Activate consumes the grant keyed by the caller's temporary identity,
// appending the new device to the original owner's profile and marking the
// grant used.
//
// Returns ErrGrantNotFound when no grant is keyed by the caller,
// ErrGrantMismatch when the grant does not cover the claimed original
// identity, ErrGrantUsed on a consumed grant and ErrGrantExpired past
// expiry. Validation completes before any mutation; the device append and
// the used flag are written together under the owner's serialization so a
// grant can never be consumed twice even under concurrent activation
// attempts.
func (i *Issuer) Activate(caller, original interfaces.Identity, newDevice interfaces.DeviceRecord) (*interfaces.AccessGrant, error) {
	grant, err := i.grants.GetGrant(caller)
	if err != nil {
		return nil, err
	}
	if grant.OriginalIdentity != original {
		return nil, interfaces.ErrGrantMismatch
	}
	if grant.Used {
		return nil, interfaces.ErrGrantUsed
	}
	if grant.Expired(i.now()) {
		return nil, interfaces.ErrGrantExpired
	}

	profile, err := i.profiles.GetProfile(original)
	if err != nil {
		return nil, err
	}

	profile.Devices = append(profile.Devices, newDevice)
	if err := i.profiles.PutProfile(profile); err != nil {
		return nil, err
	}

	grant.Used = true
	if err := i.grants.PutGrant(grant); err != nil {
		return nil, err
	}

	i.log.Info("Recovered account activated",
		slog.String("owner", original.String()),
		slog.String("temporaryIdentity", caller.String()),
		slog.String("device", newDevice.ID))

	return grant, nil
}

// AccessKey returns the encrypted access key of the grant keyed by the
// caller. Returns ErrGrantNotFound when no grant exists and ErrGrantExpired
// past expiry. A consumed grant still yields its key until it expires.
func (i *Issuer) AccessKey(caller interfaces.Identity) ([]byte, error) {
	grant, err := i.grants.GetGrant(caller)
	if err != nil {
		return nil, err
	}
	if grant.Expired(i.now()) {
		return nil, interfaces.ErrGrantExpired
	}
	return grant.EncryptedAccessKey, nil
}
