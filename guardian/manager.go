// Package guardian implements the share registry mutations: owner-driven
// add, remove and replace of guardians and the opaque key shares binding
// them to the owner.
package guardian

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/guardial/account-recovery-backend/interfaces"
)

// Manager performs guardian mutations over the share registry and keeps the
// profile's recovery enablement flag in sync.
//
// The enablement recomputation is deliberately asymmetric: Add compares the
// share count against the profile's total guardian count, Remove compares
// the remaining count against the required-share threshold, and Replace
// skips the recomputation entirely. Consumers must not rely on the flag
// being recomputed uniformly across actions.
type Manager struct {
	profiles interfaces.ProfileStore
	shares   interfaces.ShareStore
	sessions interfaces.SessionStore
	log      *slog.Logger
}

// NewManager creates a guardian manager.
func NewManager(profiles interfaces.ProfileStore, shares interfaces.ShareStore, sessions interfaces.SessionStore, log *slog.Logger) *Manager {
	return &Manager{
		profiles: profiles,
		shares:   shares,
		sessions: sessions,
		log:      log,
	}
}

// Manage applies a guardian action for the owner. The action is one of
// interfaces.AddGuardian, RemoveGuardian or ReplaceGuardian.
//
// Returns ErrSelfGuardian if guardian equals owner, ErrProfileNotFound if
// the owner has no profile, and ErrMissingShareData when an add or replace
// carries no share ID or payload. All validation happens before any store
// mutation.
func (m *Manager) Manage(owner, guardian interfaces.Identity, action interfaces.GuardianAction) error {
	if guardian == owner {
		return interfaces.ErrSelfGuardian
	}

	profile, err := m.profiles.GetProfile(owner)
	if err != nil {
		return err
	}

	switch a := action.(type) {
	case interfaces.AddGuardian:
		return m.add(profile, guardian, a)
	case interfaces.RemoveGuardian:
		return m.remove(profile, guardian)
	case interfaces.ReplaceGuardian:
		return m.replace(profile, guardian, a)
	default:
		return fmt.Errorf("%w: unknown guardian action %T", interfaces.ErrValidation, action)
	}
}

// add inserts the guardian's share and recomputes enablement against the
// total guardian count.
func (m *Manager) add(profile *interfaces.UserProfile, guardian interfaces.Identity, action interfaces.AddGuardian) error {
	if action.ShareID == "" || len(action.EncryptedPayload) == 0 {
		return interfaces.ErrMissingShareData
	}

	share := &interfaces.KeyShare{
		ID:               action.ShareID,
		EncryptedPayload: action.EncryptedPayload,
		Guardian:         guardian,
		Owner:            profile.Identity,
	}
	if err := m.shares.PutShare(share); err != nil {
		return err
	}

	count, err := m.ownerShareCount(profile.Identity)
	if err != nil {
		return err
	}
	profile.RecoveryEnabled = count >= profile.TotalGuardians
	if err := m.profiles.PutProfile(profile); err != nil {
		return err
	}

	m.log.Info("Guardian added",
		slog.String("owner", profile.Identity.String()),
		slog.String("guardian", guardian.String()),
		slog.Bool("recoveryEnabled", profile.RecoveryEnabled))

	return nil
}

// remove deletes every share the guardian holds for the owner and
// recomputes enablement against the required-share threshold.
func (m *Manager) remove(profile *interfaces.UserProfile, guardian interfaces.Identity) error {
	if err := m.deleteGuardianShares(profile.Identity, guardian); err != nil {
		return err
	}

	count, err := m.ownerShareCount(profile.Identity)
	if err != nil {
		return err
	}
	profile.RecoveryEnabled = count >= profile.RequiredShares
	if err := m.profiles.PutProfile(profile); err != nil {
		return err
	}

	m.log.Info("Guardian removed",
		slog.String("owner", profile.Identity.String()),
		slog.String("guardian", guardian.String()),
		slog.Bool("recoveryEnabled", profile.RecoveryEnabled))

	return nil
}

// replace swaps the old guardian's shares for the new guardian's share.
// The enablement flag is left untouched.
func (m *Manager) replace(profile *interfaces.UserProfile, guardian interfaces.Identity, action interfaces.ReplaceGuardian) error {
	if action.ShareID == "" || len(action.EncryptedPayload) == 0 {
		return interfaces.ErrMissingShareData
	}

	if err := m.deleteGuardianShares(profile.Identity, action.Old); err != nil {
		return err
	}

	share := &interfaces.KeyShare{
		ID:               action.ShareID,
		EncryptedPayload: action.EncryptedPayload,
		Guardian:         guardian,
		Owner:            profile.Identity,
	}
	if err := m.shares.PutShare(share); err != nil {
		return err
	}

	m.log.Info("Guardian replaced",
		slog.String("owner", profile.Identity.String()),
		slog.String("oldGuardian", action.Old.String()),
		slog.String("newGuardian", guardian.String()))

	return nil
}

// GuardiansOf lists the owner's guardians paired with whether each has
// approved the owner's live recovery session. Guardians are ordered by
// their share IDs; a guardian holding several shares appears once.
func (m *Manager) GuardiansOf(owner interfaces.Identity) ([]interfaces.GuardianStatus, error) {
	shares, err := m.shares.SharesByOwner(owner)
	if err != nil {
		return nil, err
	}

	session, err := m.sessions.GetSession(owner)
	if err != nil && !errors.Is(err, interfaces.ErrSessionNotFound) {
		return nil, err
	}

	seen := make(map[interfaces.Identity]bool)
	statuses := make([]interfaces.GuardianStatus, 0, len(shares))
	for _, share := range shares {
		if seen[share.Guardian] {
			continue
		}
		seen[share.Guardian] = true

		approved := session != nil && session.HasApproved(share.Guardian)
		statuses = append(statuses, interfaces.GuardianStatus{
			Guardian:    share.Guardian,
			HasApproved: approved,
		})
	}

	return statuses, nil
}

// IsGuardian reports whether the identity currently holds a share for the
// owner.
func (m *Manager) IsGuardian(owner, guardian interfaces.Identity) (bool, error) {
	shares, err := m.shares.SharesByOwner(owner)
	if err != nil {
		return false, err
	}
	for _, share := range shares {
		if share.Guardian == guardian {
			return true, nil
		}
	}
	return false, nil
}

// deleteGuardianShares removes all of the guardian's shares for the owner,
// leaving every other guardian's shares untouched.
func (m *Manager) deleteGuardianShares(owner, guardian interfaces.Identity) error {
	shares, err := m.shares.SharesByOwner(owner)
	if err != nil {
		return err
	}
	for _, share := range shares {
		if share.Guardian == guardian {
			if err := m.shares.DeleteShare(share.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ownerShareCount counts the owner's stored shares.
func (m *Manager) ownerShareCount(owner interfaces.Identity) (int, error) {
	shares, err := m.shares.SharesByOwner(owner)
	if err != nil {
		return 0, err
	}
	return len(shares), nil
}
