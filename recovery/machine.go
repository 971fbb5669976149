package recovery

import (
	"log/slog"
	"time"

	"github.com/guardial/account-recovery-backend/interfaces"
)

// GrantTTL is how long an access grant issued by Finalize remains valid.
const GrantTTL = 30 * 24 * time.Hour

// Machine coordinates guardian approvals and share submissions for per-owner
// recovery sessions, and issues the access grant on completion.
type Machine struct {
	profiles interfaces.ProfileStore
	shares   interfaces.ShareStore
	sessions interfaces.SessionStore
	grants   interfaces.GrantStore
	log      *slog.Logger

	now func() time.Time
}

// NewMachine creates a recovery session machine.
func NewMachine(profiles interfaces.ProfileStore, shares interfaces.ShareStore, sessions interfaces.SessionStore, grants interfaces.GrantStore, log *slog.Logger) *Machine {
	return &Machine{
		profiles: profiles,
		shares:   shares,
		sessions: sessions,
		grants:   grants,
		log:      log,
		now:      time.Now,
	}
}

// Initiate starts a fresh recovery session for the owner in the requested
// status, discarding any prior session unconditionally.
//
// Returns ErrNotEligible when the owner has no profile or recovery is not
// enabled.
func (m *Machine) Initiate(owner interfaces.Identity) (*interfaces.RecoverySession, error) {
	profile, err := m.profiles.GetProfile(owner)
	if err != nil {
		return nil, interfaces.ErrNotEligible
	}
	if !profile.RecoveryEnabled {
		return nil, interfaces.ErrNotEligible
	}

	session := &interfaces.RecoverySession{
		Owner:       owner,
		RequestedAt: m.now(),
		Status:      interfaces.StatusRequested,
	}
	if err := m.sessions.PutSession(session); err != nil {
		return nil, err
	}

	m.log.Info("Recovery session initiated", slog.String("owner", owner.String()))

	return session, nil
}

// Approve records a guardian's approval of the owner's live session.
//
// The guardian must currently hold a share for the owner (ErrNotGuardian)
// and must not have approved before (ErrAlreadyApproved). When distinct
// approvals reach the required-share threshold the status becomes
// approval_complete; otherwise the status is left unchanged. Approvals
// alone never move a session from requested to in_progress, only share
// submissions do.
func (m *Machine) Approve(guardian, owner interfaces.Identity) (*interfaces.RecoverySession, error) {
	session, err := m.sessions.GetSession(owner)
	if err != nil {
		return nil, err
	}

	holds, err := m.guardianHoldsShare(owner, guardian)
	if err != nil {
		return nil, err
	}
	if !holds {
		return nil, interfaces.ErrNotGuardian
	}

	if session.HasApproved(guardian) {
		return nil, interfaces.ErrAlreadyApproved
	}

	profile, err := m.profiles.GetProfile(owner)
	if err != nil {
		return nil, err
	}

	session.ApprovedGuardians = append(session.ApprovedGuardians, guardian)
	if len(session.ApprovedGuardians) >= profile.RequiredShares {
		session.Status = interfaces.StatusApprovalComplete
	}

	if err := m.sessions.PutSession(session); err != nil {
		return nil, err
	}

	m.log.Info("Recovery approval recorded",
		slog.String("owner", owner.String()),
		slog.String("guardian", guardian.String()),
		slog.Int("approvals", len(session.ApprovedGuardians)),
		slog.String("status", session.Status.String()))

	return session, nil
}

// SubmitShare records a collected share on the owner's live session.
//
// Submission is rejected with ErrWrongState while the session is still
// requested, or once it is completed or failed. The guardian must have
// approved first (ErrNotApproved), the share must exist and be bound to
// exactly this guardian and owner (ErrInvalidShare), and a share ID can be
// submitted only once (ErrAlreadySubmitted). When distinct collected shares
// reach the threshold the status becomes shares_collected, otherwise
// in_progress.
func (m *Machine) SubmitShare(guardian, owner interfaces.Identity, shareID interfaces.ShareID) (*interfaces.RecoverySession, error) {
	session, err := m.sessions.GetSession(owner)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case interfaces.StatusRequested, interfaces.StatusCompleted, interfaces.StatusFailed:
		return nil, interfaces.ErrWrongState
	}

	if !session.HasApproved(guardian) {
		return nil, interfaces.ErrNotApproved
	}

	share, err := m.shares.GetShare(shareID)
	if err != nil || share.Guardian != guardian || share.Owner != owner {
		return nil, interfaces.ErrInvalidShare
	}

	if session.HasCollected(shareID) {
		return nil, interfaces.ErrAlreadySubmitted
	}

	profile, err := m.profiles.GetProfile(owner)
	if err != nil {
		return nil, err
	}

	session.CollectedShares = append(session.CollectedShares, shareID)
	if len(session.CollectedShares) >= profile.RequiredShares {
		session.Status = interfaces.StatusSharesCollected
	} else {
		session.Status = interfaces.StatusInProgress
	}

	if err := m.sessions.PutSession(session); err != nil {
		return nil, err
	}

	m.log.Info("Recovery share collected",
		slog.String("owner", owner.String()),
		slog.String("guardian", guardian.String()),
		slog.Int("collected", len(session.CollectedShares)),
		slog.String("status", session.Status.String()))

	return session, nil
}

// Finalize issues the access grant for a session that has collected its
// required shares, records the temporary identity on the session and moves
// it to completed.
//
// Returns ErrNotReady unless the session status is shares_collected. The
// grant expires GrantTTL after finalization.
func (m *Machine) Finalize(owner, temporaryIdentity interfaces.Identity, encryptedAccessKey []byte) (*interfaces.AccessGrant, error) {
	session, err := m.sessions.GetSession(owner)
	if err != nil {
		return nil, err
	}
	if session.Status != interfaces.StatusSharesCollected {
		return nil, interfaces.ErrNotReady
	}
	if err := temporaryIdentity.Validate(); err != nil {
		return nil, err
	}

	grant := &interfaces.AccessGrant{
		TemporaryIdentity:  temporaryIdentity,
		OriginalIdentity:   owner,
		EncryptedAccessKey: encryptedAccessKey,
		ExpiresAt:          m.now().Add(GrantTTL),
		Used:               false,
	}
	if err := m.grants.PutGrant(grant); err != nil {
		return nil, err
	}

	session.Status = interfaces.StatusCompleted
	session.TemporaryIdentity = temporaryIdentity
	if err := m.sessions.PutSession(session); err != nil {
		return nil, err
	}

	m.log.Info("Recovery finalized",
		slog.String("owner", owner.String()),
		slog.String("temporaryIdentity", temporaryIdentity.String()),
		slog.Time("expiresAt", grant.ExpiresAt))

	return grant, nil
}

// Reset deletes the owner's session unconditionally, regardless of its
// status. Resetting an owner without a session is a no-op. Owner
// authorization is enforced by the caller.
func (m *Machine) Reset(owner interfaces.Identity) error {
	if err := m.sessions.DeleteSession(owner); err != nil {
		return err
	}

	m.log.Info("Recovery session reset", slog.String("owner", owner.String()))

	return nil
}

// CollectRecoveryData returns the session, the resolved key shares for each
// collected share ID, and the owner's public recovery data.
//
// The requester must be in the session's approval set (ErrNotApproved).
// Collected share IDs that no longer resolve are silently skipped.
func (m *Machine) CollectRecoveryData(requester, owner interfaces.Identity) (*interfaces.RecoveryData, error) {
	session, err := m.sessions.GetSession(owner)
	if err != nil {
		return nil, err
	}
	if !session.HasApproved(requester) {
		return nil, interfaces.ErrNotApproved
	}

	shares := make([]*interfaces.KeyShare, 0, len(session.CollectedShares))
	for _, id := range session.CollectedShares {
		share, err := m.shares.GetShare(id)
		if err != nil {
			continue
		}
		shares = append(shares, share)
	}

	profile, err := m.profiles.GetProfile(owner)
	if err != nil {
		return nil, err
	}

	return &interfaces.RecoveryData{
		Session:            session,
		Shares:             shares,
		PublicRecoveryData: profile.PublicRecoveryData,
	}, nil
}

// guardianHoldsShare reports whether the guardian currently holds a share
// for the owner.
func (m *Machine) guardianHoldsShare(owner, guardian interfaces.Identity) (bool, error) {
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
