// Package service composes the recovery system's components behind a single
// facade that every caller — HTTP handlers, collaborators, tests — goes
// through. It performs identity resolution before each owner-scoped
// operation and serializes all operations touching one owner's state
// bundle (profile, shares, session, grants) while letting operations on
// different owners proceed in parallel.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/guardial/account-recovery-backend/account"
	"github.com/guardial/account-recovery-backend/guardian"
	"github.com/guardial/account-recovery-backend/interfaces"
	"github.com/guardial/account-recovery-backend/recovery"
	"github.com/guardial/account-recovery-backend/storage"
)

// Service is the composition facade over the recovery core.
//
// Each operation resolves the caller's identity first, as a distinct step
// that completes (or is cancelled) before the substantive work, then runs
// to completion under the owner's lock so no other operation observes a
// partially applied mutation.
type Service struct {
	state     *storage.State
	accounts  *account.Manager
	guardians *guardian.Manager
	machine   *recovery.Machine
	issuer    *recovery.Issuer
	resolver  *recovery.Resolver
	log       *slog.Logger

	// snapMu lets operations proceed concurrently while Snapshot and
	// Restore take exclusive access for a cross-collection-consistent view.
	snapMu sync.RWMutex

	locksMu sync.Mutex
	locks   map[interfaces.Identity]*sync.Mutex
}

// New creates a service over the given state bundle.
func New(state *storage.State, log *slog.Logger) *Service {
	return &Service{
		state:     state,
		accounts:  account.NewManager(state, log),
		guardians: guardian.NewManager(state, state, state, log),
		machine:   recovery.NewMachine(state, state, state, state, log),
		issuer:    recovery.NewIssuer(state, state, log),
		resolver:  recovery.NewResolver(state),
		log:       log,
		locks:     make(map[interfaces.Identity]*sync.Mutex),
	}
}

// Resolve maps the caller to the effective identity it should act as. It is
// exported for out-of-scope collaborators (the note vault, the device
// registry) that must consult the resolver before their own keyed CRUD.
func (s *Service) Resolve(ctx context.Context, caller interfaces.Identity) (interfaces.Identity, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.resolver.Resolve(caller), nil
}

// CreateProfile creates the caller's recovery profile with a k-of-n policy
// and a single initial device.
func (s *Service) CreateProfile(ctx context.Context, caller interfaces.Identity, total, required int, initialDevice interfaces.DeviceRecord) (*interfaces.UserProfile, error) {
	owner, err := s.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	defer s.lockOwner(owner)()

	return s.accounts.CreateProfile(owner, total, required, initialDevice)
}

// GetProfile retrieves the caller's profile.
func (s *Service) GetProfile(ctx context.Context, caller interfaces.Identity) (*interfaces.UserProfile, error) {
	owner, err := s.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	defer s.lockOwner(owner)()

	return s.accounts.GetProfile(owner)
}

// SetPublicRecoveryData overwrites the caller's public recovery blob.
func (s *Service) SetPublicRecoveryData(ctx context.Context, caller interfaces.Identity, blob []byte) error {
	owner, err := s.Resolve(ctx, caller)
	if err != nil {
		return err
	}
	defer s.lockOwner(owner)()

	return s.accounts.SetPublicRecoveryData(owner, blob)
}

// ManageGuardian applies a guardian action (add, remove, replace) for the
// caller's account.
func (s *Service) ManageGuardian(ctx context.Context, caller, g interfaces.Identity, action interfaces.GuardianAction) error {
	owner, err := s.Resolve(ctx, caller)
	if err != nil {
		return err
	}
	defer s.lockOwner(owner)()

	return s.guardians.Manage(owner, g, action)
}

// Guardians lists the caller's guardians with their approval state in the
// live recovery session, if any.
func (s *Service) Guardians(ctx context.Context, caller interfaces.Identity) ([]interfaces.GuardianStatus, error) {
	owner, err := s.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	defer s.lockOwner(owner)()

	return s.guardians.GuardiansOf(owner)
}

// InitiateRecovery starts a fresh recovery session for the named owner.
// The initiator is typically a new device that only knows the owner's
// identity; no prior authorization is required beyond transport auth.
func (s *Service) InitiateRecovery(ctx context.Context, owner interfaces.Identity) (*interfaces.RecoverySession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lockOwner(owner)()

	return s.machine.Initiate(owner)
}

// ApproveRecovery records the calling guardian's approval of the owner's
// live session.
func (s *Service) ApproveRecovery(ctx context.Context, caller, owner interfaces.Identity) (*interfaces.RecoverySession, error) {
	g, err := s.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	defer s.lockOwner(owner)()

	return s.machine.Approve(g, owner)
}

// SubmitRecoveryShare records a collected share submitted by the calling
// guardian for the owner's live session.
func (s *Service) SubmitRecoveryShare(ctx context.Context, caller, owner interfaces.Identity, shareID interfaces.ShareID) (*interfaces.RecoverySession, error) {
	g, err := s.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	defer s.lockOwner(owner)()

	return s.machine.SubmitShare(g, owner, shareID)
}

// FinalizeRecovery issues the one-time access grant binding the temporary
// identity to the owner and completes the session.
func (s *Service) FinalizeRecovery(ctx context.Context, owner, temporaryIdentity interfaces.Identity, encryptedAccessKey []byte) (*interfaces.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lockOwner(owner)()

	return s.machine.Finalize(owner, temporaryIdentity, encryptedAccessKey)
}

// ResetRecovery deletes the owner's session unconditionally. Only the owner
// (or a valid grant holder resolving to the owner) may reset.
func (s *Service) ResetRecovery(ctx context.Context, caller, owner interfaces.Identity) error {
	effective, err := s.Resolve(ctx, caller)
	if err != nil {
		return err
	}
	if effective != owner {
		return interfaces.ErrNotOwner
	}
	defer s.lockOwner(owner)()

	return s.machine.Reset(owner)
}

// CollectRecoveryData returns the owner's session, the resolved collected
// shares and the public recovery data to an approved guardian.
func (s *Service) CollectRecoveryData(ctx context.Context, caller, owner interfaces.Identity) (*interfaces.RecoveryData, error) {
	requester, err := s.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	defer s.lockOwner(owner)()

	return s.machine.CollectRecoveryData(requester, owner)
}

// ActivateRecoveredAccount consumes the caller's grant, registering the new
// device on the original owner's profile. The grant mark-used and device
// append happen under the owner's lock, so concurrent activation attempts
// serialize and the second one fails.
func (s *Service) ActivateRecoveredAccount(ctx context.Context, caller, original interfaces.Identity, newDevice interfaces.DeviceRecord) (*interfaces.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lockOwner(original)()

	return s.issuer.Activate(caller, original, newDevice)
}

// GetAccessKey returns the encrypted access key of the caller's grant.
func (s *Service) GetAccessKey(ctx context.Context, caller interfaces.Identity) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The grant is keyed by the caller itself; resolution would substitute
	// the owner and lose the key's address.
	return s.issuer.AccessKey(caller)
}

// NoteStore exposes the notes collection for the external note vault.
func (s *Service) NoteStore() interfaces.NoteStore {
	return s.state
}

// Snapshot serializes the five persisted collections. It waits for all
// in-flight operations to finish and blocks new ones for the duration, so
// the snapshot is consistent across collections.
func (s *Service) Snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	snap, err := s.state.Snapshot()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces all collections with a previously serialized snapshot.
func (s *Service) Restore(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	var snap interfaces.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to deserialize snapshot: %w", err)
	}
	return s.state.Restore(&snap)
}

// lockOwner acquires the per-owner mutex (and a shared hold against
// snapshots) and returns the corresponding unlock.
func (s *Service) lockOwner(owner interfaces.Identity) func() {
	s.snapMu.RLock()

	s.locksMu.Lock()
	mu, ok := s.locks[owner]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[owner] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return func() {
		mu.Unlock()
		s.snapMu.RUnlock()
	}
}
