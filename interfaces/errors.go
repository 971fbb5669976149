package interfaces

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every error returned by the core wraps exactly one
// of these; callers discriminate with errors.Is.
var (
	// ErrValidation indicates malformed or inconsistent input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a profile, session, share or grant is absent.
	ErrNotFound = errors.New("not found")

	// ErrState indicates the operation is invalid for the current session
	// status or account state.
	ErrState = errors.New("invalid state")

	// ErrAuthorization indicates the caller lacks the required role.
	ErrAuthorization = errors.New("not authorized")

	// ErrAlreadyDone indicates a duplicate approval, submission or grant use.
	ErrAlreadyDone = errors.New("already done")

	// ErrExpired indicates a grant past its expiry.
	ErrExpired = errors.New("expired")
)

// Specific errors, each wrapping its taxonomy kind.
var (
	// ErrInvalidThreshold is returned when a profile's k-of-n policy does
	// not satisfy 2 <= required <= total.
	ErrInvalidThreshold = fmt.Errorf("%w: threshold must satisfy 2 <= required shares <= total guardians", ErrValidation)

	// ErrSelfGuardian is returned when an owner names themselves guardian.
	ErrSelfGuardian = fmt.Errorf("%w: owner cannot be their own guardian", ErrValidation)

	// ErrMissingShareData is returned when an add or replace carries no
	// share ID or payload.
	ErrMissingShareData = fmt.Errorf("%w: guardian share requires an id and an encrypted payload", ErrValidation)

	// ErrInvalidShare is returned when a submitted share does not exist or
	// is not bound to exactly the submitting guardian and the owner.
	ErrInvalidShare = fmt.Errorf("%w: share is not bound to this guardian and owner", ErrValidation)

	// ErrProfileNotFound is returned when no profile exists for an identity.
	ErrProfileNotFound = fmt.Errorf("%w: profile", ErrNotFound)

	// ErrProfileExists is returned when creating a profile that already exists.
	ErrProfileExists = fmt.Errorf("%w: profile already exists", ErrAlreadyDone)

	// ErrSessionNotFound is returned when an owner has no live session.
	ErrSessionNotFound = fmt.Errorf("%w: recovery session", ErrNotFound)

	// ErrShareNotFound is returned when a share ID resolves to nothing.
	ErrShareNotFound = fmt.Errorf("%w: key share", ErrNotFound)

	// ErrGrantNotFound is returned when no grant is keyed by the caller.
	ErrGrantNotFound = fmt.Errorf("%w: access grant", ErrNotFound)

	// ErrNoteNotFound is returned when an owner has no note under the ID.
	ErrNoteNotFound = fmt.Errorf("%w: note", ErrNotFound)

	// ErrNotEligible is returned when recovery is initiated for an account
	// without a profile or with recovery disabled.
	ErrNotEligible = fmt.Errorf("%w: recovery is not enabled for this account", ErrState)

	// ErrWrongState is returned when a share is submitted while the session
	// status does not admit submissions.
	ErrWrongState = fmt.Errorf("%w: session status does not allow share submission", ErrState)

	// ErrNotReady is returned when finalizing before all required shares
	// have been collected.
	ErrNotReady = fmt.Errorf("%w: session has not collected the required shares", ErrState)

	// ErrNotGuardian is returned when the caller holds no share for the owner.
	ErrNotGuardian = fmt.Errorf("%w: caller holds no share for this account", ErrAuthorization)

	// ErrNotApproved is returned when a guardian acts on a session they have
	// not approved.
	ErrNotApproved = fmt.Errorf("%w: guardian has not approved this session", ErrAuthorization)

	// ErrNotOwner is returned when an owner-only operation is attempted by
	// another identity.
	ErrNotOwner = fmt.Errorf("%w: operation restricted to the account owner", ErrAuthorization)

	// ErrGrantMismatch is returned when a grant does not cover the claimed
	// original identity.
	ErrGrantMismatch = fmt.Errorf("%w: grant does not cover this account", ErrAuthorization)

	// ErrGrantUsed is returned when a consumed grant is activated again.
	ErrGrantUsed = fmt.Errorf("%w: access grant already used", ErrAlreadyDone)

	// ErrAlreadyApproved is returned on a repeated approval by one guardian.
	ErrAlreadyApproved = fmt.Errorf("%w: guardian already approved this session", ErrAlreadyDone)

	// ErrAlreadySubmitted is returned on a repeated submission of one share.
	ErrAlreadySubmitted = fmt.Errorf("%w: share already submitted", ErrAlreadyDone)

	// ErrGrantExpired is returned when a grant is past its expiry.
	ErrGrantExpired = fmt.Errorf("access grant %w", ErrExpired)
)

// ErrSnapshotNotFound is returned by snapshot backends when no snapshot has
// been saved yet. It is not part of the operation error taxonomy.
var ErrSnapshotNotFound = errors.New("snapshot not found")
