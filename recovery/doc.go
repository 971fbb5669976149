// Package recovery implements the threshold recovery flow: the per-owner
// session state machine, the one-time access grant issuer, and the identity
// resolver that lets a valid grant holder transparently act as the original
// owner.
//
// # Session State Machine
//
// A session moves through these statuses:
//
//	requested, in_progress, approval_complete, shares_collected, completed, failed
//
// Transitions are driven by guardian approvals and share submissions:
//
//   - Initiate creates a fresh session in requested, unconditionally
//     discarding any prior session for the owner.
//   - Approve appends a guardian to the approval set. When distinct
//     approvals reach the required-share threshold the status becomes
//     approval_complete; partial approvals never change the status on
//     their own.
//   - SubmitShare appends a collected share. It is rejected while the
//     session is still requested (or already completed or failed). When
//     distinct shares reach the threshold the status becomes
//     shares_collected, otherwise in_progress.
//   - Finalize requires shares_collected, issues the access grant and
//     moves the session to completed.
//   - Reset deletes the session unconditionally, whatever its status.
//
// The failed status is declared but currently has no producing transition;
// Reset is the only escape hatch. Transitions are monotonic forward apart
// from Reset.
//
// # Access Grants
//
// Finalize issues a grant binding a caller-chosen temporary identity to the
// owner, expiring 30 days after issuance. A grant is consumed exactly once
// by ActivateRecoveredAccount, which atomically appends the new device to
// the owner's profile and marks the grant used. Expiry is a passive
// comparison at read time; grants are never deleted.
//
// # Identity Resolution
//
// Resolver.Resolve maps a temporary identity holding a live grant to the
// original owner and leaves every other identity unchanged. It is consulted
// before every owner-scoped operation and never mutates grant state.
package recovery
