// Package interfaces defines the core types and contracts for the guardian
// recovery system. It provides the shared vocabulary between components
// without implementation details.
//
// # System Model
//
// An account owner escrows the ability to recover access through a set of
// trusted guardians. Each guardian holds an opaque encrypted share of a
// recovery secret. Once a threshold number of guardians approve a recovery
// session and submit their shares, a one-time, time-boxed access grant is
// issued that lets a new identity take over the account.
//
// The core never performs cryptography on share contents. Shares are opaque
// blobs bound to a (guardian, owner) pair; secret splitting and
// reconstruction happen entirely outside this system.
//
// # Identities
//
// Identity is an opaque, already-authenticated principal handle. The
// surrounding transport layer is responsible for verifying credentials;
// this core only compares identities for equality and checks grant
// membership.
//
// # Stores
//
// Persisted state is five keyed collections, each behind a small store
// interface:
//
//   - profiles by owner identity (ProfileStore)
//   - key shares by share ID (ShareStore)
//   - recovery sessions by owner identity, one slot per owner (SessionStore)
//   - access grants by temporary identity (GrantStore)
//   - notes by (owner identity, note ID) (NoteStore, external collaborator)
//
// Stores return deep copies; callers mutate a copy and write it back. The
// Snapshotter contract provides lossless structural round-trip of all five
// collections across process restarts.
//
// # Errors
//
// All failures are explicit error values built over six sentinel kinds:
// ErrValidation, ErrNotFound, ErrState, ErrAuthorization, ErrAlreadyDone
// and ErrExpired. Callers discriminate with errors.Is.
package interfaces
