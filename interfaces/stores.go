package interfaces

import "context"

// ProfileStore persists user profiles keyed by owner identity. Profiles are
// never deleted.
type ProfileStore interface {
	// GetProfile retrieves a profile. Returns ErrProfileNotFound if absent.
	GetProfile(owner Identity) (*UserProfile, error)

	// PutProfile creates or overwrites a profile.
	PutProfile(profile *UserProfile) error
}

// ShareStore persists key shares keyed by share ID.
type ShareStore interface {
	// GetShare retrieves a share. Returns ErrShareNotFound if absent.
	GetShare(id ShareID) (*KeyShare, error)

	// PutShare creates or overwrites a share.
	PutShare(share *KeyShare) error

	// DeleteShare removes a share. Deleting an absent share is a no-op.
	DeleteShare(id ShareID) error

	// SharesByOwner lists an owner's shares ordered by share ID.
	SharesByOwner(owner Identity) ([]*KeyShare, error)
}

// SessionStore persists recovery sessions, a single slot per owner.
type SessionStore interface {
	// GetSession retrieves the owner's live session. Returns
	// ErrSessionNotFound if absent.
	GetSession(owner Identity) (*RecoverySession, error)

	// PutSession creates or overwrites the owner's session.
	PutSession(session *RecoverySession) error

	// DeleteSession removes the owner's session. Deleting an absent
	// session is a no-op.
	DeleteSession(owner Identity) error
}

// GrantStore persists access grants keyed by temporary identity. Grants are
// never deleted; expiry is evaluated by readers.
type GrantStore interface {
	// GetGrant retrieves a grant. Returns ErrGrantNotFound if absent.
	GetGrant(temporary Identity) (*AccessGrant, error)

	// PutGrant creates or overwrites a grant.
	PutGrant(grant *AccessGrant) error
}

// NoteStore persists opaque note blobs keyed by (owner, note ID). The note
// vault's CRUD logic is an external collaborator; the store is defined here
// so its collection participates in snapshots.
type NoteStore interface {
	// GetNote retrieves a note blob. Returns ErrNoteNotFound if absent.
	GetNote(owner Identity, id NoteID) ([]byte, error)

	// PutNote creates or overwrites a note blob.
	PutNote(owner Identity, id NoteID, blob []byte) error

	// DeleteNote removes a note. Returns ErrNoteNotFound if absent.
	DeleteNote(owner Identity, id NoteID) error

	// ListNotes lists an owner's note IDs in lexical order.
	ListNotes(owner Identity) ([]NoteID, error)
}

// NoteRecord is a single note entry in a snapshot.
type NoteRecord struct {
	Owner Identity `json:"owner"`
	ID    NoteID   `json:"id"`
	Blob  []byte   `json:"blob"`
}

// Snapshot is a structural copy of the five persisted collections. It
// round-trips losslessly through JSON; no schema versioning is defined
// beyond the exact structure.
type Snapshot struct {
	Profiles []*UserProfile     `json:"profiles"`
	Shares   []*KeyShare        `json:"shares"`
	Sessions []*RecoverySession `json:"sessions"`
	Grants   []*AccessGrant     `json:"grants"`
	Notes    []NoteRecord       `json:"notes"`
}

// Snapshotter captures and restores the full persisted state. The host
// invokes these at controlled checkpoints; there are no implicit lifecycle
// hooks.
type Snapshotter interface {
	// Snapshot returns a deep copy of all collections in deterministic order.
	Snapshot() (*Snapshot, error)

	// Restore replaces all collections with the snapshot's contents.
	Restore(snapshot *Snapshot) error
}

// IdentityResolver maps a calling identity to the effective identity it
// should act as, based on active recovery grants. Resolution never mutates
// grant state.
type IdentityResolver interface {
	// Resolve returns the grant's original identity when the caller holds a
	// live, unused, unexpired grant, and the caller unchanged otherwise.
	Resolve(caller Identity) Identity
}

// SnapshotBackend stores serialized snapshots in a single named slot.
type SnapshotBackend interface {
	// Save overwrites the stored snapshot.
	Save(ctx context.Context, data []byte) error

	// Load retrieves the stored snapshot. Returns ErrSnapshotNotFound when
	// nothing has been saved.
	Load(ctx context.Context) ([]byte, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}
