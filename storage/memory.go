package storage

import (
	"sort"
	"sync"

	"github.com/guardial/account-recovery-backend/interfaces"
)

// State is the in-memory implementation of the five keyed collections. It
// implements interfaces.ProfileStore, ShareStore, SessionStore, GrantStore,
// NoteStore and Snapshotter.
//
// State is safe for concurrent use. Per-owner operation ordering is the
// responsibility of the service layer; the internal lock only protects map
// integrity.
type State struct {
	mu       sync.RWMutex
	profiles map[interfaces.Identity]*interfaces.UserProfile
	shares   map[interfaces.ShareID]*interfaces.KeyShare
	sessions map[interfaces.Identity]*interfaces.RecoverySession
	grants   map[interfaces.Identity]*interfaces.AccessGrant
	notes    map[interfaces.Identity]map[interfaces.NoteID][]byte
}

// NewState creates an empty state bundle.
func NewState() *State {
	return &State{
		profiles: make(map[interfaces.Identity]*interfaces.UserProfile),
		shares:   make(map[interfaces.ShareID]*interfaces.KeyShare),
		sessions: make(map[interfaces.Identity]*interfaces.RecoverySession),
		grants:   make(map[interfaces.Identity]*interfaces.AccessGrant),
		notes:    make(map[interfaces.Identity]map[interfaces.NoteID][]byte),
	}
}

// GetProfile retrieves a profile. Returns ErrProfileNotFound if absent.
func (s *State) GetProfile(owner interfaces.Identity) (*interfaces.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[owner]
	if !ok {
		return nil, interfaces.ErrProfileNotFound
	}
	return profile.Clone(), nil
}

// PutProfile creates or overwrites a profile.
func (s *State) PutProfile(profile *interfaces.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.Identity] = profile.Clone()
	return nil
}

// GetShare retrieves a share. Returns ErrShareNotFound if absent.
func (s *State) GetShare(id interfaces.ShareID) (*interfaces.KeyShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	share, ok := s.shares[id]
	if !ok {
		return nil, interfaces.ErrShareNotFound
	}
	return share.Clone(), nil
}

// PutShare creates or overwrites a share.
func (s *State) PutShare(share *interfaces.KeyShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shares[share.ID] = share.Clone()
	return nil
}

// DeleteShare removes a share. Deleting an absent share is a no-op.
func (s *State) DeleteShare(id interfaces.ShareID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.shares, id)
	return nil
}

// SharesByOwner lists an owner's shares ordered by share ID.
func (s *State) SharesByOwner(owner interfaces.Identity) ([]*interfaces.KeyShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var shares []*interfaces.KeyShare
	for _, share := range s.shares {
		if share.Owner == owner {
			shares = append(shares, share.Clone())
		}
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].ID < shares[j].ID })
	return shares, nil
}

// GetSession retrieves the owner's live session. Returns ErrSessionNotFound
// if absent.
func (s *State) GetSession(owner interfaces.Identity) (*interfaces.RecoverySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[owner]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// PutSession creates or overwrites the owner's session.
func (s *State) PutSession(session *interfaces.RecoverySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.Owner] = session.Clone()
	return nil
}

// DeleteSession removes the owner's session. Deleting an absent session is
// a no-op.
func (s *State) DeleteSession(owner interfaces.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, owner)
	return nil
}

// GetGrant retrieves a grant. Returns ErrGrantNotFound if absent.
func (s *State) GetGrant(temporary interfaces.Identity) (*interfaces.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[temporary]
	if !ok {
		return nil, interfaces.ErrGrantNotFound
	}
	return grant.Clone(), nil
}

// PutGrant creates or overwrites a grant.
func (s *State) PutGrant(grant *interfaces.AccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[grant.TemporaryIdentity] = grant.Clone()
	return nil
}

// GetNote retrieves a note blob. Returns ErrNoteNotFound if absent.
func (s *State) GetNote(owner interfaces.Identity, id interfaces.NoteID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.notes[owner][id]
	if !ok {
		return nil, interfaces.ErrNoteNotFound
	}
	return append([]byte(nil), blob...), nil
}

// PutNote creates or overwrites a note blob.
func (s *State) PutNote(owner interfaces.Identity, id interfaces.NoteID, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.notes[owner] == nil {
		s.notes[owner] = make(map[interfaces.NoteID][]byte)
	}
	s.notes[owner][id] = append([]byte(nil), blob...)
	return nil
}

// DeleteNote removes a note. Returns ErrNoteNotFound if absent.
func (s *State) DeleteNote(owner interfaces.Identity, id interfaces.NoteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[owner][id]; !ok {
		return interfaces.ErrNoteNotFound
	}
	delete(s.notes[owner], id)
	return nil
}

// ListNotes lists an owner's note IDs in lexical order.
func (s *State) ListNotes(owner interfaces.Identity) ([]interfaces.NoteID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []interfaces.NoteID
	for id := range s.notes[owner] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Snapshot returns a deep copy of all collections. Entries are ordered by
// their keys so repeated snapshots of identical state serialize identically.
func (s *State) Snapshot() (*interfaces.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &interfaces.Snapshot{}

	for _, owner := range sortedKeys(s.profiles) {
		snap.Profiles = append(snap.Profiles, s.profiles[owner].Clone())
	}
	for _, id := range sortedKeys(s.shares) {
		snap.Shares = append(snap.Shares, s.shares[id].Clone())
	}
	for _, owner := range sortedKeys(s.sessions) {
		snap.Sessions = append(snap.Sessions, s.sessions[owner].Clone())
	}
	for _, temp := range sortedKeys(s.grants) {
		snap.Grants = append(snap.Grants, s.grants[temp].Clone())
	}
	for _, owner := range sortedKeys(s.notes) {
		for _, id := range sortedKeys(s.notes[owner]) {
			snap.Notes = append(snap.Notes, interfaces.NoteRecord{
				Owner: owner,
				ID:    id,
				Blob:  append([]byte(nil), s.notes[owner][id]...),
			})
		}
	}

	return snap, nil
}

// Restore replaces all collections with the snapshot's contents.
func (s *State) Restore(snap *interfaces.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles = make(map[interfaces.Identity]*interfaces.UserProfile, len(snap.Profiles))
	for _, profile := range snap.Profiles {
		s.profiles[profile.Identity] = profile.Clone()
	}

	s.shares = make(map[interfaces.ShareID]*interfaces.KeyShare, len(snap.Shares))
	for _, share := range snap.Shares {
		s.shares[share.ID] = share.Clone()
	}

	s.sessions = make(map[interfaces.Identity]*interfaces.RecoverySession, len(snap.Sessions))
	for _, session := range snap.Sessions {
		s.sessions[session.Owner] = session.Clone()
	}

	s.grants = make(map[interfaces.Identity]*interfaces.AccessGrant, len(snap.Grants))
	for _, grant := range snap.Grants {
		s.grants[grant.TemporaryIdentity] = grant.Clone()
	}

	s.notes = make(map[interfaces.Identity]map[interfaces.NoteID][]byte)
	for _, note := range snap.Notes {
		if s.notes[note.Owner] == nil {
			s.notes[note.Owner] = make(map[interfaces.NoteID][]byte)
		}
		s.notes[note.Owner][note.ID] = append([]byte(nil), note.Blob...)
	}

	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
