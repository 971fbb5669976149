// Package notevault is the encrypted note store collaborator. Its CRUD
// logic is deliberately simple bookkeeping over opaque blobs; what matters
// to the recovery core is the boundary contract: every operation consults
// the identity resolver first, so a valid recovery grant holder
// transparently reads and writes the original owner's notes.
package notevault

import (
	"context"
	"log/slog"

	"github.com/guardial/account-recovery-backend/interfaces"
)

// Vault provides keyed note CRUD scoped to the resolved owner identity.
type Vault struct {
	notes    interfaces.NoteStore
	resolver interfaces.IdentityResolver
	log      *slog.Logger
}

// New creates a note vault over the given store and resolver.
func New(notes interfaces.NoteStore, resolver interfaces.IdentityResolver, log *slog.Logger) *Vault {
	return &Vault{notes: notes, resolver: resolver, log: log}
}

// Put creates or overwrites the caller's note under the given ID.
func (v *Vault) Put(ctx context.Context, caller interfaces.Identity, id interfaces.NoteID, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owner := v.resolver.Resolve(caller)
	return v.notes.PutNote(owner, id, blob)
}

// Get retrieves the caller's note. Returns ErrNoteNotFound if absent.
func (v *Vault) Get(ctx context.Context, caller interfaces.Identity, id interfaces.NoteID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	owner := v.resolver.Resolve(caller)
	return v.notes.GetNote(owner, id)
}

// Delete removes the caller's note. Returns ErrNoteNotFound if absent.
func (v *Vault) Delete(ctx context.Context, caller interfaces.Identity, id interfaces.NoteID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owner := v.resolver.Resolve(caller)
	return v.notes.DeleteNote(owner, id)
}

// List lists the caller's note IDs in lexical order.
func (v *Vault) List(ctx context.Context, caller interfaces.Identity) ([]interfaces.NoteID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	owner := v.resolver.Resolve(caller)
	return v.notes.ListNotes(owner)
}
