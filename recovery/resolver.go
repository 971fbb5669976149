package recovery

import (
	"time"

	"github.com/guardial/account-recovery-backend/interfaces"
)

// Resolver implements interfaces.IdentityResolver over the grant store.
type Resolver struct {
	grants interfaces.GrantStore

	now func() time.Time
}

// NewResolver creates an identity resolver.
func NewResolver(grants interfaces.GrantStore) *Resolver {
	return &Resolver{grants: grants, now: time.Now}
}

// Resolve returns the grant's original identity when the caller holds a
// live, unused, unexpired grant. In every other case — no grant, grant
// already used, grant expired — the caller is returned unchanged with no
// error. Resolution never mutates grant state; marking a grant used is a
// distinct step performed only by activation.
func (r *Resolver) Resolve(caller interfaces.Identity) interfaces.Identity {
	grant, err := r.grants.GetGrant(caller)
	if err != nil {
		return caller
	}
	if grant.Used || grant.Expired(r.now()) {
		return caller
	}
	return grant.OriginalIdentity
}
