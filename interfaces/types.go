package interfaces

import (
	"encoding/json"
	"fmt"
	"time"
)

// Identity is an opaque authenticated principal handle. It has no internal
// structure; the transport layer is assumed to have verified it before any
// operation reaches this core.
type Identity string

// String returns the identity as a plain string.
func (id Identity) String() string {
	return string(id)
}

// Validate checks the identity is non-empty.
func (id Identity) Validate() error {
	if id == "" {
		return fmt.Errorf("%w: empty identity", ErrValidation)
	}
	return nil
}

// ShareID uniquely identifies a key share.
type ShareID string

// String returns the share ID as a plain string.
func (id ShareID) String() string {
	return string(id)
}

// NoteID identifies a note blob within an owner's note collection.
type NoteID string

// DeviceRecord is a single entry in a profile's ordered device list.
// Device management beyond what recovery flows append is handled by an
// external collaborator; this core only owns the field.
type DeviceRecord struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	AddedAt time.Time `json:"added_at"`
}

// UserProfile holds the per-identity recovery configuration.
//
// TotalGuardians and RequiredShares form the k-of-n policy; the invariant
// 2 <= RequiredShares <= TotalGuardians holds for every stored profile.
// RecoveryEnabled is recomputed by guardian mutations: an Add compares the
// share count against TotalGuardians, a Remove compares the remaining count
// against RequiredShares, and a Replace leaves the flag untouched.
type UserProfile struct {
	Identity           Identity       `json:"identity"`
	TotalGuardians     int            `json:"total_guardians"`
	RequiredShares     int            `json:"required_shares"`
	RecoveryEnabled    bool           `json:"recovery_enabled"`
	PublicRecoveryData []byte         `json:"public_recovery_data,omitempty"`
	Devices            []DeviceRecord `json:"devices"`
}

// Clone returns a deep copy of the profile.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.PublicRecoveryData != nil {
		cp.PublicRecoveryData = append([]byte(nil), p.PublicRecoveryData...)
	}
	if p.Devices != nil {
		cp.Devices = append([]DeviceRecord(nil), p.Devices...)
	}
	return &cp
}

// KeyShare binds a guardian to an owner via an opaque encrypted payload.
// The payload is never inspected by this core.
type KeyShare struct {
	ID               ShareID  `json:"id"`
	EncryptedPayload []byte   `json:"encrypted_payload"`
	Guardian         Identity `json:"guardian"`
	Owner            Identity `json:"owner"`
}

// Clone returns a deep copy of the share.
func (s *KeyShare) Clone() *KeyShare {
	if s == nil {
		return nil
	}
	cp := *s
	if s.EncryptedPayload != nil {
		cp.EncryptedPayload = append([]byte(nil), s.EncryptedPayload...)
	}
	return &cp
}

// SessionStatus is the state of a recovery session.
type SessionStatus int

const (
	// StatusRequested is the initial state of a freshly initiated session.
	StatusRequested SessionStatus = iota

	// StatusInProgress indicates at least one share has been submitted but
	// the threshold has not been reached.
	StatusInProgress

	// StatusApprovalComplete indicates the required number of distinct
	// guardian approvals has been reached.
	StatusApprovalComplete

	// StatusSharesCollected indicates the required number of distinct
	// shares has been collected; the session is ready to finalize.
	StatusSharesCollected

	// StatusCompleted indicates an access grant has been issued.
	StatusCompleted

	// StatusFailed is a declared terminal state. No transition currently
	// produces it; it is retained for callers that persist or display
	// session state.
	StatusFailed
)

var statusNames = map[SessionStatus]string{
	StatusRequested:        "requested",
	StatusInProgress:       "in_progress",
	StatusApprovalComplete: "approval_complete",
	StatusSharesCollected:  "shares_collected",
	StatusCompleted:        "completed",
	StatusFailed:           "failed",
}

// String returns the status name.
func (s SessionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON encodes the status as its string name.
func (s SessionStatus) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown session status %d", int(s))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a status from its string name.
func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for status, n := range statusNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown session status %q", name)
}

// RecoverySession is the per-owner recovery state. At most one live session
// exists per owner; a new initiation overwrites any prior session.
//
// ApprovedGuardians and CollectedShares are append-only within a session
// and preserve insertion order.
type RecoverySession struct {
	Owner             Identity      `json:"owner"`
	RequestedAt       time.Time     `json:"requested_at"`
	Status            SessionStatus `json:"status"`
	ApprovedGuardians []Identity    `json:"approved_guardians"`
	CollectedShares   []ShareID     `json:"collected_shares"`
	TemporaryIdentity Identity      `json:"temporary_identity,omitempty"`
}

// HasApproved reports whether the guardian already approved this session.
func (s *RecoverySession) HasApproved(guardian Identity) bool {
	for _, g := range s.ApprovedGuardians {
		if g == guardian {
			return true
		}
	}
	return false
}

// HasCollected reports whether the share was already submitted.
func (s *RecoverySession) HasCollected(id ShareID) bool {
	for _, sid := range s.CollectedShares {
		if sid == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the session.
func (s *RecoverySession) Clone() *RecoverySession {
	if s == nil {
		return nil
	}
	cp := *s
	if s.ApprovedGuardians != nil {
		cp.ApprovedGuardians = append([]Identity(nil), s.ApprovedGuardians...)
	}
	if s.CollectedShares != nil {
		cp.CollectedShares = append([]ShareID(nil), s.CollectedShares...)
	}
	return &cp
}

// AccessGrant is a one-time, time-boxed authorization binding a temporary
// identity to the original owner. Grants are never deleted; expiry is a
// passive comparison at read time and Used moves false to true exactly once.
type AccessGrant struct {
	TemporaryIdentity  Identity  `json:"temporary_identity"`
	OriginalIdentity   Identity  `json:"original_identity"`
	EncryptedAccessKey []byte    `json:"encrypted_access_key"`
	ExpiresAt          time.Time `json:"expires_at"`
	Used               bool      `json:"used"`
}

// Expired reports whether the grant is past its expiry at the given time.
func (g *AccessGrant) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// Clone returns a deep copy of the grant.
func (g *AccessGrant) Clone() *AccessGrant {
	if g == nil {
		return nil
	}
	cp := *g
	if g.EncryptedAccessKey != nil {
		cp.EncryptedAccessKey = append([]byte(nil), g.EncryptedAccessKey...)
	}
	return &cp
}

// GuardianAction is the variant type for guardian mutations. Implementations
// are AddGuardian, RemoveGuardian and ReplaceGuardian; consumers dispatch
// with a type switch.
type GuardianAction interface {
	isGuardianAction()
}

// AddGuardian inserts a new key share for the guardian.
type AddGuardian struct {
	ShareID          ShareID
	EncryptedPayload []byte
}

// RemoveGuardian deletes every share the guardian holds for the owner.
type RemoveGuardian struct{}

// ReplaceGuardian deletes the old guardian's shares and inserts a share for
// the new guardian in a single operation.
type ReplaceGuardian struct {
	Old              Identity
	ShareID          ShareID
	EncryptedPayload []byte
}

func (AddGuardian) isGuardianAction()     {}
func (RemoveGuardian) isGuardianAction()  {}
func (ReplaceGuardian) isGuardianAction() {}

// GuardianStatus pairs a guardian with their approval state in the owner's
// live recovery session, if any.
type GuardianStatus struct {
	Guardian    Identity `json:"guardian"`
	HasApproved bool     `json:"has_approved"`
}

// RecoveryData is the bundle returned to an approved guardian assisting a
// recovery: the session, the resolved shares collected so far, and the
// owner's public recovery data.
type RecoveryData struct {
	Session            *RecoverySession `json:"session"`
	Shares             []*KeyShare      `json:"shares"`
	PublicRecoveryData []byte           `json:"public_recovery_data,omitempty"`
}
