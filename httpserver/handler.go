package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guardial/account-recovery-backend/interfaces"
	"github.com/guardial/account-recovery-backend/metrics"
	"github.com/guardial/account-recovery-backend/notevault"
	"github.com/guardial/account-recovery-backend/service"
)

// IdentityHeader carries the caller's already-authenticated identity. The
// surrounding transport/auth layer is responsible for verifying it before
// the request reaches this service.
const IdentityHeader = "X-Identity"

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Handler processes HTTP requests for the recovery service.
type Handler struct {
	svc   *service.Service
	notes *notevault.Vault
	log   *slog.Logger
}

// NewHandler creates an HTTP request handler over the service facade.
func NewHandler(svc *service.Service, notes *notevault.Vault, log *slog.Logger) *Handler {
	return &Handler{svc: svc, notes: notes, log: log}
}

// caller extracts the authenticated identity from the request headers.
func (h *Handler) caller(r *http.Request) (interfaces.Identity, error) {
	id := interfaces.Identity(r.Header.Get(IdentityHeader))
	if err := id.Validate(); err != nil {
		return "", fmt.Errorf("%w: missing %s header", interfaces.ErrAuthorization, IdentityHeader)
	}
	return id, nil
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", interfaces.ErrValidation, err)
	}
	return nil
}

// writeJSON writes v as a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// writeError maps a taxonomy error to an HTTP status and JSON error body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"

	switch {
	case errors.Is(err, interfaces.ErrValidation):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, interfaces.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, interfaces.ErrAuthorization):
		status, kind = http.StatusForbidden, "authorization"
	case errors.Is(err, interfaces.ErrState):
		status, kind = http.StatusConflict, "state"
	case errors.Is(err, interfaces.ErrAlreadyDone):
		status, kind = http.StatusConflict, "already_done"
	case errors.Is(err, interfaces.ErrExpired):
		status, kind = http.StatusGone, "expired"
	}

	metrics.RequestErrors.WithLabelValues(kind).Inc()
	h.writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
}

// CreateProfileRequest is the body for POST /api/profile.
type CreateProfileRequest struct {
	TotalGuardians int                     `json:"total_guardians"`
	RequiredShares int                     `json:"required_shares"`
	Device         interfaces.DeviceRecord `json:"device"`
}

// HandleCreateProfile creates the caller's recovery profile.
//
// Endpoint: POST /api/profile
func (h *Handler) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req CreateProfileRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	profile, err := h.svc.CreateProfile(r.Context(), caller, req.TotalGuardians, req.RequiredShares, req.Device)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, profile)
}

// HandleGetProfile returns the caller's profile.
//
// Endpoint: GET /api/profile
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	profile, err := h.svc.GetProfile(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

// SetRecoveryDataRequest is the body for PUT /api/profile/recovery-data.
type SetRecoveryDataRequest struct {
	Data []byte `json:"data"`
}

// HandleSetRecoveryData overwrites the caller's public recovery blob.
//
// Endpoint: PUT /api/profile/recovery-data
func (h *Handler) HandleSetRecoveryData(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req SetRecoveryDataRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.svc.SetPublicRecoveryData(r.Context(), caller, req.Data); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ManageGuardianRequest is the body for POST /api/guardians.
type ManageGuardianRequest struct {
	Guardian         interfaces.Identity `json:"guardian"`
	Action           string              `json:"action"` // "add", "remove" or "replace"
	OldGuardian      interfaces.Identity `json:"old_guardian,omitempty"`
	ShareID          interfaces.ShareID  `json:"share_id,omitempty"`
	EncryptedPayload []byte              `json:"encrypted_payload,omitempty"`
}

// HandleManageGuardian applies a guardian mutation for the caller.
//
// Endpoint: POST /api/guardians
func (h *Handler) HandleManageGuardian(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req ManageGuardianRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	var action interfaces.GuardianAction
	switch req.Action {
	case "add":
		action = interfaces.AddGuardian{ShareID: req.ShareID, EncryptedPayload: req.EncryptedPayload}
	case "remove":
		action = interfaces.RemoveGuardian{}
	case "replace":
		action = interfaces.ReplaceGuardian{Old: req.OldGuardian, ShareID: req.ShareID, EncryptedPayload: req.EncryptedPayload}
	default:
		h.writeError(w, fmt.Errorf("%w: unknown guardian action %q", interfaces.ErrValidation, req.Action))
		return
	}

	if err := h.svc.ManageGuardian(r.Context(), caller, req.Guardian, action); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleListGuardians lists the caller's guardians with approval state.
//
// Endpoint: GET /api/guardians
func (h *Handler) HandleListGuardians(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	statuses, err := h.svc.Guardians(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"guardians": statuses})
}

// HandleInitiateRecovery starts a recovery session for the owner in the URL.
//
// Endpoint: POST /api/recovery/{owner}/initiate
func (h *Handler) HandleInitiateRecovery(w http.ResponseWriter, r *http.Request) {
	owner := interfaces.Identity(chi.URLParam(r, "owner"))
	if err := owner.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	session, err := h.svc.InitiateRecovery(r.Context(), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metrics.RecoverySessionsInitiated.Inc()
	h.writeJSON(w, http.StatusCreated, session)
}

// HandleApproveRecovery records the calling guardian's approval.
//
// Endpoint: POST /api/recovery/{owner}/approve
func (h *Handler) HandleApproveRecovery(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	owner := interfaces.Identity(chi.URLParam(r, "owner"))

	session, err := h.svc.ApproveRecovery(r.Context(), caller, owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// SubmitShareRequest is the body for POST /api/recovery/{owner}/shares.
type SubmitShareRequest struct {
	ShareID interfaces.ShareID `json:"share_id"`
}

// HandleSubmitShare records a collected share from the calling guardian.
//
// Endpoint: POST /api/recovery/{owner}/shares
func (h *Handler) HandleSubmitShare(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	owner := interfaces.Identity(chi.URLParam(r, "owner"))

	var req SubmitShareRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	session, err := h.svc.SubmitRecoveryShare(r.Context(), caller, owner, req.ShareID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// FinalizeRequest is the body for POST /api/recovery/{owner}/finalize.
type FinalizeRequest struct {
	TemporaryIdentity  interfaces.Identity `json:"temporary_identity"`
	EncryptedAccessKey []byte              `json:"encrypted_access_key"`
}

// HandleFinalizeRecovery issues the access grant for a ready session.
//
// Endpoint: POST /api/recovery/{owner}/finalize
func (h *Handler) HandleFinalizeRecovery(w http.ResponseWriter, r *http.Request) {
	owner := interfaces.Identity(chi.URLParam(r, "owner"))
	if err := owner.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	var req FinalizeRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	grant, err := h.svc.FinalizeRecovery(r.Context(), owner, req.TemporaryIdentity, req.EncryptedAccessKey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, grant)
}

// HandleResetRecovery deletes the owner's session. Owner-only.
//
// Endpoint: POST /api/recovery/{owner}/reset
func (h *Handler) HandleResetRecovery(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	owner := interfaces.Identity(chi.URLParam(r, "owner"))

	if err := h.svc.ResetRecovery(r.Context(), caller, owner); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCollectRecoveryData returns the recovery bundle to an approved
// guardian.
//
// Endpoint: GET /api/recovery/{owner}/data
func (h *Handler) HandleCollectRecoveryData(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	owner := interfaces.Identity(chi.URLParam(r, "owner"))

	data, err := h.svc.CollectRecoveryData(r.Context(), caller, owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, data)
}

// ActivateRequest is the body for POST /api/recovery/activate.
type ActivateRequest struct {
	OriginalIdentity interfaces.Identity     `json:"original_identity"`
	Device           interfaces.DeviceRecord `json:"device"`
}

// HandleActivate consumes the caller's access grant, registering the new
// device on the recovered account.
//
// Endpoint: POST /api/recovery/activate
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req ActivateRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	grant, err := h.svc.ActivateRecoveredAccount(r.Context(), caller, req.OriginalIdentity, req.Device)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metrics.GrantsActivated.Inc()
	h.writeJSON(w, http.StatusOK, grant)
}

// HandleGetAccessKey returns the encrypted access key of the caller's grant.
//
// Endpoint: GET /api/recovery/access-key
func (h *Handler) HandleGetAccessKey(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	key, err := h.svc.GetAccessKey(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]byte{"encrypted_access_key": key})
}

// PutNoteRequest is the body for PUT /api/notes/{note_id}.
type PutNoteRequest struct {
	Blob []byte `json:"blob"`
}

// HandlePutNote stores an opaque note blob for the resolved caller.
//
// Endpoint: PUT /api/notes/{note_id}
func (h *Handler) HandlePutNote(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	noteID := interfaces.NoteID(chi.URLParam(r, "note_id"))

	var req PutNoteRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.notes.Put(r.Context(), caller, noteID, req.Blob); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleGetNote retrieves a note blob for the resolved caller.
//
// Endpoint: GET /api/notes/{note_id}
func (h *Handler) HandleGetNote(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	noteID := interfaces.NoteID(chi.URLParam(r, "note_id"))

	blob, err := h.notes.Get(r.Context(), caller, noteID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]byte{"blob": blob})
}

// HandleDeleteNote removes a note for the resolved caller.
//
// Endpoint: DELETE /api/notes/{note_id}
func (h *Handler) HandleDeleteNote(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	noteID := interfaces.NoteID(chi.URLParam(r, "note_id"))

	if err := h.notes.Delete(r.Context(), caller, noteID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleListNotes lists note IDs for the resolved caller.
//
// Endpoint: GET /api/notes
func (h *Handler) HandleListNotes(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ids, err := h.notes.List(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"notes": ids})
}
