package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardial/account-recovery-backend/interfaces"
	"github.com/guardial/account-recovery-backend/notevault"
	"github.com/guardial/account-recovery-backend/recovery"
	"github.com/guardial/account-recovery-backend/service"
	"github.com/guardial/account-recovery-backend/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	state := storage.NewState()
	svc := service.New(state, log)
	notes := notevault.New(state, recovery.NewResolver(state), log)
	handler := NewHandler(svc, notes, log)

	srv, err := New(&HTTPServerConfig{
		ListenAddr:  "127.0.0.1:0",
		MetricsAddr: "",
		Log:         log,
	}, handler)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, identity string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if identity != "" {
		req.Header.Set(IdentityHeader, identity)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createProfile(t *testing.T, ts *httptest.Server, identity string) {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/profile", identity, map[string]interface{}{
		"total_guardians": 3,
		"required_shares": 2,
		"device":          map[string]interface{}{"id": "d1", "name": "phone"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func addGuardian(t *testing.T, ts *httptest.Server, owner, guardian, shareID string) {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/guardians", owner, map[string]interface{}{
		"guardian":          guardian,
		"action":            "add",
		"share_id":          shareID,
		"encrypted_payload": []byte("sealed"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleCreateProfile(t *testing.T) {
	ts := newTestServer(t)

	createProfile(t, ts, "alice")

	resp := doRequest(t, ts, http.MethodGet, "/api/profile", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var profile interfaces.UserProfile
	decodeBody(t, resp, &profile)
	assert.Equal(t, interfaces.Identity("alice"), profile.Identity)
	assert.Equal(t, 3, profile.TotalGuardians)
	assert.False(t, profile.RecoveryEnabled)
}

func TestMissingIdentityHeader(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, ts, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	createProfile(t, ts, "alice")

	t.Run("duplicate profile conflicts", func(t *testing.T) {
		resp := doRequest(t, ts, http.MethodPost, "/api/profile", "alice", map[string]interface{}{
			"total_guardians": 3,
			"required_shares": 2,
			"device":          map[string]interface{}{"id": "d1"},
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		var body map[string]string
		decodeBody(t, resp, &body)
		assert.Equal(t, "already_done", body["kind"])
	})

	t.Run("missing profile is 404", func(t *testing.T) {
		resp := doRequest(t, ts, http.MethodGet, "/api/profile", "ghost", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad threshold is 400", func(t *testing.T) {
		resp := doRequest(t, ts, http.MethodPost, "/api/profile", "bob", map[string]interface{}{
			"total_guardians": 1,
			"required_shares": 1,
			"device":          map[string]interface{}{"id": "d1"},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("self guardian is 400", func(t *testing.T) {
		resp := doRequest(t, ts, http.MethodPost, "/api/guardians", "alice", map[string]interface{}{
			"guardian": "alice",
			"action":   "add",
			"share_id": "s1",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown action is 400", func(t *testing.T) {
		resp := doRequest(t, ts, http.MethodPost, "/api/guardians", "alice", map[string]interface{}{
			"guardian": "bob",
			"action":   "promote",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ineligible recovery is 409", func(t *testing.T) {
		resp := doRequest(t, ts, http.MethodPost, "/api/recovery/alice/initiate", "new-device", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestRecoveryFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	createProfile(t, ts, "alice")
	addGuardian(t, ts, "alice", "bob", "s1")
	addGuardian(t, ts, "alice", "carol", "s2")
	addGuardian(t, ts, "alice", "dave", "s3")

	resp := doRequest(t, ts, http.MethodPost, "/api/recovery/alice/initiate", "new-device", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var session interfaces.RecoverySession
	decodeBody(t, resp, &session)
	assert.Equal(t, interfaces.StatusRequested, session.Status)

	resp = doRequest(t, ts, http.MethodPost, "/api/recovery/alice/approve", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodPost, "/api/recovery/alice/approve", "carol", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &session)
	assert.Equal(t, interfaces.StatusApprovalComplete, session.Status)

	resp = doRequest(t, ts, http.MethodPost, "/api/recovery/alice/shares", "bob", map[string]interface{}{"share_id": "s1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodPost, "/api/recovery/alice/shares", "carol", map[string]interface{}{"share_id": "s2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &session)
	assert.Equal(t, interfaces.StatusSharesCollected, session.Status)

	resp = doRequest(t, ts, http.MethodGet, "/api/recovery/alice/data", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var data interfaces.RecoveryData
	decodeBody(t, resp, &data)
	assert.Len(t, data.Shares, 2)

	resp = doRequest(t, ts, http.MethodPost, "/api/recovery/alice/finalize", "new-device", map[string]interface{}{
		"temporary_identity":   "temp-1",
		"encrypted_access_key": []byte("wrapped-key"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var grant interfaces.AccessGrant
	decodeBody(t, resp, &grant)
	assert.Equal(t, interfaces.Identity("alice"), grant.OriginalIdentity)

	resp = doRequest(t, ts, http.MethodGet, "/api/recovery/access-key", "temp-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var keyResp struct {
		EncryptedAccessKey []byte `json:"encrypted_access_key"`
	}
	decodeBody(t, resp, &keyResp)
	assert.Equal(t, []byte("wrapped-key"), keyResp.EncryptedAccessKey)

	resp = doRequest(t, ts, http.MethodPost, "/api/recovery/activate", "temp-1", map[string]interface{}{
		"original_identity": "alice",
		"device":            map[string]interface{}{"id": "d2", "name": "recovered"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The grant is one-time use.
	resp = doRequest(t, ts, http.MethodPost, "/api/recovery/activate", "temp-1", map[string]interface{}{
		"original_identity": "alice",
		"device":            map[string]interface{}{"id": "d3"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResetAuthorizationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	createProfile(t, ts, "alice")
	addGuardian(t, ts, "alice", "bob", "s1")
	addGuardian(t, ts, "alice", "carol", "s2")
	addGuardian(t, ts, "alice", "dave", "s3")

	resp := doRequest(t, ts, http.MethodPost, "/api/recovery/alice/initiate", "new-device", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodPost, "/api/recovery/alice/reset", "bob", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodPost, "/api/recovery/alice/reset", "alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListGuardiansOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	createProfile(t, ts, "alice")
	addGuardian(t, ts, "alice", "bob", "s1")
	addGuardian(t, ts, "alice", "carol", "s2")

	resp := doRequest(t, ts, http.MethodGet, "/api/guardians", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Guardians []interfaces.GuardianStatus `json:"guardians"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Guardians, 2)
	assert.Equal(t, interfaces.Identity("bob"), body.Guardians[0].Guardian)
}

func TestNotesOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, ts, http.MethodPut, "/api/notes/n1", "alice", map[string]interface{}{
		"blob": []byte("remember this"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/notes/n1", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var note struct {
		Blob []byte `json:"blob"`
	}
	decodeBody(t, resp, &note)
	assert.Equal(t, []byte("remember this"), note.Blob)

	resp = doRequest(t, ts, http.MethodGet, "/api/notes", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Notes []interfaces.NoteID `json:"notes"`
	}
	decodeBody(t, resp, &list)
	assert.Equal(t, []interfaces.NoteID{"n1"}, list.Notes)

	resp = doRequest(t, ts, http.MethodDelete, "/api/notes/n1", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/notes/n1", "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, ts, http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/drain", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/undrain", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
