// Package httpserver implements the HTTP API for the account recovery
// service.
//
// # API Endpoints
//
// All API routes live under /api and require the caller's identity in the
// X-Identity header. Transport authentication is assumed to happen upstream;
// this layer only reads the already-verified identity.
//
// Profile management:
//
//   - POST /api/profile: create the caller's recovery profile
//   - GET /api/profile: fetch the caller's profile
//   - PUT /api/profile/recovery-data: overwrite the public recovery blob
//
// Guardian management:
//
//   - POST /api/guardians: add, remove or replace a guardian
//   - GET /api/guardians: list guardians with live approval state
//
// Recovery sessions:
//
//   - POST /api/recovery/{owner}/initiate: start a session
//   - POST /api/recovery/{owner}/approve: record a guardian approval
//   - POST /api/recovery/{owner}/shares: record a collected share
//   - POST /api/recovery/{owner}/finalize: issue the access grant
//   - POST /api/recovery/{owner}/reset: abandon the session (owner only)
//   - GET /api/recovery/{owner}/data: recovery bundle for approved guardians
//   - POST /api/recovery/activate: consume a grant, registering a new device
//   - GET /api/recovery/access-key: fetch the grant's encrypted access key
//
// Notes:
//
//   - PUT/GET/DELETE /api/notes/{note_id}, GET /api/notes
//
// # Health Endpoints
//
// The server also exposes /livez, /readyz and the /drain and /undrain
// toggles for load balancer rotation, plus optional pprof under /debug.
//
// # Error Mapping
//
// Service errors are translated to HTTP statuses by their taxonomy kind:
// validation errors map to 400, missing records to 404, authorization
// failures to 403, state machine violations and duplicate operations to
// 409, and expired grants to 410. The response body carries the error
// message and kind as JSON.
package httpserver
