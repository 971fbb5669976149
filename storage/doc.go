// Package storage provides the persisted state for the recovery system: an
// in-memory implementation of the five keyed collections and pluggable
// snapshot backends for durability.
//
// # State
//
// State implements every store contract from the interfaces package
// (profiles, shares, sessions, grants, notes) over mutex-guarded maps. It
// also implements interfaces.Snapshotter: Snapshot produces a deterministic
// deep copy of all collections and Restore replaces them, giving the host a
// lossless structural round-trip across restarts.
//
// # Snapshot Backends
//
// Serialized snapshots are written to a single named slot behind the
// interfaces.SnapshotBackend contract:
//
//   - File system storage for local deployments and testing
//   - S3-compatible object storage for cloud deployments
//   - HashiCorp Vault KV v2 for deployments that keep state in Vault
//
// # Snapshot URI Format
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/recovery/
//   - s3://ACCESS_KEY:SECRET_KEY@bucket-name/prefix/?region=us-west-2
//   - vault://vault.example.com:8200/secret/recovery?token=...
//
// # Usage Example
//
//	factory := storage.NewSnapshotBackendFactory(logger)
//	backend, err := factory.SnapshotBackendFor("file:///var/lib/recovery/")
//	if err != nil {
//	    log.Fatalf("Failed to create snapshot backend: %v", err)
//	}
//
//	snap, _ := state.Snapshot()
//	data, _ := json.Marshal(snap)
//	err = backend.Save(ctx, data)
package storage
