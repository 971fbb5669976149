package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/guardial/account-recovery-backend/interfaces"
)

// SnapshotBackendFactory creates snapshot backends from URI strings.
type SnapshotBackendFactory struct {
	log *slog.Logger
}

// NewSnapshotBackendFactory creates a factory instance.
func NewSnapshotBackendFactory(log *slog.Logger) *SnapshotBackendFactory {
	return &SnapshotBackendFactory{log: log}
}

// SnapshotBackendFor creates a snapshot backend from a location URI.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - local file system storage
//   - s3://   - Amazon S3 or compatible object storage
//   - vault://- HashiCorp Vault KV v2 storage
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *SnapshotBackendFactory) SnapshotBackendFor(locationURI string) (interfaces.SnapshotBackend, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot location URI: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.createFileBackend(u)
	case "s3":
		return f.createS3Backend(u)
	case "vault":
		return f.createVaultBackend(u)
	default:
		return nil, fmt.Errorf("unsupported snapshot backend scheme: %s", u.Scheme)
	}
}

// createFileBackend creates a file system backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (f *SnapshotBackendFactory) createFileBackend(u *url.URL) (interfaces.SnapshotBackend, error) {
	f.log.Debug("Creating file snapshot backend", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("empty path in file URI: %s", u.String())
	}

	return NewFileBackend(path, f.log)
}

// createS3Backend creates an S3 or S3-compatible backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=custom.s3.com
func (f *SnapshotBackendFactory) createS3Backend(u *url.URL) (interfaces.SnapshotBackend, error) {
	f.log.Debug("Creating S3 snapshot backend", slog.String("uri", u.Redacted()))

	bucketName := u.Host
	prefix := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, f.log)
}

// createVaultBackend creates a Vault KV v2 backend.
// URI format: vault://vault.example.com:8200/mount/path?token=...&tls=true
func (f *SnapshotBackendFactory) createVaultBackend(u *url.URL) (interfaces.SnapshotBackend, error) {
	f.log.Debug("Creating Vault snapshot backend", slog.String("uri", u.Redacted()))

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid Vault URI, expected vault://host:port/mount/path")
	}

	query := u.Query()
	scheme := "http"
	if query.Get("tls") == "true" {
		scheme = "https"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)

	return NewVaultBackend(address, parts[0], parts[1], query.Get("token"), f.log)
}
