package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/guardial/account-recovery-backend/interfaces"
)

// VaultBackend stores the snapshot in HashiCorp Vault using the KV v2
// secret engine. The snapshot occupies a single secret path with the data
// base64-encoded under the "snapshot" key.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a Vault snapshot backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path within the mount (e.g. "recovery")
//   - token: Vault token used for authentication
//   - log: structured logger
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultBackend{
		client:      client,
		mountPath:   strings.Trim(mountPath, "/"),
		dataPath:    strings.Trim(dataPath, "/"),
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(address, "https://"), mountPath, dataPath),
	}, nil
}

// secretPath returns the KV v2 data path for the snapshot slot.
func (b *VaultBackend) secretPath() string {
	return fmt.Sprintf("%s/data/%s/%s", b.mountPath, b.dataPath, snapshotFileName)
}

// Save writes the snapshot, overwriting the previous version. KV v2 keeps
// prior versions according to the mount's configuration.
func (b *VaultBackend) Save(ctx context.Context, data []byte) error {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"snapshot": base64.StdEncoding.EncodeToString(data),
		},
	}

	_, err := b.client.Logical().WriteWithContext(ctx, b.secretPath(), payload)
	if err != nil {
		return fmt.Errorf("failed to write snapshot to Vault: %w", err)
	}

	b.log.Debug("Saved snapshot to Vault",
		slog.String("path", b.secretPath()),
		slog.Int("size", len(data)))

	return nil
}

// Load reads the stored snapshot. Returns ErrSnapshotNotFound if the secret
// path is empty.
func (b *VaultBackend) Load(ctx context.Context) ([]byte, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.secretPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrSnapshotNotFound
	}

	inner, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, interfaces.ErrSnapshotNotFound
	}
	encoded, ok := inner["snapshot"].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected snapshot secret format at %s", b.secretPath())
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot from Vault: %w", err)
	}

	b.log.Debug("Loaded snapshot from Vault",
		slog.String("path", b.secretPath()),
		slog.Int("size", len(data)))

	return data, nil
}

// Available checks if the Vault server is reachable and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	health, err := b.client.Sys().HealthWithContext(ctx)
	if err != nil {
		b.log.Warn("Vault backend unavailable", "err", err)
		return false
	}
	if health.Sealed {
		b.log.Warn("Vault backend sealed")
		return false
	}
	return true
}

// Name returns a unique identifier for this backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s", b.dataPath)
}

// LocationURI returns the URI that identifies this backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}
