// Package account manages per-identity recovery configuration profiles.
package account

import (
	"log/slog"

	"github.com/guardial/account-recovery-backend/interfaces"
)

// Manager performs profile operations over a ProfileStore. It validates the
// k-of-n threshold policy and owns the device-list field, though device
// management beyond what recovery flows append happens elsewhere.
type Manager struct {
	profiles interfaces.ProfileStore
	log      *slog.Logger
}

// NewManager creates a profile manager.
func NewManager(profiles interfaces.ProfileStore, log *slog.Logger) *Manager {
	return &Manager{profiles: profiles, log: log}
}

// CreateProfile stores a new profile for the owner with recovery disabled
// and a single initial device.
//
// Returns ErrInvalidThreshold unless 2 <= required <= total, and
// ErrProfileExists if the owner already has a profile.
func (m *Manager) CreateProfile(owner interfaces.Identity, total, required int, initialDevice interfaces.DeviceRecord) (*interfaces.UserProfile, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if required < 2 || required > total {
		return nil, interfaces.ErrInvalidThreshold
	}
	if _, err := m.profiles.GetProfile(owner); err == nil {
		return nil, interfaces.ErrProfileExists
	}

	profile := &interfaces.UserProfile{
		Identity:        owner,
		TotalGuardians:  total,
		RequiredShares:  required,
		RecoveryEnabled: false,
		Devices:         []interfaces.DeviceRecord{initialDevice},
	}
	if err := m.profiles.PutProfile(profile); err != nil {
		return nil, err
	}

	m.log.Info("Profile created",
		slog.String("owner", owner.String()),
		slog.Int("totalGuardians", total),
		slog.Int("requiredShares", required))

	return profile, nil
}

// GetProfile retrieves the owner's profile. Returns ErrProfileNotFound if
// absent.
func (m *Manager) GetProfile(owner interfaces.Identity) (*interfaces.UserProfile, error) {
	return m.profiles.GetProfile(owner)
}

// SetPublicRecoveryData overwrites the owner's optional public recovery
// blob unconditionally.
func (m *Manager) SetPublicRecoveryData(owner interfaces.Identity, blob []byte) error {
	profile, err := m.profiles.GetProfile(owner)
	if err != nil {
		return err
	}

	profile.PublicRecoveryData = blob
	return m.profiles.PutProfile(profile)
}

// AppendDevice appends a device record to the owner's ordered device list.
// Recovery activation uses this to register the recovered identity's new
// device.
func (m *Manager) AppendDevice(owner interfaces.Identity, device interfaces.DeviceRecord) error {
	profile, err := m.profiles.GetProfile(owner)
	if err != nil {
		return err
	}

	profile.Devices = append(profile.Devices, device)
	return m.profiles.PutProfile(profile)
}
