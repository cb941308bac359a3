// Package credentials manages provider API keys: encrypted through the vault
// on the way in, decrypted on demand, and never held in plaintext between
// calls. The in-memory view of a stored key is always the redacted
// placeholder.
package credentials

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/avelkov/omnichat/internal/store"
	"github.com/avelkov/omnichat/internal/vault"
)

// Redacted stands in for a stored key anywhere one would otherwise appear.
const Redacted = "***encrypted***"

var ErrNotFound = errors.New("credentials: provider not found")

// Info describes a stored credential without exposing the key.
type Info struct {
	Name    string    `json:"providerName"`
	Key     string    `json:"key"`
	AddedAt time.Time `json:"addedAt"`
}

type Manager struct {
	creds    *store.Credentials
	settings *store.Settings
	// passphrase, when non-empty, replaces the ambient derivation.
	passphrase string
	log        zerolog.Logger
}

func NewManager(db *gorm.DB, passphrase string, log zerolog.Logger) *Manager {
	return &Manager{
		creds:      store.NewCredentials(db),
		settings:   store.NewSettings(db),
		passphrase: passphrase,
		log:        log,
	}
}

func (m *Manager) passphraseFor(day time.Time) string {
	if m.passphrase != "" {
		return m.passphrase
	}
	return vault.DerivePassphraseAt(day)
}

// Set encrypts key and stores (or overwrites) the credential for name.
func (m *Manager) Set(ctx context.Context, name, key string) error {
	now := time.Now()
	rec, err := vault.Encrypt(key, m.passphraseFor(now))
	if err != nil {
		return err
	}
	if err := m.creds.Put(ctx, &store.ProviderCredential{
		Name:       name,
		Ciphertext: rec.Ciphertext,
		IV:         rec.IV,
		AddedAt:    now,
	}); err != nil {
		return errors.Wrap(err, "credentials: save")
	}
	m.log.Info().Str("provider", name).Str("key", Redacted).Msg("credential stored")
	return nil
}

// List returns all stored credentials with keys redacted.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	creds, err := m.creds.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "credentials: list")
	}
	out := make([]Info, 0, len(creds))
	for _, c := range creds {
		out = append(out, Info{Name: c.Name, Key: Redacted, AddedAt: c.AddedAt})
	}
	return out, nil
}

// DecryptedKey loads and decrypts the key for name. The passphrase is pinned
// to the day the record was written. Callers must not retain the result
// beyond the provider call it was fetched for.
func (m *Manager) DecryptedKey(ctx context.Context, name string) (string, error) {
	cred, err := m.creds.Get(ctx, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", errors.Wrap(err, "credentials: load")
	}
	return vault.Decrypt(vault.Record{IV: cred.IV, Ciphertext: cred.Ciphertext}, m.passphraseFor(cred.AddedAt))
}

// Remove deletes the credential; if it was active, the selection resets.
func (m *Manager) Remove(ctx context.Context, name string) error {
	if err := m.creds.Delete(ctx, name); err != nil {
		return errors.Wrap(err, "credentials: delete")
	}
	active, err := m.Active(ctx)
	if err != nil {
		return err
	}
	if active == name {
		if err := m.settings.Delete(ctx, store.SettingActiveProvider); err != nil {
			return errors.Wrap(err, "credentials: reset active provider")
		}
	}
	m.log.Info().Str("provider", name).Msg("credential removed")
	return nil
}

// SetActive selects the provider used for new turns. The name must reference
// a stored credential; an empty name clears the selection.
func (m *Manager) SetActive(ctx context.Context, name string) error {
	if name == "" {
		return m.settings.Delete(ctx, store.SettingActiveProvider)
	}
	if _, err := m.creds.Get(ctx, name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return m.settings.Put(ctx, store.SettingActiveProvider, name)
}

// Active returns the selected provider name, empty when none is selected.
func (m *Manager) Active(ctx context.Context) (string, error) {
	var name string
	err := m.settings.Get(ctx, store.SettingActiveProvider, &name)
	if errors.Is(err, store.ErrSettingNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}
