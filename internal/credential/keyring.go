// Package credential stores provider secrets (the IMAP password and the
// Gmail OAuth token) in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "rulemaster"

// Well-known keys.
const (
	// GmailTokenKey holds the Gmail OAuth token as JSON.
	GmailTokenKey = "gmail-token"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("credential not found")

// IMAPPasswordKey returns the key under which the IMAP password for
// username is stored.
func IMAPPasswordKey(username string) string {
	return "imap-" + username
}

// Store reads and writes secrets. The keyring-backed implementation is
// returned by Open; tests substitute an in-memory one.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Keyring is a Store backed by the operating system keyring.
type Keyring struct {
	ring keyring.Keyring
}

// Open returns a keyring-backed Store. configDir hosts the encrypted file
// backend used when no native keyring is available.
func Open(configDir string) (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(configDir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("rulemaster-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// Get retrieves a credential value by key from the system keyring.
func (k *Keyring) Get(key string) (string, error) {
	item, err := k.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func (k *Keyring) Set(key string, value string) error {
	err := k.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func (k *Keyring) Delete(key string) error {
	err := k.ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Memory is an in-memory Store.
type Memory map[string]string

// Get returns the value for key or ErrNotFound.
func (m Memory) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	return v, nil
}

// Set stores value under key.
func (m Memory) Set(key, value string) error {
	m[key] = value
	return nil
}

// Delete removes key.
func (m Memory) Delete(key string) error {
	delete(m, key)
	return nil
}
