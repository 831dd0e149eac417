// Package credentials persists the upstream J-Quants API key at rest,
// encrypted with AES-256-GCM, so an operator only has to supply
// JQUANTS_API_KEY once: later restarts recover it from the encrypted cache
// file instead of requiring the environment variable every time.
package credentials

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/jmylchreest/btorch/internal/crypto"
)

// Store wraps a crypto.Encryptor bound to one file on disk.
type Store struct {
	path string
	enc  *crypto.Encryptor
}

// Open builds a Store backed by path, using key as the AES-256 key. It does
// not touch the filesystem until Load or Save is called.
func Open(path string, key []byte) (*Store, error) {
	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("open credentials store: %w", err)
	}
	return &Store{path: path, enc: enc}, nil
}

// Load returns the decrypted credential previously saved to the store, or
// "" if nothing has been saved yet.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read credentials store: %w", err)
	}
	plaintext, err := s.enc.Decrypt(string(data))
	if err != nil {
		return "", fmt.Errorf("decrypt credentials store: %w", err)
	}
	return plaintext, nil
}

// Save encrypts value and writes it to the store path with owner-only
// permissions, overwriting whatever was there before.
func (s *Store) Save(value string) error {
	ciphertext, err := s.enc.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(ciphertext), 0o600); err != nil {
		return fmt.Errorf("write credentials store: %w", err)
	}
	return nil
}

// ResolveKey derives the Store's AES-256 key from secret when one is
// configured (HKDF, same idiom as crypto.DeriveAdminKey). With no secret
// configured there is nothing to derive from, so a random key is generated
// once and cached at keyFilePath (hex-encoded, owner-only permissions) and
// reused on subsequent calls, the same way an operator-set secret would be
// reused across restarts.
func ResolveKey(secret, keyFilePath string) ([]byte, error) {
	if secret != "" {
		return crypto.DeriveEncryptionKey(secret)
	}

	if data, err := os.ReadFile(keyFilePath); err == nil {
		key, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode cached credentials key: %w", err)
		}
		return key, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read cached credentials key: %w", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate credentials key: %w", err)
	}
	if err := os.WriteFile(keyFilePath, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("write cached credentials key: %w", err)
	}
	return key, nil
}
