package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrCredentialCorrupt signals a credential file that cannot be opened with
// the configured passphrase.
var ErrCredentialCorrupt = errors.New("session: credential file corrupt or wrong passphrase")

const (
	saltSize  = 16
	nonceSize = 24
)

// CredentialSource supplies the bearer credential for outgoing calls.
type CredentialSource interface {
	Credential() Credential
}

// Static is a fixed credential, used by tests and one-shot commands.
type Static Credential

func (s Static) Credential() Credential { return Credential(s) }

// CredentialStore persists the access token between runs.
type CredentialStore interface {
	Save(cred Credential) error
	Load() (Credential, error)
	Clear() error
}

// FileStore keeps the credential in a single file sealed with secretbox. The
// file layout is salt | nonce | box.
type FileStore struct {
	path       string
	passphrase string

	mu     sync.Mutex
	cached *Credential
}

func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session: create credential dir: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("session: generate salt: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("session: generate nonce: %w", err)
	}
	key := deriveKey(s.passphrase, salt)

	out := make([]byte, 0, saltSize+nonceSize+len(cred)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, []byte(cred), &nonce, &key)

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("session: write credential: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("session: write credential: %w", err)
	}
	s.cached = &cred
	return nil
}

// Load returns the stored credential. A missing file is the empty credential.
func (s *FileStore) Load() (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return *s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		var empty Credential
		s.cached = &empty
		return empty, nil
	}
	if err != nil {
		return "", fmt.Errorf("session: read credential: %w", err)
	}
	if len(data) < saltSize+nonceSize+secretbox.Overhead {
		return "", ErrCredentialCorrupt
	}

	salt := data[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], data[saltSize:saltSize+nonceSize])
	key := deriveKey(s.passphrase, salt)

	plain, ok := secretbox.Open(nil, data[saltSize+nonceSize:], &nonce, &key)
	if !ok {
		return "", ErrCredentialCorrupt
	}
	cred := Credential(plain)
	s.cached = &cred
	return cred, nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: clear credential: %w", err)
	}
	return nil
}

// Credential implements CredentialSource. An unreadable file counts as
// logged out.
func (s *FileStore) Credential() Credential {
	cred, err := s.Load()
	if err != nil {
		return ""
	}
	return cred
}

func deriveKey(passphrase string, salt []byte) [32]byte {
	var key [32]byte
	copy(key[:], argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32))
	return key
}
