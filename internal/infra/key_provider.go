package infra

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deepakjacob/launchk/internal/domain"
)

// EnvJournalKey supplies the journal key as hex, overriding the key file.
const EnvJournalKey = "LAUNCHK_JOURNAL_KEY"

const (
	journalKeyName = "journal.key"
	journalKeySize = 32 // SQLCipher raw key
)

// ErrKeyExposed means the key file is readable by someone other than its owner.
var ErrKeyExposed = errors.New("journal key file is accessible by group or others")

// decodeJournalKey parses the hex form used both on disk and in the
// environment, which is also the x'...' form SQLCipher takes.
func decodeJournalKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("journal key is not hex: %w", err)
	}
	if len(key) != journalKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), journalKeySize)
	}
	return key, nil
}

// FileKeyProvider keeps the journal key beside the database, owner-only.
type FileKeyProvider struct {
	path string
}

func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{path: filepath.Join(dataDir, journalKeyName)}
}

// GetKey refuses a key file with group or other permission bits.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat key file: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("%w: %s is %s", ErrKeyExposed, p.path, info.Mode().Perm())
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return decodeJournalKey(string(data))
}

func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != journalKeySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), journalKeySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.path)
	return err == nil
}

// EnvKeyProvider reads the key from EnvJournalKey. It cannot store one.
type EnvKeyProvider struct {
	lookup func(string) (string, bool)
}

func NewEnvKeyProvider() *EnvKeyProvider {
	return &EnvKeyProvider{lookup: os.LookupEnv}
}

func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	v, ok := p.lookup(EnvJournalKey)
	if !ok {
		return nil, fmt.Errorf("%s is not set", EnvJournalKey)
	}
	key, err := decodeJournalKey(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvJournalKey, err)
	}
	return key, nil
}

func (p *EnvKeyProvider) StoreKey([]byte) error {
	return fmt.Errorf("%s is read-only; set it to a %d-byte hex key", EnvJournalKey, journalKeySize)
}

func (p *EnvKeyProvider) KeyExists() bool {
	v, ok := p.lookup(EnvJournalKey)
	return ok && strings.TrimSpace(v) != ""
}

// JournalKeyProvider prefers the environment over the key file in dataDir.
func JournalKeyProvider(dataDir string) domain.KeyProvider {
	if env := NewEnvKeyProvider(); env.KeyExists() {
		return env
	}
	return NewFileKeyProvider(dataDir)
}

// GenerateKey returns a fresh random journal key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, journalKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the provider's key, creating one the first time.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

var (
	_ domain.KeyProvider = (*FileKeyProvider)(nil)
	_ domain.KeyProvider = (*EnvKeyProvider)(nil)
)
