package custody

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"marquee/internal/securestore"
	"marquee/pkg/platform/sentinel"
)

// FileStore persists one sealed record per alias under dir. Records are
// encrypted with a machine-bound secret so key material on disk is only
// usable on the host that created it.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	secret []byte
}

// NewFileStore creates the storage directory (0700) if needed.
func NewFileStore(dir string, secret []byte) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create custody dir: %w", err)
	}
	return &FileStore{dir: dir, secret: append([]byte(nil), secret...)}, nil
}

func (s *FileStore) Load(_ context.Context, alias string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(alias))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("keypair %q: %w", alias, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read keypair %q: %w", alias, err)
	}

	plaintext, err := securestore.Open(s.secret, data)
	if err != nil {
		return nil, fmt.Errorf("unseal keypair %q: %w", alias, err)
	}
	var record Record
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, fmt.Errorf("decode keypair %q: %w", alias, sentinel.ErrCorrupt)
	}
	return &record, nil
}

func (s *FileStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode keypair %q: %w", record.Alias, err)
	}
	sealed, err := securestore.Seal(s.secret, plaintext)
	if err != nil {
		return fmt.Errorf("seal keypair %q: %w", record.Alias, err)
	}

	// Write-then-rename so a crash mid-write never leaves a truncated record.
	path := s.path(record.Alias)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("write keypair %q: %w", record.Alias, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store keypair %q: %w", record.Alias, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(alias)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete keypair %q: %w", alias, err)
	}
	return nil
}

// path hex-encodes the alias so arbitrary alias strings cannot escape dir.
func (s *FileStore) path(alias string) string {
	return filepath.Join(s.dir, "key-"+hex.EncodeToString([]byte(alias))+".sealed")
}
