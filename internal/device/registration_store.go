package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RegistrationRecord binds a registered display to the keypair and host it
// was registered with. One record per display slug, last write wins.
type RegistrationRecord struct {
	DisplayID          string      `json:"display_id"`
	DisplaySlug        string      `json:"display_slug"`
	KeyID              string      `json:"key_id"`
	KeyAlias           string      `json:"key_alias"`
	DisplayFingerprint string      `json:"display_fingerprint"`
	DisplayOutput      Output      `json:"display_output"`
	Environment        Environment `json:"environment"`
	RegisteredAt       time.Time   `json:"registered_at"`
}

const registrationsFile = "registrations.json"

// RegistrationStore is a synchronous file-backed collection of registration
// records keyed by display slug. Corrupt persisted data reads as empty; a
// display that cannot parse its own records re-registers instead of
// crashing.
type RegistrationStore struct {
	mu      sync.RWMutex
	path    string
	records map[string]RegistrationRecord
}

// NewRegistrationStore loads any existing records from dataDir.
func NewRegistrationStore(dataDir string) (*RegistrationStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create registration dir: %w", err)
	}
	s := &RegistrationStore{
		path:    filepath.Join(dataDir, registrationsFile),
		records: make(map[string]RegistrationRecord),
	}
	s.load()
	return s, nil
}

// Save upserts the record for its slug, replacing any prior record whole.
func (s *RegistrationStore) Save(record RegistrationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, hadPrev := s.records[record.DisplaySlug]
	s.records[record.DisplaySlug] = record
	if err := s.persist(); err != nil {
		// Roll back so memory never diverges from disk.
		if hadPrev {
			s.records[record.DisplaySlug] = prev
		} else {
			delete(s.records, record.DisplaySlug)
		}
		return err
	}
	return nil
}

// GetBySlug returns the record for slug, or nil when none exists.
func (s *RegistrationStore) GetBySlug(slug string) *RegistrationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[slug]; ok {
		out := record
		return &out
	}
	return nil
}

// All returns every stored record, for the status surface.
func (s *RegistrationStore) All() []RegistrationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RegistrationRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	return out
}

// Remove deletes the record for slug. Removing an absent slug is a no-op.
func (s *RegistrationStore) Remove(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.records[slug]
	if !ok {
		return nil
	}
	delete(s.records, slug)
	if err := s.persist(); err != nil {
		s.records[slug] = prev
		return err
	}
	return nil
}

func (s *RegistrationStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var records map[string]RegistrationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		// Corrupt collection reads as empty by contract.
		return
	}
	s.records = records
}

func (s *RegistrationStore) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registrations: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write registrations: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store registrations: %w", err)
	}
	return nil
}
