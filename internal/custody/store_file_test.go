package custody

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"marquee/pkg/platform/sentinel"
)

type FileStoreSuite struct {
	suite.Suite
	dir   string
	store *FileStore
}

func (s *FileStoreSuite) SetupTest() {
	s.dir = s.T().TempDir()
	store, err := NewFileStore(s.dir, []byte("machine-secret"))
	s.Require().NoError(err)
	s.store = store
}

func TestFileStoreSuite(t *testing.T) {
	suite.Run(t, new(FileStoreSuite))
}

func (s *FileStoreSuite) record(alias string) *Record {
	return &Record{
		Alias:     alias,
		KeyID:     "key-1",
		Seed:      make([]byte, 32),
		CreatedAt: time.Now().UTC(),
	}
}

func (s *FileStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.record("display")))

	loaded, err := s.store.Load(ctx, "display")
	s.Require().NoError(err)
	s.Equal("key-1", loaded.KeyID)
	s.Equal(make([]byte, 32), loaded.Seed)
}

func (s *FileStoreSuite) TestMissingAliasReportsNotFound() {
	_, err := s.store.Load(context.Background(), "absent")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *FileStoreSuite) TestSealedAtRest() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.record("display")))

	entries, err := os.ReadDir(s.dir)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)

	raw, err := os.ReadFile(filepath.Join(s.dir, entries[0].Name()))
	s.Require().NoError(err)
	s.NotContains(string(raw), "key-1", "plaintext record fields must not hit disk")
}

func (s *FileStoreSuite) TestWrongSecretReportsCorrupt() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.record("display")))

	other, err := NewFileStore(s.dir, []byte("different-secret"))
	s.Require().NoError(err)

	_, err = other.Load(ctx, "display")
	s.Require().ErrorIs(err, sentinel.ErrCorrupt)
}

func (s *FileStoreSuite) TestTruncatedFileReportsCorrupt() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.record("display")))

	entries, err := os.ReadDir(s.dir)
	s.Require().NoError(err)
	path := filepath.Join(s.dir, entries[0].Name())
	s.Require().NoError(os.WriteFile(path, []byte("garbage"), 0o600))

	_, err = s.store.Load(ctx, "display")
	s.Require().ErrorIs(err, sentinel.ErrCorrupt)
}

func (s *FileStoreSuite) TestDeleteIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.record("display")))
	s.Require().NoError(s.store.Delete(ctx, "display"))
	s.Require().NoError(s.store.Delete(ctx, "display"))

	_, err := s.store.Load(ctx, "display")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
