// Package custody owns the display's signing keypairs. Keys are generated
// here, persisted sealed, and loaned out only as opaque handles: no caller
// ever sees private key bytes.
package custody

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"marquee/pkg/platform/sentinel"
)

// Service manages keypair lifecycle, one keypair per alias. Creation is
// serialized per alias via singleflight so concurrent GetOrCreate calls for
// the same alias can never persist divergent keypairs, while unrelated
// aliases proceed independently.
type Service struct {
	store  Store
	group  singleflight.Group
	logger *slog.Logger
}

// NewService constructs a custody service over the given store.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// GetOrCreate returns the keypair stored under alias, generating and
// persisting a new Ed25519 keypair if none exists. Rotation never happens
// implicitly; callers rotate with an explicit Remove followed by GetOrCreate.
func (s *Service) GetOrCreate(ctx context.Context, alias string) (*KeyPair, error) {
	if kp, err := s.GetExisting(ctx, alias); err == nil {
		return kp, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	v, err, _ := s.group.Do(alias, func() (any, error) {
		// Another caller may have won the race before we entered the group.
		record, err := s.store.Load(ctx, alias)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}

		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate keypair %q: %w", alias, err)
		}
		record = &Record{
			Alias:     alias,
			KeyID:     uuid.NewString(),
			Seed:      append([]byte(nil), priv.Seed()...),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.Save(ctx, record); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "keypair created", "alias", alias, "key_id", record.KeyID)
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	return handleFromRecord(v.(*Record))
}

// GetExisting returns the keypair stored under alias or a wrapped
// sentinel.ErrNotFound. It never creates.
func (s *Service) GetExisting(ctx context.Context, alias string) (*KeyPair, error) {
	record, err := s.store.Load(ctx, alias)
	if err != nil {
		return nil, err
	}
	return handleFromRecord(record)
}

// Remove deletes the keypair stored under alias. Part of the explicit
// rotation flow; callers must re-register the new public key afterwards.
func (s *Service) Remove(ctx context.Context, alias string) error {
	return s.store.Delete(ctx, alias)
}

func handleFromRecord(record *Record) (*KeyPair, error) {
	if len(record.Seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keypair %q has malformed seed: %w", record.Alias, sentinel.ErrCorrupt)
	}
	priv := ed25519.NewKeyFromSeed(record.Seed)
	return &KeyPair{
		alias: record.Alias,
		keyID: record.KeyID,
		priv:  priv,
		pub:   priv.Public().(ed25519.PublicKey),
	}, nil
}
