package device

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) (*MachineIDResolver, string) {
	t.Helper()
	dir := t.TempDir()
	r := &MachineIDResolver{
		dataDir:       filepath.Join(dir, "data"),
		hostMarker:    filepath.Join(dir, "machine-id-marker"),
		provisionFile: filepath.Join(dir, "provision.json"),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return r, dir
}

func TestResolvePrefersCache(t *testing.T) {
	r, _ := newTestResolver(t)
	require.NoError(t, os.MkdirAll(r.dataDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(r.dataDir, machineIDCacheFile), []byte("cached-id\n"), 0o600))
	require.NoError(t, os.WriteFile(r.hostMarker, []byte("marker-id\n"), 0o600))

	id, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached-id", id)
}

func TestResolveFallsBackToHostMarkerAndCaches(t *testing.T) {
	r, _ := newTestResolver(t)
	require.NoError(t, os.WriteFile(r.hostMarker, []byte("marker-id\n"), 0o600))

	id, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "marker-id", id)

	cached, err := os.ReadFile(filepath.Join(r.dataDir, machineIDCacheFile))
	require.NoError(t, err)
	assert.Equal(t, "marker-id\n", string(cached))
}

func TestResolveFallsBackToProvisionFile(t *testing.T) {
	r, _ := newTestResolver(t)
	require.NoError(t, os.WriteFile(r.provisionFile, []byte(`{"machineId": "prov-id"}`), 0o600))

	id, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "prov-id", id)
}

func TestResolveNoSourceIsFatal(t *testing.T) {
	r, _ := newTestResolver(t)

	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoMachineID)
}

func TestResolveIgnoresMalformedProvisionFile(t *testing.T) {
	r, _ := newTestResolver(t)
	require.NoError(t, os.WriteFile(r.provisionFile, []byte("not json"), 0o600))

	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoMachineID)
}
