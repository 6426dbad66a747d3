package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoMachineID reports that no provisioning source yielded a machine id.
// Fatal for registration: a display cannot register without a machine
// identity, and the status surface switches to its "provision this display"
// state instead of retrying silently.
var ErrNoMachineID = errors.New("no machine id resolvable")

const machineIDCacheFile = "machine-id"

// MachineIDResolver resolves the provisioned machine identifier. Resolution
// order: durable local cache, then the host machine-id marker, then a
// well-known provisioning JSON file. The first non-empty hit wins and is
// cached for subsequent boots.
type MachineIDResolver struct {
	dataDir       string
	hostMarker    string
	provisionFile string
	logger        *slog.Logger
}

// NewMachineIDResolver uses the default host sources. dataDir is where the
// resolved id is cached.
func NewMachineIDResolver(dataDir string, logger *slog.Logger) *MachineIDResolver {
	return &MachineIDResolver{
		dataDir:       dataDir,
		hostMarker:    "/etc/machine-id",
		provisionFile: "/boot/marquee/provision.json",
		logger:        logger,
	}
}

// Resolve returns the machine id or ErrNoMachineID when every source is
// empty.
func (r *MachineIDResolver) Resolve(ctx context.Context) (string, error) {
	cachePath := filepath.Join(r.dataDir, machineIDCacheFile)

	if id := readTrimmed(cachePath); id != "" {
		return id, nil
	}
	if id := readTrimmed(r.hostMarker); id != "" {
		r.cache(ctx, cachePath, id)
		return id, nil
	}
	if id := r.readProvisionFile(); id != "" {
		r.cache(ctx, cachePath, id)
		return id, nil
	}
	return "", fmt.Errorf("checked cache, host marker, provision file: %w", ErrNoMachineID)
}

func (r *MachineIDResolver) readProvisionFile() string {
	data, err := os.ReadFile(r.provisionFile)
	if err != nil {
		return ""
	}
	var doc struct {
		MachineID string `json:"machineId"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	return strings.TrimSpace(doc.MachineID)
}

func (r *MachineIDResolver) cache(ctx context.Context, path, id string) {
	if err := os.MkdirAll(r.dataDir, 0o700); err != nil {
		r.logger.WarnContext(ctx, "machine id cache dir not writable", "error", err)
		return
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		r.logger.WarnContext(ctx, "machine id not cached", "error", err)
	}
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
