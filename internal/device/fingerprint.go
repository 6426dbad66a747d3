// Package device derives the display's identity: a stable fingerprint over
// host signals, the provisioned machine id, the physical output, and the
// locally persisted registration records that bind all of it to a backend
// display record.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FingerprintInputs are the signals bound into a display fingerprint.
// MachineID is stable across reboots; UserAgent and Language are semi-stable
// (an agent upgrade changes them), so the fingerprint is a tamper-evident
// binding, not a security boundary.
type FingerprintInputs struct {
	MachineID  string
	OutputName string
	UserAgent  string
	Language   string
}

// Fingerprint computes a hex SHA-256 over the pipe-joined canonical inputs.
// Deterministic for identical inputs on the same agent build.
func Fingerprint(in FingerprintInputs) string {
	canonical := strings.Join([]string{
		strings.TrimSpace(in.MachineID),
		strings.ToLower(strings.TrimSpace(in.OutputName)),
		in.UserAgent,
		in.Language,
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
