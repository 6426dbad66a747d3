package custody

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// KeyPair is an opaque handle over a persisted signing keypair. The private
// half stays inside this package: callers can sign and export the public
// key, nothing else. The handle is loaned out by the custody service and
// must not be rebuilt from raw bytes elsewhere.
type KeyPair struct {
	alias string
	keyID string
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
}

// Alias reports the logical identity this keypair is stored under.
func (k *KeyPair) Alias() string { return k.alias }

// KeyID reports the stable identifier assigned at creation time. The backend
// resolves the registered public key through it on every verification.
func (k *KeyPair) KeyID() string { return k.keyID }

// Public returns a copy of the public key.
func (k *KeyPair) Public() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), k.pub...)
}

// Sign signs payload and returns the signature base64url-encoded without
// padding, the encoding the backend verifies against.
func (k *KeyPair) Sign(payload []byte) (string, error) {
	if len(k.priv) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("keypair %q: %w", k.alias, ErrKeyUnusable)
	}
	sig := ed25519.Sign(k.priv, payload)
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

// PublicKeyPEM exports the public half as SPKI PEM (64-column wrapped) for
// registration and operator display. The private key is not exportable.
func (k *KeyPair) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(k.pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}
