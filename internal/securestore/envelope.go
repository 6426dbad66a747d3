// Package securestore seals small records for at-rest storage on the kiosk
// host. The sealing secret is machine-bound, so a copied data directory is
// unreadable on any other host.
package securestore

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"marquee/pkg/platform/sentinel"
)

const (
	envelopeVersion = 1
	saltSize        = 16

	// argon2id parameters tuned for embedded hardware: a kiosk unseals once
	// per boot, so a few hundred milliseconds is acceptable.
	kdfTime     = 2
	kdfMemoryKB = 64 * 1024
	kdfThreads  = 1
)

var filePrefix = []byte("MRQSEAL1\n")

type envelope struct {
	Version    uint32 `json:"version"`
	KDF        string `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Seal encrypts plaintext under secret and returns a self-describing blob
// suitable for writing straight to disk.
func Seal(secret, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := deriveKey(secret, salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	env := envelope{
		Version:    envelopeVersion,
		KDF:        "argon2id",
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return append(append([]byte(nil), filePrefix...), raw...), nil
}

// Open decrypts a blob produced by Seal. Data that is not an envelope, or
// that fails authentication, reports sentinel.ErrCorrupt: the caller treats
// the record as unusable, never as silently empty key material.
func Open(secret, data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, filePrefix) {
		return nil, fmt.Errorf("missing envelope prefix: %w", sentinel.ErrCorrupt)
	}
	var env envelope
	if err := json.Unmarshal(bytes.TrimPrefix(data, filePrefix), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", sentinel.ErrCorrupt)
	}
	if env.Version != envelopeVersion || env.KDF != "argon2id" {
		return nil, fmt.Errorf("unsupported envelope version: %w", sentinel.ErrCorrupt)
	}
	if len(env.Salt) != saltSize || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("malformed envelope: %w", sentinel.ErrCorrupt)
	}

	key := deriveKey(secret, env.Salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", sentinel.ErrCorrupt)
	}
	return plaintext, nil
}

func deriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, kdfTime, kdfMemoryKB, kdfThreads, chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
