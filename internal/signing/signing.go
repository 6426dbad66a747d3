// Package signing implements the display request-signing protocol: every
// request to the backend carries six headers proving possession of the
// display's private key without ever transmitting it. Verification happens
// server-side against the registered public key, so the client's whole job
// is exact canonicalization.
package signing

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Header names carried on every signed request.
const (
	HeaderDisplaySlug = "X-Display-Slug"
	HeaderKeyID       = "X-Display-Key-Id"
	HeaderTimestamp   = "X-Display-Timestamp"
	HeaderNonce       = "X-Display-Nonce"
	HeaderBodyDigest  = "X-Display-Body-Digest"
	HeaderSignature   = "X-Display-Signature"
)

// ErrSign reports a failed signing operation. Callers may retry once with
// fresh parameters; a second failure is fatal for that request.
var ErrSign = errors.New("signing failed")

// Signer is the capability needed to produce signatures. *custody.KeyPair
// satisfies it; the private key never crosses this boundary.
type Signer interface {
	KeyID() string
	Sign(payload []byte) (string, error)
}

// Params describe one outgoing request to sign.
type Params struct {
	Method      string
	URL         string
	DisplaySlug string
	Signer      Signer
	Body        []byte
}

// Headers produces the signed header set for one request attempt. Nonce and
// timestamp are generated here, per call: a retry must call Headers again,
// because the backend's replay check rejects a reused envelope.
func Headers(p Params) (http.Header, error) {
	pathQuery, err := pathAndQuery(p.URL)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	nonce := uuid.NewString()
	digest := BodyDigest(p.Body)

	canonical := CanonicalString(p.Method, pathQuery, p.DisplaySlug, p.Signer.KeyID(), timestamp, nonce, digest)
	signature, err := p.Signer.Sign([]byte(canonical))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSign, err)
	}

	h := http.Header{}
	h.Set(HeaderDisplaySlug, p.DisplaySlug)
	h.Set(HeaderKeyID, p.Signer.KeyID())
	h.Set(HeaderTimestamp, timestamp)
	h.Set(HeaderNonce, nonce)
	h.Set(HeaderBodyDigest, digest)
	h.Set(HeaderSignature, signature)
	return h, nil
}

// CanonicalString joins the signed fields in their fixed order. Any
// deviation here (method case, query placement) breaks verification
// deterministically, so this is the single place the order lives.
func CanonicalString(method, pathQuery, slug, keyID, timestamp, nonce, bodyDigest string) string {
	return strings.Join([]string{
		strings.ToUpper(method),
		pathQuery,
		slug,
		keyID,
		timestamp,
		nonce,
		bodyDigest,
	}, "\n")
}

// BodyDigest returns base64url(SHA-256(body)), with a nil body hashed as
// empty.
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify checks a base64url signature over canonical against pub. The
// backend owns verification in production; this exists for tests and
// contract parity.
func Verify(pub ed25519.PublicKey, canonical, signature string) error {
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if !ed25519.Verify(pub, []byte(canonical), sig) {
		return errors.New("signature mismatch")
	}
	return nil
}

// pathAndQuery extracts path plus query from a URL, dropping scheme and
// host: the canonical form is host-independent.
func pathAndQuery(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse request url: %w", err)
	}
	pq := u.EscapedPath()
	if pq == "" {
		pq = "/"
	}
	if u.RawQuery != "" {
		pq += "?" + u.RawQuery
	}
	return pq, nil
}
