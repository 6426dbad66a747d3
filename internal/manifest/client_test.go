package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marquee/internal/signing"
	"marquee/pkg/platform/sentinel"
)

// fakeSigner fails its first failures Sign calls, then signs with a canned
// value.
type fakeSigner struct {
	keyID    string
	failures int
	calls    int
}

func (s *fakeSigner) KeyID() string { return s.keyID }

func (s *fakeSigner) Sign(payload []byte) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", errors.New("hsm hiccup")
	}
	return "c2lnbmVk", nil
}

func newTestClient(t *testing.T, serverURL string, signer signing.Signer) *Client {
	t.Helper()
	return NewClient(serverURL, "lobby-1", signer, nil, nil, nil)
}

func TestFetchCarriesSignedHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, "/api/displays/lobby-1/manifest", r.URL.Path)
		json.NewEncoder(w).Encode(Manifest{
			DisplaySlug: "lobby-1",
			Revision:    7,
			Items: []Item{
				{ID: "a", DurationSeconds: 10, Content: Content{Type: ContentImage, Width: 100, Height: 100}},
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &fakeSigner{keyID: "key-1"})
	m, err := client.Fetch(context.Background(), "lobby-1")
	require.NoError(t, err)

	assert.Equal(t, "lobby-1", got.Get(signing.HeaderDisplaySlug))
	assert.Equal(t, "key-1", got.Get(signing.HeaderKeyID))
	assert.NotEmpty(t, got.Get(signing.HeaderTimestamp))
	assert.NotEmpty(t, got.Get(signing.HeaderNonce))
	assert.NotEmpty(t, got.Get(signing.HeaderBodyDigest))
	assert.NotEmpty(t, got.Get(signing.HeaderSignature))

	assert.Equal(t, int64(7), m.Revision)
	require.Len(t, m.Items, 1)
	assert.Equal(t, "a", m.Items[0].ID)
	assert.False(t, m.FetchedAt.IsZero())
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &fakeSigner{keyID: "key-1"})
	_, err := client.Fetch(context.Background(), "lobby-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestRegisterPostsPairingCodeAndPublicKey(t *testing.T) {
	var body RegisterParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/displays/register", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(RegisterResult{DisplayID: "d-42", DisplaySlug: "lobby-1"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &fakeSigner{keyID: "key-1"})
	result, err := client.Register(context.Background(), RegisterParams{
		PairingCode:  "ABCD-1234",
		PublicKeyPEM: "-----BEGIN PUBLIC KEY-----",
		KeyID:        "key-1",
		Fingerprint:  "fp",
		Output:       "primary",
	})
	require.NoError(t, err)

	assert.Equal(t, "ABCD-1234", body.PairingCode)
	assert.Equal(t, "key-1", body.KeyID)
	assert.Equal(t, "d-42", result.DisplayID)
	assert.Equal(t, "lobby-1", result.DisplaySlug)
}

func TestDeregisterTreatsNotFoundAsDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &fakeSigner{keyID: "key-1"})
	assert.NoError(t, client.Deregister(context.Background(), "lobby-1"))
}

func TestStreamToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/displays/lobby-1/stream-token", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-abc"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &fakeSigner{keyID: "key-1"})
	token, err := client.StreamToken(context.Background(), "lobby-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)
}

func TestStreamTokenEmptyBodyIsCorrupt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &fakeSigner{keyID: "key-1"})
	_, err := client.StreamToken(context.Background(), "lobby-1")
	assert.ErrorIs(t, err, sentinel.ErrCorrupt)
}

func TestSigningFailureRetriesOnceWithFreshEnvelope(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(Manifest{DisplaySlug: "lobby-1"})
	}))
	defer srv.Close()

	signer := &fakeSigner{keyID: "key-1", failures: 1}
	client := newTestClient(t, srv.URL, signer)

	_, err := client.Fetch(context.Background(), "lobby-1")
	require.NoError(t, err)
	assert.Equal(t, 2, signer.calls, "first attempt failed to sign, second succeeded")
	assert.Equal(t, 1, hits, "only the successfully signed attempt reached the server")
}

func TestSigningFailureTwiceIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the server without a signature")
	}))
	defer srv.Close()

	signer := &fakeSigner{keyID: "key-1", failures: 2}
	client := newTestClient(t, srv.URL, signer)

	_, err := client.Fetch(context.Background(), "lobby-1")
	assert.ErrorIs(t, err, signing.ErrSign)
}
