// Package manifest talks to the backend display API: registration,
// manifest retrieval, and stream-token issuance. Every request carries the
// signed header set; the backend verifies against the registered public
// key.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"marquee/internal/platform/metrics"
	"marquee/internal/signing"
	"marquee/pkg/platform/sentinel"
)

// Client is the signed HTTP client for the backend display API.
type Client struct {
	baseURL string
	slug    string
	signer  signing.Signer
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient constructs a Client for one display identity. slug may be empty
// until registration completes; SetSlug installs it afterwards.
func NewClient(baseURL, slug string, signer signing.Signer, httpClient *http.Client, logger *slog.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		slug:    slug,
		signer:  signer,
		http:    httpClient,
		logger:  logger,
		metrics: m,
	}
}

// SetSlug installs the display slug once registration has assigned one.
func (c *Client) SetSlug(slug string) { c.slug = slug }

// RegisterParams carry everything the backend needs to bind this device to
// a display record.
type RegisterParams struct {
	PairingCode  string            `json:"pairingCode"`
	PublicKeyPEM string            `json:"publicKeyPem"`
	KeyID        string            `json:"keyId"`
	Fingerprint  string            `json:"displayFingerprint"`
	Output       string            `json:"displayOutput"`
	Environment  map[string]string `json:"environment,omitempty"`
}

// RegisterResult is the backend's view of the newly bound display.
type RegisterResult struct {
	DisplayID   string `json:"displayId"`
	DisplaySlug string `json:"displaySlug"`
}

// Register binds this device to a display using a one-time pairing code.
// Registration happens pre-identity, so the request is signed with the
// fresh keypair whose public half rides in the body; the backend verifies
// against that key before persisting it.
func (c *Client) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode registration: %w", err)
	}

	var result RegisterResult
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/displays/register", body, &result); err != nil {
		return nil, fmt.Errorf("register display: %w", err)
	}

	c.logger.InfoContext(ctx, "display registered",
		"display_id", result.DisplayID,
		"display_slug", result.DisplaySlug,
	)
	return &result, nil
}

// Deregister removes this display's registration server-side. A 404 is
// treated as already deregistered.
func (c *Client) Deregister(ctx context.Context, slug string) error {
	err := c.do(ctx, http.MethodDelete, c.baseURL+"/api/displays/"+slug, nil, nil)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deregister display: %w", err)
	}
	return nil
}

// Fetch retrieves the display's current manifest. The returned manifest
// entirely replaces whatever the caller held before; there is no patching.
func (c *Client) Fetch(ctx context.Context, slug string) (*Manifest, error) {
	if c.metrics != nil {
		c.metrics.ManifestFetches.Inc()
	}

	var m Manifest
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/api/displays/"+slug+"/manifest", nil, &m); err != nil {
		if c.metrics != nil {
			c.metrics.ManifestErrors.Inc()
		}
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	m.FetchedAt = time.Now().UTC()

	c.logger.DebugContext(ctx, "manifest fetched",
		"display_slug", slug,
		"revision", m.Revision,
		"items", len(m.Items),
	)
	return &m, nil
}

type streamTokenResponse struct {
	Token string `json:"token"`
}

// StreamToken requests a short-lived token for the query-parameter stream
// variant. The caller owns caching; every call here hits the backend.
func (c *Client) StreamToken(ctx context.Context, slug string) (string, error) {
	var resp streamTokenResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/displays/"+slug+"/stream-token", nil, &resp); err != nil {
		return "", fmt.Errorf("fetch stream token: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("fetch stream token: %w", sentinel.ErrCorrupt)
	}
	return resp.Token, nil
}

// do executes one signed request, decoding a JSON response into out when
// out is non-nil. Signing failures are retried exactly once with a fresh
// envelope; a second failure is fatal for the request.
func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		headers, err := signing.Headers(signing.Params{
			Method:      method,
			URL:         url,
			DisplaySlug: c.slug,
			Signer:      c.signer,
			Body:        body,
		})
		if err != nil {
			if c.metrics != nil {
				c.metrics.SigningFailures.Inc()
			}
			if errors.Is(err, signing.ErrSign) {
				lastErr = err
				continue
			}
			return err
		}
		if c.metrics != nil {
			c.metrics.SignedRequests.Inc()
		}
		return c.send(ctx, method, url, body, headers, out)
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, method, url string, body []byte, headers http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for name, values := range headers {
		req.Header[name] = values
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, url, sentinel.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
