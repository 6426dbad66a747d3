package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"marquee/internal/signing"
)

//go:generate mockgen -source=transport.go -destination=mocks/mocks.go -package=mocks Transport

// Transport opens one physical connection to the push endpoint. The returned
// body delivers raw text/event-stream bytes; implementations must honor ctx
// cancellation on both connect and subsequent reads, which is what lets
// Close abort an in-flight attempt.
type Transport interface {
	Connect(ctx context.Context) (io.ReadCloser, error)
}

// HeaderTransport connects with signed request headers, for environments
// where the push endpoint authenticates displays directly. Headers are
// recomputed per attempt: nonce and timestamp never survive a retry.
type HeaderTransport struct {
	URL         string
	DisplaySlug string
	Signer      signing.Signer
	Client      *http.Client
}

func (t *HeaderTransport) Connect(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	headers, err := signing.Headers(signing.Params{
		Method:      http.MethodGet,
		URL:         t.URL,
		DisplaySlug: t.DisplaySlug,
		Signer:      t.Signer,
	})
	if err != nil {
		return nil, err
	}
	req.Header = headers
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("connect stream: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (t *HeaderTransport) httpClient() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}
