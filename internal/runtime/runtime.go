// Package runtime ties the agent together: it registers the display,
// keeps the manifest current off the push channel, and drives the playback
// loop. Everything here is orchestration; the mechanics live in the domain
// packages.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"marquee/internal/custody"
	"marquee/internal/device"
	"marquee/internal/manifest"
	"marquee/internal/playback"
	"marquee/internal/stream"
	streammetrics "marquee/internal/stream/metrics"
)

// Provisioning states surfaced to the operator.
const (
	ProvisioningReady    = "ready"
	ProvisioningRequired = "provision this display"
)

// Backend is the slice of the display API the runtime needs.
//
//go:generate mockgen -source=runtime.go -destination=mocks/mocks.go -package=mocks Backend
type Backend interface {
	SetSlug(slug string)
	Register(ctx context.Context, params manifest.RegisterParams) (*manifest.RegisterResult, error)
	Fetch(ctx context.Context, slug string) (*manifest.Manifest, error)
}

// Config carries the per-display settings the runtime operates under.
type Config struct {
	KeyAlias    string
	PairingCode string
	OutputName  string
	UserAgent   string
	Language    string
	Viewport    playback.Viewport
	Timing      playback.Config
}

// Deps are the collaborators the runtime orchestrates.
type Deps struct {
	Logger        *slog.Logger
	Keys          *custody.Service
	MachineIDs    *device.MachineIDResolver
	Registrations *device.RegistrationStore
	Backend       Backend
	// NewTransport builds the push-channel transport once the display slug
	// is known; registration has to complete before a stream can open.
	NewTransport  func(slug string) stream.Transport
	StreamMetrics *streammetrics.Metrics
	Measurer      playback.HeightMeasurer
	Clock         playback.Clock
	Config        Config
}

// Snapshot is the read-only state exposed on the status surface.
type Snapshot struct {
	Provisioning      string       `json:"provisioning"`
	DisplaySlug       string       `json:"display_slug,omitempty"`
	Stream            stream.State `json:"stream"`
	CurrentItemIndex  int          `json:"current_item_index"`
	ManifestItems     int          `json:"manifest_items"`
	ManifestRevision  int64        `json:"manifest_revision"`
	LastManifestFetch time.Time    `json:"last_manifest_fetch,omitzero"`
}

// Runtime is the agent's top-level loop.
type Runtime struct {
	deps   Deps
	player *playback.Player

	refreshCh chan struct{}

	mu   sync.RWMutex
	snap Snapshot
}

// New wires the runtime. Run must be called to start it.
func New(deps Deps) *Runtime {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Measurer == nil {
		deps.Measurer = playback.NopMeasurer{}
	}

	r := &Runtime{
		deps:      deps,
		refreshCh: make(chan struct{}, 1),
		snap:      Snapshot{Provisioning: ProvisioningRequired, Stream: stream.StateClosed},
	}
	r.player = playback.NewPlayer(deps.Clock, r.onTick)
	return r
}

// State returns the current runtime snapshot.
func (r *Runtime) State() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Run registers the display if needed, then serves the playback loop until
// ctx is cancelled. A display with no resolvable identity or no pairing
// code parks in the "provision this display" state instead of retrying
// forever; the status surface keeps reporting it.
func (r *Runtime) Run(ctx context.Context) error {
	reg, err := r.ensureRegistered(ctx)
	if err != nil {
		r.deps.Logger.WarnContext(ctx, "display not provisioned", "error", err)
		<-ctx.Done()
		return nil
	}
	r.deps.Backend.SetSlug(reg.DisplaySlug)
	r.update(func(s *Snapshot) {
		s.Provisioning = ProvisioningReady
		s.DisplaySlug = reg.DisplaySlug
	})

	events := stream.New(r.deps.NewTransport(reg.DisplaySlug), stream.Options{
		OnEvent:       r.onStreamEvent,
		OnStateChange: r.onStreamState,
		Logger:        r.deps.Logger,
		Metrics:       r.deps.StreamMetrics,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.refreshLoop(ctx, reg.DisplaySlug)
	})

	events.Start(ctx)
	err = g.Wait()
	events.Close()
	r.player.Stop()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ensureRegistered resolves the device identity and returns the active
// registration record, registering against the backend when none exists.
func (r *Runtime) ensureRegistered(ctx context.Context) (*device.RegistrationRecord, error) {
	cfg := r.deps.Config

	machineID, err := r.deps.MachineIDs.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve machine id: %w", err)
	}

	outputs := device.DetectOutputs(cfg.OutputName, cfg.Viewport.Width, cfg.Viewport.Height)
	output := outputs[0]
	env := device.NewEnvironment(cfg.UserAgent, cfg.Language)
	fingerprint := device.Fingerprint(device.FingerprintInputs{
		MachineID:  machineID,
		OutputName: output.Name,
		UserAgent:  cfg.UserAgent,
		Language:   cfg.Language,
	})

	pair, err := r.deps.Keys.GetOrCreate(ctx, cfg.KeyAlias)
	if err != nil {
		return nil, fmt.Errorf("obtain keypair: %w", err)
	}

	if existing := r.deps.Registrations.All(); len(existing) > 0 {
		record := existing[0]
		if record.DisplayFingerprint != fingerprint {
			r.deps.Logger.WarnContext(ctx, "display fingerprint drifted since registration",
				"display_slug", record.DisplaySlug,
				"registered", record.DisplayFingerprint,
				"current", fingerprint,
			)
		}
		if record.KeyID != pair.KeyID() {
			return nil, fmt.Errorf("registered key %s no longer in custody", record.KeyID)
		}
		return &record, nil
	}

	if cfg.PairingCode == "" {
		return nil, errors.New("no registration on record and no pairing code configured")
	}

	pem, err := pair.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("export public key: %w", err)
	}
	result, err := r.deps.Backend.Register(ctx, manifest.RegisterParams{
		PairingCode:  cfg.PairingCode,
		PublicKeyPEM: pem,
		KeyID:        pair.KeyID(),
		Fingerprint:  fingerprint,
		Output:       output.Name,
		Environment: map[string]string{
			"browser":  env.Browser,
			"os":       env.OS,
			"platform": env.Platform,
			"language": env.Language,
		},
	})
	if err != nil {
		return nil, err
	}

	record := device.RegistrationRecord{
		DisplayID:          result.DisplayID,
		DisplaySlug:        result.DisplaySlug,
		KeyID:              pair.KeyID(),
		KeyAlias:           pair.Alias(),
		DisplayFingerprint: fingerprint,
		DisplayOutput:      output,
		Environment:        env,
		RegisteredAt:       time.Now().UTC(),
	}
	if err := r.deps.Registrations.Save(record); err != nil {
		return nil, fmt.Errorf("persist registration: %w", err)
	}
	return &record, nil
}

// refreshLoop performs the initial manifest load and then re-fetches on
// every push signal. Signals arriving during a fetch coalesce into one
// followup fetch.
func (r *Runtime) refreshLoop(ctx context.Context, slug string) error {
	r.refresh(ctx, slug)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.refreshCh:
			r.refresh(ctx, slug)
		}
	}
}

// refresh pulls the manifest and swaps the rebuilt timings in at the next
// tick boundary. Fetch failures keep the current manifest on screen; the
// next push signal retries.
func (r *Runtime) refresh(ctx context.Context, slug string) {
	m, err := r.deps.Backend.Fetch(ctx, slug)
	if err != nil {
		if ctx.Err() == nil {
			r.deps.Logger.WarnContext(ctx, "manifest refresh failed", "error", err)
		}
		return
	}

	timings := playback.BuildTimings(m.Items, r.deps.Config.Viewport, r.deps.Config.Timing, r.measureHeights(ctx, m.Items))
	r.player.Swap(timings)
	if !r.player.Active() {
		r.player.Start()
	}

	r.update(func(s *Snapshot) {
		s.ManifestItems = len(m.Items)
		s.ManifestRevision = m.Revision
		s.LastManifestFetch = m.FetchedAt
	})
	r.deps.Logger.InfoContext(ctx, "manifest applied",
		"display_slug", slug,
		"revision", m.Revision,
		"items", len(m.Items),
	)
}

// measureHeights asks the renderer for the on-screen height of paged
// content. Measurement failures mean no overflow extension for that item.
func (r *Runtime) measureHeights(ctx context.Context, items []manifest.Item) map[string]float64 {
	var heights map[string]float64
	for _, item := range items {
		if item.Content.Type != manifest.ContentPDF {
			continue
		}
		h, err := r.deps.Measurer.MeasureHeight(ctx, item, r.deps.Config.Viewport.Width)
		if err != nil || h <= 0 {
			continue
		}
		if heights == nil {
			heights = make(map[string]float64)
		}
		heights[item.ID] = h
	}
	return heights
}

func (r *Runtime) onStreamEvent(eventType, data string) {
	switch eventType {
	case "manifest_updated", "schedule_updated", "playlist_updated", "device_refresh_requested":
		select {
		case r.refreshCh <- struct{}{}:
		default:
		}
	}
}

func (r *Runtime) onStreamState(state stream.State) {
	r.update(func(s *Snapshot) { s.Stream = state })
}

func (r *Runtime) onTick(index int) {
	r.update(func(s *Snapshot) { s.CurrentItemIndex = index })
}

func (r *Runtime) update(mutate func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(&r.snap)
}
