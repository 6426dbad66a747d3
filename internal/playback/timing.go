// Package playback computes how long each manifest item stays on screen and
// drives the loop that advances through them. Content taller than the
// viewport earns extra seconds so it can fully scroll into view before the
// loop moves on.
package playback

import (
	"context"
	"math"

	"marquee/internal/manifest"
)

// DefaultScrollPixelsPerSecond is the scroll speed used when configuration
// supplies nothing usable.
const DefaultScrollPixelsPerSecond = 24.0

// minEffectiveSeconds floors every item's effective duration. An item with
// no usable base duration and no overflow would otherwise schedule
// back-to-back zero-delay ticks.
const minEffectiveSeconds = 1.0

// Viewport is the renderable area of the display output.
type Viewport struct {
	Width  int
	Height int
}

// Config tunes timing computation.
type Config struct {
	ScrollPixelsPerSecond float64
}

// ItemTiming is the derived per-item schedule entry.
type ItemTiming struct {
	ItemID                   string
	BaseDurationSeconds      float64
	OverflowExtraSeconds     float64
	EffectiveDurationSeconds float64
}

// HeightMeasurer reports the rendered height of an item at a target width,
// for content whose on-screen height cannot be derived from intrinsic
// dimensions alone (paged documents). Implementations report 0 on any
// rendering failure; the timing engine treats that as no overflow.
type HeightMeasurer interface {
	MeasureHeight(ctx context.Context, item manifest.Item, targetWidth int) (float64, error)
}

// OverflowExtraSeconds computes the additional on-screen time an item needs
// for its vertical overflow to scroll past. measuredHeight, when positive,
// overrides the aspect-fit estimate derived from intrinsic dimensions.
// All inputs are defensively clamped: this function cannot fail.
func OverflowExtraSeconds(item manifest.Item, viewport Viewport, cfg Config, measuredHeight float64) float64 {
	if !scrolls(item.Content.Type) {
		return 0
	}

	scaled := measuredHeight
	if !(scaled > 0) || math.IsInf(scaled, 0) {
		if item.Content.Width <= 0 || item.Content.Height <= 0 {
			return 0
		}
		scaled = float64(viewport.Width) / float64(item.Content.Width) * float64(item.Content.Height)
	}

	overflow := scaled - float64(viewport.Height)
	if !(overflow > 0) {
		return 0
	}

	pps := cfg.ScrollPixelsPerSecond
	if !(pps > 0) || math.IsInf(pps, 0) {
		pps = DefaultScrollPixelsPerSecond
	}
	return math.Ceil(overflow / pps)
}

// BuildTimings maps every manifest item to its runtime timing, preserving
// manifest order. measuredHeightByID may be nil.
func BuildTimings(items []manifest.Item, viewport Viewport, cfg Config, measuredHeightByID map[string]float64) []ItemTiming {
	timings := make([]ItemTiming, 0, len(items))
	for _, item := range items {
		base := item.DurationSeconds
		if !(base > 0) || math.IsInf(base, 0) {
			base = 0
		}
		extra := OverflowExtraSeconds(item, viewport, cfg, measuredHeightByID[item.ID])
		effective := base + extra
		if effective < minEffectiveSeconds {
			effective = minEffectiveSeconds
		}
		timings = append(timings, ItemTiming{
			ItemID:                   item.ID,
			BaseDurationSeconds:      base,
			OverflowExtraSeconds:     extra,
			EffectiveDurationSeconds: effective,
		})
	}
	return timings
}

// scrolls reports whether a content type is rendered as a scrollable page.
// Video manages its own duration and never scrolls.
func scrolls(t manifest.ContentType) bool {
	return t == manifest.ContentImage || t == manifest.ContentPDF
}

// NopMeasurer is a HeightMeasurer that always reports no measurable height,
// for deployments without a document renderer.
type NopMeasurer struct{}

func (NopMeasurer) MeasureHeight(context.Context, manifest.Item, int) (float64, error) {
	return 0, nil
}
