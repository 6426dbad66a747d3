package manifest

import "time"

// ContentType enumerates the renderable content kinds.
type ContentType string

const (
	ContentImage ContentType = "IMAGE"
	ContentVideo ContentType = "VIDEO"
	ContentPDF   ContentType = "PDF"
)

// Content describes the media behind a manifest item. Width and Height are
// intrinsic pixel dimensions as reported by the backend.
type Content struct {
	Type   ContentType `json:"type"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	URL    string      `json:"url"`
}

// Item is one entry in a display's manifest. Immutable once received: a new
// manifest entirely replaces the prior one, there is no partial patching.
type Item struct {
	ID              string  `json:"id"`
	DurationSeconds float64 `json:"duration"`
	Content         Content `json:"content"`
}

// Manifest is the ordered list of items a display is currently instructed
// to play.
type Manifest struct {
	DisplaySlug string    `json:"display_slug"`
	Revision    int64     `json:"revision"`
	Items       []Item    `json:"items"`
	FetchedAt   time.Time `json:"-"`
}
