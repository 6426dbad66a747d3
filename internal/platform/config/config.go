package config

import (
	"os"
	"strconv"
)

// Agent captures runtime configuration for a single display agent process.
type Agent struct {
	// BackendURL is the base URL of the signage backend API.
	BackendURL string
	// DataDir holds keypairs, registration records, and the machine-id cache.
	DataDir string
	// StatusAddr is the localhost listen address for the operator surface.
	StatusAddr string
	// KeyAlias is the logical identity this agent signs under.
	KeyAlias string
	// PairingCode is the one-time code that binds an unregistered device to
	// a display record. Empty once registered.
	PairingCode string
	// StoreSecret seals the on-disk key store. Required for the file-backed
	// custody store.
	StoreSecret string
	// OutputName overrides detected output naming for multi-output hardware.
	OutputName string
	// StreamVariant selects the push transport: "token" or "header".
	StreamVariant string
	// UserAgent identifies the agent build to the backend and feeds the
	// display fingerprint.
	UserAgent string
	// Language is the operator-facing locale, another fingerprint input.
	Language string

	ViewportWidth  int
	ViewportHeight int
	// ScrollPixelsPerSecond tunes how quickly overflowing content scrolls;
	// non-positive values fall back to the playback default.
	ScrollPixelsPerSecond float64
}

// FromEnv builds an Agent config from environment variables so main stays lean.
func FromEnv() Agent {
	cfg := Agent{
		BackendURL:            envOr("MARQUEE_BACKEND_URL", "http://localhost:8080"),
		DataDir:               envOr("MARQUEE_DATA_DIR", "/var/lib/marquee"),
		StatusAddr:            envOr("MARQUEE_STATUS_ADDR", "127.0.0.1:9180"),
		KeyAlias:              envOr("MARQUEE_KEY_ALIAS", "display"),
		PairingCode:           os.Getenv("MARQUEE_PAIRING_CODE"),
		StoreSecret:           os.Getenv("MARQUEE_STORE_SECRET"),
		OutputName:            os.Getenv("MARQUEE_OUTPUT_NAME"),
		StreamVariant:         envOr("MARQUEE_STREAM_VARIANT", "header"),
		UserAgent:             envOr("MARQUEE_USER_AGENT", "marquee-agent/1.0"),
		Language:              envOr("MARQUEE_LANGUAGE", envOr("LANG", "en-US")),
		ViewportWidth:         envInt("MARQUEE_VIEWPORT_WIDTH", 1920),
		ViewportHeight:        envInt("MARQUEE_VIEWPORT_HEIGHT", 1080),
		ScrollPixelsPerSecond: envFloat("MARQUEE_SCROLL_PX_PER_SEC", 0),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
