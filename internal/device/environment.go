package device

import "github.com/mssola/useragent"

// Environment is the normalized host environment reported alongside a
// registration and on the status surface. Operators use it to spot stale
// agent builds across a fleet.
type Environment struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	Platform       string `json:"platform"`
	Mobile         bool   `json:"mobile"`
	RawUserAgent   string `json:"raw_user_agent"`
	Language       string `json:"language"`
}

// NewEnvironment parses the agent's user-agent string into structured
// fields. Unparseable strings still yield a usable record with the raw
// value preserved.
func NewEnvironment(rawUA, language string) Environment {
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	return Environment{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Platform:       ua.Platform(),
		Mobile:         ua.Mobile(),
		RawUserAgent:   rawUA,
		Language:       language,
	}
}
