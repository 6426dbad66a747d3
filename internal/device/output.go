package device

// Output describes a physical display output.
type Output struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DetectOutputs enumerates the outputs available to the agent. Unattended
// hosts give us no portable way to walk the full output topology, so this
// reports exactly one entry for the active viewport; multi-output hardware
// relies on the operator override in config.
func DetectOutputs(name string, width, height int) []Output {
	if name == "" {
		name = "primary"
	}
	return []Output{{Name: name, Width: width, Height: height}}
}
