package ir

// Version constants for the value encoding and the runtime.
const (
	// IRVersion is the canonical value encoding version.
	IRVersion = "1"

	// EngineVersion is the dataspace runtime version.
	EngineVersion = "0.1.0"
)
