package ir

// Version constants for persisted formats and the generator.
const (
	// StateVersion is the version of the persisted artifact state file.
	StateVersion = 1

	// ReportVersion is the version of the JSON run report.
	ReportVersion = 1

	// EngineVersion is stamped into every run report as its generator.
	EngineVersion = "0.1.0"
)
