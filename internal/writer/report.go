package writer

import (
	"encoding/json"
	"time"

	"github.com/roach88/hostgen/internal/ir"
)

// Generator identifies this build in reports and run history.
const Generator = "hostgen/" + ir.EngineVersion

// HostStat is the render cost of one host in a pass.
type HostStat struct {
	ID         string   `json:"id"`
	Path       string   `json:"path"`
	Mode       string   `json:"mode"`
	Files      int      `json:"files"`
	Bytes      int64    `json:"bytes"`
	DurationMS float64  `json:"durationMs"`
	Reasons    []string `json:"reasons,omitempty"`
}

// ArtifactStat is the outcome of one output path in a pass.
type ArtifactStat struct {
	Path   string `json:"path"`
	Host   string `json:"host,omitempty"`
	Status string `json:"status"`
	Hash   string `json:"hash,omitempty"`
	Size   int64  `json:"size"`
}

// Timings are the aggregate phase durations of a pass in milliseconds.
type Timings struct {
	RenderMS float64 `json:"renderMs"`
	PlanMS   float64 `json:"planMs"`
	WriteMS  float64 `json:"writeMs"`
	TotalMS  float64 `json:"totalMs"`
}

// Report describes one render and persist pass.
type Report struct {
	Version   int            `json:"version"`
	Generator string         `json:"generator"`
	RunID     string         `json:"runId,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	StartedAt time.Time      `json:"startedAt"`
	Hosts     []HostStat     `json:"hosts"`
	Written   []string       `json:"written"`
	Skipped   []string       `json:"skipped"`
	Removed   []string       `json:"removed"`
	Artifacts []ArtifactStat `json:"artifacts,omitempty"`
	Timings   Timings        `json:"timings"`
}

// WriteReport writes r as indented JSON through an atomic write.
func WriteReport(path string, r *Report) error {
	r.Version = ir.ReportVersion
	if r.Generator == "" {
		r.Generator = Generator
	}
	if r.Hosts == nil {
		r.Hosts = []HostStat{}
	}
	for _, s := range []*[]string{&r.Written, &r.Skipped, &r.Removed} {
		if *s == nil {
			*s = []string{}
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return persistErr("write", path, err)
	}
	return WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
