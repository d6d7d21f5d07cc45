// Package execution defines the domain model for one scratchpad run: the
// request submitted by a caller, the compilation outcome, the execution
// result, and the reclamation report produced after the run's isolation
// boundary is torn down.
package execution

import "time"

// DefaultTimeout bounds runs whose config does not specify one.
const DefaultTimeout = 30 * time.Second

// Config carries the per-request execution settings. It is immutable once a
// request has been submitted.
type Config struct {
	// DefaultImports are merged, in order, ahead of imports extracted from
	// the user source.
	DefaultImports []string `json:"default_imports,omitempty" yaml:"default_imports"`

	// Packages maps package name to the version whose binaries must be
	// resolved from the local package cache.
	Packages map[string]string `json:"packages,omitempty" yaml:"packages"`

	// ConnectionString is injected into the compiled unit's holder type
	// before the entry point is invoked. May be empty.
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string"`

	// Timeout bounds how long the coordinator waits for the entry point.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

// EffectiveTimeout returns the configured timeout or the default.
func (c Config) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Request is a single submission of source text for execution.
type Request struct {
	Source string `json:"source"`
	Config Config `json:"config"`
}

// Severity classifies a compiler diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one compiler message, positioned in the coordinates of the
// original user source, never in scaffold coordinates.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
}

// Result is the normalized outcome of one run. If Success is false, Error is
// non-empty. Output always holds whatever the script wrote before it
// completed, faulted, or timed out.
type Result struct {
	Success     bool          `json:"success"`
	Output      string        `json:"output"`
	ReturnValue interface{}   `json:"return_value,omitempty"`
	Error       string        `json:"error,omitempty"`
	Cause       error         `json:"-"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// ReclamationReport records whether an ended boundary was observed to be
// collected within the polling budget. It is observational only and never
// affects a Result.
type ReclamationReport struct {
	BoundaryID string `json:"boundary_id"`
	Attempts   int    `json:"attempts"`
	Collected  bool   `json:"collected"`
}

// Record is a persisted run-history row.
type Record struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	Success     bool          `json:"success"`
	Output      string        `json:"output"`
	Error       string        `json:"error,omitempty"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}
