// Package reclaim verifies, after the fact, that an ended isolation boundary
// was actually collected. The check is empirical and advisory: it polls a
// weak back-reference under forced collection passes and reports what it
// observed. It never blocks an execution and never turns a stubborn boundary
// into a user-facing failure.
package reclaim

import (
	"runtime"
	"time"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/app/metrics"
	"github.com/dasudiy/scratchpadsharp/internal/app/system"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/boundary"
	"github.com/dasudiy/scratchpadsharp/pkg/logger"
)

const (
	// maxAttempts bounds the polling loop; the verifier always terminates
	// within this budget.
	maxAttempts = 10
	pollPause   = 20 * time.Millisecond
)

// Verifier polls boundary probes in the background.
type Verifier struct {
	log *logger.Logger
}

// New creates a verifier.
func New(log *logger.Logger) *Verifier {
	if log == nil {
		log = logger.NewDefault("reclaim")
	}
	return &Verifier{log: log}
}

// Verify starts a fire-and-forget poll of the probe and returns a channel
// that yields the single report when polling finishes. The caller of an
// execution is never blocked; reading the channel is optional.
func (v *Verifier) Verify(probe *boundary.Probe) <-chan execution.ReclamationReport {
	out := make(chan execution.ReclamationReport, 1)
	go func() {
		report := v.poll(probe)
		v.observe(report)
		out <- report
	}()
	return out
}

// poll forces a collection pass and a pause per attempt, rechecking the weak
// reference each time and stopping early on the first observed collection.
func (v *Verifier) poll(probe *boundary.Probe) execution.ReclamationReport {
	report := execution.ReclamationReport{BoundaryID: probe.BoundaryID()}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		report.Attempts = attempt
		runtime.GC()
		time.Sleep(pollPause)
		if probe.Collected() {
			report.Collected = true
			return report
		}
	}
	return report
}

// observe records the outcome. A boundary that resisted collection is a leak
// signal for operators, never an execution failure, so it logs as a warning
// together with a memory snapshot for correlation.
func (v *Verifier) observe(report execution.ReclamationReport) {
	metrics.ObserveReclamation(report.Collected, report.Attempts)

	log := v.log.WithField("boundary_id", report.BoundaryID).
		WithField("attempts", report.Attempts)
	if report.Collected {
		log.Debugf("boundary collected")
		return
	}

	snap := system.CaptureMemory()
	log.WithField("process_rss_bytes", snap.ProcessRSSBytes).
		WithField("host_used_percent", snap.HostUsedPercent).
		Warn("boundary still reachable after reclamation budget")
}
