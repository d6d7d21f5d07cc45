// Package scratch assembles the full execution pipeline: preprocess the raw
// source, compile it against resolved references, load the image into a
// fresh isolation boundary, run it under the configured timeout, end the
// boundary, and hand the boundary's probe to the reclamation verifier.
package scratch

import (
	"context"
	"fmt"
	"time"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/app/metrics"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/boundary"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/compile"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/preprocess"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/reclaim"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/refs"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/runner"
	"github.com/dasudiy/scratchpadsharp/pkg/logger"
)

// Pipeline executes scratchpad source end to end. Safe for concurrent use:
// every call gets an independent boundary; the only shared state is the
// process-wide baseline reference cache and the read-only package cache.
type Pipeline struct {
	resolver    *refs.Resolver
	coordinator *runner.Coordinator
	verifier    *reclaim.Verifier
	log         *logger.Logger

	probingPaths []string
	manifestPath string
}

// Option customises a pipeline.
type Option func(*Pipeline)

// WithProbingPaths sets the directories each boundary's loader probes for
// managed and native dependencies.
func WithProbingPaths(paths ...string) Option {
	return func(p *Pipeline) { p.probingPaths = paths }
}

// WithDependencyManifest attaches a dependency manifest consulted ahead of
// the probing paths.
func WithDependencyManifest(path string) Option {
	return func(p *Pipeline) { p.manifestPath = path }
}

// NewPipeline wires a pipeline over the given resolver.
func NewPipeline(resolver *refs.Resolver, log *logger.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logger.NewDefault("pipeline")
	}
	p := &Pipeline{
		resolver:    resolver,
		coordinator: runner.New(log),
		verifier:    reclaim.New(log),
		log:         log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs one request through the whole pipeline. Compilation failures
// and runtime faults come back inside the result; the error return is
// reserved for fatal infrastructure problems (an unusable baseline, a
// cancelled context) where no run was attempted.
func (p *Pipeline) Execute(ctx context.Context, source string, cfg execution.Config, obs runner.Observers) (execution.Result, error) {
	if err := ctx.Err(); err != nil {
		return execution.Result{}, err
	}
	cfg = clampToDeadline(ctx, cfg)

	unit := preprocess.Process(source)

	references, err := p.resolver.Resolve(cfg)
	if err != nil {
		return execution.Result{}, err
	}

	outcome, err := compile.Compile(unit, references, cfg)
	if err != nil {
		return execution.Result{}, err
	}
	if outcome.Failed() {
		metrics.RecordCompileFailure()
		res := execution.Result{
			Success:     false,
			Error:       fmt.Sprintf("compilation failed with %d diagnostic(s)", len(outcome.Diagnostics)),
			Diagnostics: outcome.Diagnostics,
		}
		metrics.RecordExecution("compile_failed", res.Duration)
		return res, nil
	}

	loader := boundary.NewLoader(p.probingPaths...).
		WithResolved(referencePaths(references))
	if p.manifestPath != "" {
		loader = loader.WithManifest(p.manifestPath)
	}
	bnd, err := boundary.New(loader, p.log)
	if err != nil {
		return execution.Result{}, fmt.Errorf("create isolation boundary: %w", err)
	}

	// The boundary ends on every exit path; reclamation polling starts only
	// after the hold is severed and never blocks this call.
	defer func() {
		bnd.End()
		p.verifier.Verify(bnd.Probe())
	}()

	handle, err := bnd.Load(outcome.Image.Program())
	if err != nil {
		res := execution.Result{Success: false, Error: err.Error(), Cause: err}
		metrics.RecordExecution("load_failed", res.Duration)
		return res, nil
	}

	res := p.coordinator.Run(handle, outcome.EntryPoint, cfg, obs)
	metrics.RecordExecution(statusOf(res), res.Duration)
	return res, nil
}

// referencePaths pins resolved reference binaries by name so the boundary's
// loader hands a script exactly what its request resolved. Baseline entries
// carry no path and stay on the host-module fallback; for a multi-binary
// package the first binary under lib is the importable one.
func referencePaths(references []refs.Reference) map[string]string {
	pinned := make(map[string]string, len(references))
	for _, ref := range references {
		if ref.Path == "" {
			continue
		}
		if _, ok := pinned[ref.Name]; ok {
			continue
		}
		pinned[ref.Name] = ref.Path
	}
	return pinned
}

func statusOf(res execution.Result) string {
	if res.Success {
		return "success"
	}
	return "failed"
}

// clampToDeadline shrinks the configured timeout so an earlier context
// deadline wins. The context cannot preempt the run either; it only bounds
// the coordinator's wait the same way the timeout does.
func clampToDeadline(ctx context.Context, cfg execution.Config) execution.Config {
	deadline, ok := ctx.Deadline()
	if !ok {
		return cfg
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	if timeout := cfg.EffectiveTimeout(); remaining < timeout {
		cfg.Timeout = remaining
	}
	return cfg
}
