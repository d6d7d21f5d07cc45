// Package boundary provides the disposable isolation scope a compiled unit
// runs inside: a fresh engine runtime per execution, a boundary-scoped
// dependency loader, and a generation-tagged handle that fails loudly once
// the boundary has ended.
package boundary

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/dasudiy/scratchpadsharp/pkg/logger"
)

var (
	// ErrEnded is returned when loading into a boundary that was already ended.
	ErrEnded = errors.New("isolation boundary has ended")
	// ErrStaleHandle is returned when a handle outlives its boundary's
	// generation. Stale handles must never reach freed state silently.
	ErrStaleHandle = errors.New("stale unit handle: boundary generation has moved on")
)

// cell owns the engine runtime and everything loaded into it. It is
// deliberately a separate allocation: End drops the boundary's pointer to it,
// and the reclamation probe's finalizer fires once the collector frees it.
type cell struct {
	vm    *goja.Runtime
	units []*goja.Program
}

// Probe is the weak back-reference used for reclamation polling. It holds no
// strong reference to the boundary's state; holding one would itself prevent
// reclamation and invalidate the check.
type Probe struct {
	boundaryID string
	collected  atomic.Bool
}

// BoundaryID names the boundary this probe observes.
func (p *Probe) BoundaryID() string { return p.boundaryID }

// Collected reports whether the boundary's owned state has been reclaimed.
func (p *Probe) Collected() bool { return p.collected.Load() }

// Boundary is an ownership scope created fresh for every execution and never
// reused across two requests.
type Boundary struct {
	id     string
	loader *Loader
	log    *logger.Logger

	mu    sync.Mutex
	gen   uint64
	cell  *cell
	probe *Probe

	// natives keeps its own lock: native lookups happen while script code is
	// running, including during Load, which already holds mu.
	nativeMu sync.Mutex
	natives  []string
}

// New creates a boundary with its own runtime and dependency loader. The
// host bridge (__host__) is installed before anything is loaded so scaffold
// import bindings resolve.
func New(loader *Loader, log *logger.Logger) (*Boundary, error) {
	if loader == nil {
		loader = NewLoader()
	}
	if log == nil {
		log = logger.NewDefault("boundary")
	}

	b := &Boundary{
		id:     uuid.NewString(),
		loader: loader,
		log:    log,
		gen:    1,
		cell:   &cell{vm: goja.New()},
	}
	b.probe = &Probe{boundaryID: b.id}

	// The finalizer closes over the probe only, never the cell.
	probe := b.probe
	runtime.SetFinalizer(b.cell, func(*cell) {
		probe.collected.Store(true)
	})

	if err := b.installHost(); err != nil {
		return nil, fmt.Errorf("install host bridge: %w", err)
	}
	return b, nil
}

// ID returns the boundary identifier.
func (b *Boundary) ID() string { return b.id }

// Probe returns the weak back-reference for reclamation polling. Valid to
// hold after End.
func (b *Boundary) Probe() *Probe { return b.probe }

// UnitHandle is a tagged reference to a unit loaded into a boundary. The
// generation tag makes use-after-End a loud error instead of a silent reuse
// of freed state.
type UnitHandle struct {
	b   *Boundary
	gen uint64
}

// Runtime returns the engine runtime the unit was loaded into, or
// ErrStaleHandle once the boundary has ended.
func (h UnitHandle) Runtime() (*goja.Runtime, error) {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()
	if h.b.cell == nil || h.b.gen != h.gen {
		return nil, ErrStaleHandle
	}
	return h.b.cell.vm, nil
}

// Load runs a compiled program inside the boundary, which executes the
// scaffold's top-level statements and defines the holder type.
func (b *Boundary) Load(program *goja.Program) (UnitHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cell == nil {
		return UnitHandle{}, ErrEnded
	}
	if _, err := b.cell.vm.RunProgram(program); err != nil {
		return UnitHandle{}, fmt.Errorf("load unit into boundary %s: %w", b.id, err)
	}
	b.cell.units = append(b.cell.units, program)
	return UnitHandle{b: b, gen: b.gen}, nil
}

// End severs the boundary's hold on everything it loaded and bumps the
// generation so outstanding handles fail loudly. Safe to call more than
// once; it never blocks waiting for reclamation.
func (b *Boundary) End() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cell == nil {
		return
	}
	b.cell = nil
	b.gen++

	b.nativeMu.Lock()
	natives := b.natives
	b.natives = nil
	b.nativeMu.Unlock()

	// Native libraries outlive the boundary: nothing here unloads them from
	// the process. Leave a trace for leak hunting.
	if len(natives) > 0 {
		b.log.WithField("boundary_id", b.id).
			WithField("native_count", len(natives)).
			Debugf("boundary ended holding native library references")
	}
}

// installHost wires the __host__ bridge: use() for managed dependency
// resolution and native() for native library lookup. Both are scoped to this
// boundary's loader.
func (b *Boundary) installHost() error {
	vm := b.cell.vm
	host := vm.NewObject()

	if err := host.Set("use", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		return b.useManaged(vm, call.Arguments[0].String())
	}); err != nil {
		return err
	}

	if err := host.Set("native", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Null()
		}
		name := call.Arguments[0].String()
		path, ok := b.loader.ResolveNative(name)
		if !ok {
			return goja.Null()
		}
		b.trackNative(path)
		return vm.ToValue(path)
	}); err != nil {
		return err
	}

	return vm.Set("__host__", host)
}

// useManaged resolves one managed dependency: manifest and probing paths
// first, then the process-wide module registry that covers the baseline
// surface. Unresolvable names yield an empty namespace; the script surfaces
// its own error when it touches a member.
func (b *Boundary) useManaged(vm *goja.Runtime, name string) goja.Value {
	if path, ok := b.loader.ResolveManaged(name); ok {
		ns, err := b.loadManagedFile(vm, name, path)
		if err != nil {
			b.log.WithField("dependency", name).WithError(err).Warn("managed dependency failed to load")
			return vm.NewObject()
		}
		return ns
	}
	if install, ok := hostModule(name); ok {
		return install(vm)
	}
	b.log.WithField("dependency", name).Warn("managed dependency unresolved, binding empty namespace")
	return vm.NewObject()
}

// loadManagedFile evaluates a managed binary payload inside the boundary.
// The payload's completion value is the dependency's namespace.
func (b *Boundary) loadManagedFile(vm *goja.Runtime, name, path string) (goja.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	value, err := vm.RunScript(name, string(data))
	if err != nil {
		return nil, err
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return vm.NewObject(), nil
	}
	return value, nil
}

func (b *Boundary) trackNative(path string) {
	b.nativeMu.Lock()
	defer b.nativeMu.Unlock()
	b.natives = append(b.natives, path)
}

// Natives lists the native library paths resolved through this boundary.
func (b *Boundary) Natives() []string {
	b.nativeMu.Lock()
	defer b.nativeMu.Unlock()
	out := make([]string, len(b.natives))
	copy(out, b.natives)
	return out
}
