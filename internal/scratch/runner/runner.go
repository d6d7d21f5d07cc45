// Package runner coordinates one execution: it locates the entry point
// inside a loaded unit, injects configuration, intercepts output in real
// time, bounds the wait with the configured timeout, and normalizes every
// outcome into a single result shape.
package runner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/boundary"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/compile"
	"github.com/dasudiy/scratchpadsharp/pkg/logger"
)

// Observers are the presentation collaborators notified during a run. Both
// are optional and both run on the execution's goroutine.
type Observers struct {
	// OnOutputFragment receives each output fragment as it is written, before
	// the run completes.
	OnOutputFragment func(text string)
	// OnStructuredValue receives rich values handed to the host dump hook.
	OnStructuredValue func(value interface{}, label string)
}

// Coordinator drives entry-point invocation inside a boundary.
type Coordinator struct {
	log *logger.Logger
}

// New creates a coordinator.
func New(log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NewDefault("runner")
	}
	return &Coordinator{log: log}
}

// Run invokes the unit's entry point under cfg's timeout and returns the
// normalized result. The timeout bounds only the coordinator's wait: it
// cannot preempt script that is already running, so on expiry the wait is
// abandoned, a best-effort engine interrupt is issued so the orphaned work
// terminates eventually, and the caller gets a prompt timeout failure with
// whatever output arrived so far.
func (c *Coordinator) Run(handle boundary.UnitHandle, entryPoint string, cfg execution.Config, obs Observers) execution.Result {
	started := time.Now()
	fail := func(msg string, cause error, output string) execution.Result {
		return execution.Result{
			Success:  false,
			Output:   output,
			Error:    msg,
			Cause:    cause,
			Duration: time.Since(started),
		}
	}

	vm, err := handle.Runtime()
	if err != nil {
		return fail(fmt.Sprintf("boundary unavailable: %v", err), err, "")
	}

	holderName, methodName, err := splitEntryPoint(entryPoint)
	if err != nil {
		return fail(err.Error(), err, "")
	}

	// A missing holder or entry method after a successful compilation is a
	// scaffold-construction defect, reported distinctly so it is never
	// mistaken for a user code error.
	holderValue := vm.Get(holderName)
	if holderValue == nil || goja.IsUndefined(holderValue) || goja.IsNull(holderValue) {
		err := fmt.Errorf("internal scaffold error: holder type %q not found in loaded unit", holderName)
		return fail(err.Error(), err, "")
	}
	holder := holderValue.ToObject(vm)

	entryFn, ok := goja.AssertFunction(holder.Get(methodName))
	if !ok {
		err := fmt.Errorf("internal scaffold error: entry method %q not found on holder %q", methodName, holderName)
		return fail(err.Error(), err, "")
	}

	if err := holder.Set(compile.ConnectionStringProperty, cfg.ConnectionString); err != nil {
		return fail(fmt.Sprintf("inject connection string: %v", err), err, "")
	}

	sink := newOutputSink(obs.OnOutputFragment)
	restore, err := installIO(vm, sink, obs)
	if err != nil {
		return fail(fmt.Sprintf("install output interceptor: %v", err), err, "")
	}

	timeout := cfg.EffectiveTimeout()

	type callOutcome struct {
		value goja.Value
		err   error
	}
	done := make(chan callOutcome, 1)
	go func() {
		// Restore must run on this goroutine: the runtime is not safe for
		// concurrent use, and on timeout the coordinator returns while this
		// call may still be executing. The defer guarantees restoration on
		// completion, exception, and panic alike.
		defer restore()
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: fmt.Errorf("entry point panicked: %v", r)}
			}
		}()
		value, err := entryFn(goja.Undefined())
		done <- callOutcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			msg, cause := unwrapFault(out.err)
			return fail(msg, cause, sink.Snapshot())
		}
		descriptor, rejection := settle(out.value)
		if rejection != "" {
			return fail(rejection, nil, sink.Snapshot())
		}
		return execution.Result{
			Success:     true,
			Output:      sink.Snapshot(),
			ReturnValue: descriptor,
			Duration:    time.Since(started),
		}

	case <-time.After(timeout):
		vm.Interrupt("execution timed out")
		c.log.WithField("timeout", timeout.String()).Warn("execution abandoned after timeout")
		err := fmt.Errorf("execution timed out after %s", timeout)
		return fail(err.Error(), err, sink.Snapshot())
	}
}

func splitEntryPoint(entryPoint string) (holder, method string, err error) {
	idx := strings.LastIndex(entryPoint, ".")
	if idx <= 0 || idx == len(entryPoint)-1 {
		return "", "", fmt.Errorf("malformed entry point %q", entryPoint)
	}
	return entryPoint[:idx], entryPoint[idx+1:], nil
}

// settle unwraps the awaitable returned by the async entry method. A promise
// that is still pending cannot make progress once the call stack has drained
// (the engine has no host event loop), so it yields no descriptor.
func settle(value goja.Value) (descriptor interface{}, rejection string) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, ""
	}
	if p, ok := value.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return exportDescriptor(p.Result()), ""
		case goja.PromiseStateRejected:
			return nil, fmt.Sprintf("unhandled rejection: %s", p.Result().String())
		default:
			return nil, ""
		}
	}
	return exportDescriptor(value), ""
}

func exportDescriptor(value goja.Value) interface{} {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil
	}
	return value.Export()
}

// unwrapFault peels one level of invocation wrapping so the surfaced message
// is the innermost failure, keeping the original error as the cause.
func unwrapFault(err error) (string, error) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String(), err
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprintf("execution interrupted: %v", interrupted.Value()), err
	}
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error(), err
	}
	return err.Error(), err
}
