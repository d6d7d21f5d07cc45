package boundary

import (
	"time"

	"github.com/dop251/goja"
)

// hostModules is the process-wide registry backing the baseline reference
// surface. Populated at init, read-only afterwards; safe for concurrent
// readers. It is the "already loaded platform-wide" tier the per-boundary
// loader falls through to.
var hostModules = map[string]func(vm *goja.Runtime) goja.Value{
	"Runtime.Core":        coreModule,
	"Runtime.Collections": collectionsModule,
	"Runtime.Tasks":       tasksModule,
	"Scratchpad.Hooks":    hooksModule,
}

func hostModule(name string) (func(vm *goja.Runtime) goja.Value, bool) {
	install, ok := hostModules[name]
	return install, ok
}

func coreModule(vm *goja.Runtime) goja.Value {
	obj := vm.NewObject()
	obj.Set("now", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(time.Now().UTC().Format(time.RFC3339Nano))
	})
	obj.Set("version", vm.ToValue("1"))
	obj.Set("div", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(vm.NewTypeError("div expects two arguments"))
		}
		a := call.Arguments[0].ToInteger()
		b := call.Arguments[1].ToInteger()
		if b == 0 {
			panic(vm.ToValue("division by zero"))
		}
		return vm.ToValue(a / b)
	})
	return obj
}

func collectionsModule(vm *goja.Runtime) goja.Value {
	obj := vm.NewObject()
	obj.Set("range", func(call goja.FunctionCall) goja.Value {
		n := 0
		if len(call.Arguments) > 0 {
			n = int(call.Arguments[0].ToInteger())
		}
		out := make([]int, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, i)
		}
		return vm.ToValue(out)
	})
	return obj
}

func tasksModule(vm *goja.Runtime) goja.Value {
	obj := vm.NewObject()
	obj.Set("delayMillis", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			d := call.Arguments[0].ToInteger()
			if d > 0 {
				time.Sleep(time.Duration(d) * time.Millisecond)
			}
		}
		return goja.Undefined()
	})
	return obj
}

// hooksModule exposes the host's result-capture surface. dump delegates to
// the live __host__.dump binding so the coordinator's per-run observer is
// reached whether a unit calls Hooks.dump or __host__.dump; outside a
// coordinated run the default binding is a no-op.
func hooksModule(vm *goja.Runtime) goja.Value {
	obj := vm.NewObject()
	obj.Set("dump", func(call goja.FunctionCall) goja.Value {
		hostValue := vm.GlobalObject().Get("__host__")
		if hostValue == nil || goja.IsUndefined(hostValue) || goja.IsNull(hostValue) {
			return goja.Undefined()
		}
		dump, ok := goja.AssertFunction(hostValue.ToObject(vm).Get("dump"))
		if !ok {
			return goja.Undefined()
		}
		res, err := dump(goja.Undefined(), call.Arguments...)
		if err != nil {
			panic(err)
		}
		return res
	})
	return obj
}
