package runner

import (
	"fmt"

	"github.com/dop251/goja"
)

// installIO binds the run's output surface into the runtime: System.out /
// System.outLine, console.log, and the structured-value hook __host__.dump.
// It returns a restore function that reinstates whatever was bound before,
// so interception is strictly scoped to the one invocation.
func installIO(vm *goja.Runtime, sink *outputSink, obs Observers) (restore func(), err error) {
	global := vm.GlobalObject()
	prevSystem := global.Get("System")
	prevConsole := global.Get("console")

	system := vm.NewObject()
	if err := system.Set("out", func(call goja.FunctionCall) goja.Value {
		sink.Write(formatFragments(call.Arguments))
		return goja.Undefined()
	}); err != nil {
		return nil, err
	}
	if err := system.Set("outLine", func(call goja.FunctionCall) goja.Value {
		sink.Write(formatFragments(call.Arguments) + "\n")
		return goja.Undefined()
	}); err != nil {
		return nil, err
	}
	if err := global.Set("System", system); err != nil {
		return nil, err
	}

	console := vm.NewObject()
	if err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		sink.Write(formatFragments(call.Arguments) + "\n")
		return goja.Undefined()
	}); err != nil {
		return nil, err
	}
	if err := global.Set("console", console); err != nil {
		return nil, err
	}

	var prevDump goja.Value
	var host *goja.Object
	if hostValue := global.Get("__host__"); hostValue != nil && !goja.IsUndefined(hostValue) && !goja.IsNull(hostValue) {
		host = hostValue.ToObject(vm)
		prevDump = host.Get("dump")
		if err := host.Set("dump", func(call goja.FunctionCall) goja.Value {
			if obs.OnStructuredValue == nil {
				return goja.Undefined()
			}
			var value interface{}
			label := ""
			if len(call.Arguments) > 0 {
				value = call.Arguments[0].Export()
			}
			if len(call.Arguments) > 1 {
				label = call.Arguments[1].String()
			}
			obs.OnStructuredValue(value, label)
			return goja.Undefined()
		}); err != nil {
			return nil, err
		}
	}

	restore = func() {
		global.Set("System", orUndefined(prevSystem))
		global.Set("console", orUndefined(prevConsole))
		if host != nil {
			host.Set("dump", orUndefined(prevDump))
		}
	}
	return restore, nil
}

func orUndefined(v goja.Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	return v
}

func formatFragments(args []goja.Value) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]interface{}, len(args))
	for i, arg := range args {
		parts[i] = arg.Export()
	}
	out := fmt.Sprint(parts...)
	return out
}
