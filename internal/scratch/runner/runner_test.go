package runner

import (
	"strings"
	"testing"
	"time"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/boundary"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/compile"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/preprocess"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/refs"
)

func loadSource(t *testing.T, source string, cfg execution.Config) (*boundary.Boundary, boundary.UnitHandle) {
	t.Helper()
	base, err := refs.Baseline()
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	out, err := compile.Compile(preprocess.Process(source), base, cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if out.Failed() {
		t.Fatalf("unexpected diagnostics: %v", out.Diagnostics)
	}

	b, err := boundary.New(nil, nil)
	if err != nil {
		t.Fatalf("boundary: %v", err)
	}
	handle, err := b.Load(out.Image.Program())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return b, handle
}

func TestRun_SimpleOutput(t *testing.T) {
	cfg := execution.Config{Timeout: 30 * time.Second}
	b, handle := loadSource(t, `System.out("hi");`, cfg)
	defer b.End()

	res := New(nil).Run(handle, compile.EntryPoint, cfg, Observers{})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if res.Output != "hi" {
		t.Fatalf("output = %q, want %q", res.Output, "hi")
	}
}

func TestRun_StreamsFragmentsBeforeCompletion(t *testing.T) {
	cfg := execution.Config{Timeout: 10 * time.Second}
	b, handle := loadSource(t, `System.outLine("one");System.outLine("two");`, cfg)
	defer b.End()

	var streamed []string
	res := New(nil).Run(handle, compile.EntryPoint, cfg, Observers{
		OnOutputFragment: func(text string) { streamed = append(streamed, text) },
	})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if len(streamed) != 2 {
		t.Fatalf("streamed fragments = %v, want one per write", streamed)
	}
	if strings.Join(streamed, "") != res.Output {
		t.Fatalf("streamed copy %q diverges from buffered copy %q", strings.Join(streamed, ""), res.Output)
	}
}

func TestRun_PartialOutputPreservedOnFault(t *testing.T) {
	cfg := execution.Config{Timeout: 10 * time.Second}
	src := `System.outLine("line 1");
System.outLine("line 2");
System.outLine("line 3");
var Core = __host__.use('Runtime.Core');
Core.div(1, 0);`
	b, handle := loadSource(t, src, cfg)
	defer b.End()

	res := New(nil).Run(handle, compile.EntryPoint, cfg, Observers{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Output != "line 1\nline 2\nline 3\n" {
		t.Fatalf("partial output = %q", res.Output)
	}
	if !strings.Contains(res.Error, "division by zero") {
		t.Fatalf("error does not reference the division fault: %q", res.Error)
	}
}

func TestRun_TimeoutReturnsPromptly(t *testing.T) {
	cfg := execution.Config{Timeout: 300 * time.Millisecond}
	b, handle := loadSource(t, `System.out("before loop");while(true){}`, cfg)
	defer b.End()

	started := time.Now()
	res := New(nil).Run(handle, compile.EntryPoint, cfg, Observers{})
	waited := time.Since(started)

	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Fatalf("error = %q, want timeout message", res.Error)
	}
	if !strings.Contains(res.Error, cfg.Timeout.String()) {
		t.Fatalf("error = %q, want configured duration in message", res.Error)
	}
	if waited > 5*time.Second {
		t.Fatalf("coordinator hung for %s instead of abandoning the wait", waited)
	}
	if res.Output != "before loop" {
		t.Fatalf("partial output lost on timeout: %q", res.Output)
	}
}

func TestRun_ConnectionStringInjected(t *testing.T) {
	cfg := execution.Config{Timeout: 10 * time.Second, ConnectionString: "db://test"}
	b, handle := loadSource(t, `System.out(Scratchpad.ConnectionString);`, cfg)
	defer b.End()

	res := New(nil).Run(handle, compile.EntryPoint, cfg, Observers{})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if res.Output != "db://test" {
		t.Fatalf("output = %q", res.Output)
	}
}

func TestRun_ReturnDescriptor(t *testing.T) {
	cfg := execution.Config{Timeout: 10 * time.Second}
	b, handle := loadSource(t, `return 6 * 7;`, cfg)
	defer b.End()

	res := New(nil).Run(handle, compile.EntryPoint, cfg, Observers{})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if got, ok := res.ReturnValue.(int64); !ok || got != 42 {
		t.Fatalf("return descriptor = %#v, want 42", res.ReturnValue)
	}
}

func TestRun_StructuredValueHook(t *testing.T) {
	cfg := execution.Config{Timeout: 10 * time.Second}
	b, handle := loadSource(t, `__host__.dump({a: 1}, "label");`, cfg)
	defer b.End()

	var gotLabel string
	var gotValue interface{}
	res := New(nil).Run(handle, compile.EntryPoint, cfg, Observers{
		OnStructuredValue: func(value interface{}, label string) {
			gotValue, gotLabel = value, label
		},
	})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if gotLabel != "label" || gotValue == nil {
		t.Fatalf("structured hook not reached: value=%v label=%q", gotValue, gotLabel)
	}
}

func TestRun_MissingEntryIsDistinctError(t *testing.T) {
	cfg := execution.Config{Timeout: 10 * time.Second}
	b, handle := loadSource(t, `1;`, cfg)
	defer b.End()

	res := New(nil).Run(handle, "Scratchpad.NoSuchMethod", cfg, Observers{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "internal scaffold error") {
		t.Fatalf("error = %q, want a scaffold-defect message", res.Error)
	}

	res = New(nil).Run(handle, "NoSuchHolder.Main", cfg, Observers{})
	if !strings.Contains(res.Error, "internal scaffold error") {
		t.Fatalf("error = %q, want a scaffold-defect message", res.Error)
	}
}

func TestRun_StaleHandleFailsLoudly(t *testing.T) {
	cfg := execution.Config{Timeout: 10 * time.Second}
	b, handle := loadSource(t, `1;`, cfg)
	b.End()

	res := New(nil).Run(handle, compile.EntryPoint, cfg, Observers{})
	if res.Success || !strings.Contains(res.Error, "boundary") {
		t.Fatalf("stale handle not rejected: %+v", res)
	}
}

// Two sequential executions that mutate same-named global state never observe
// each other's value: every run gets a fresh boundary.
func TestRun_IsolationAcrossRuns(t *testing.T) {
	cfg := execution.Config{Timeout: 10 * time.Second}
	src := `if (typeof globalThis.counter === 'undefined') { globalThis.counter = 0; }
globalThis.counter = globalThis.counter + 1;
System.out('' + globalThis.counter);`

	for i := 0; i < 2; i++ {
		b, handle := loadSource(t, src, cfg)
		res := New(nil).Run(handle, compile.EntryPoint, cfg, Observers{})
		b.End()
		if !res.Success {
			t.Fatalf("run %d failed: %s", i, res.Error)
		}
		if res.Output != "1" {
			t.Fatalf("run %d observed %q, state leaked across boundaries", i, res.Output)
		}
	}
}
