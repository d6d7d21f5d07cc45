package scratch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/refs"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/runner"
)

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	resolver := refs.NewResolver(refs.CacheDir{Root: t.TempDir()}, nil)
	return NewPipeline(resolver, nil)
}

func TestExecute_SimpleOutput(t *testing.T) {
	p := newPipeline(t)
	res, err := p.Execute(context.Background(), `System.out("hi");`,
		execution.Config{Timeout: 30 * time.Second}, runner.Observers{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success || res.Output != "hi" {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecute_DiagnosticsOnOriginalLines(t *testing.T) {
	p := newPipeline(t)
	src := "// note\nimport System;\nlet ok = 1\nlet broken = ;"
	res, err := p.Execute(context.Background(), src, execution.Config{}, runner.Observers{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected compilation failure")
	}
	if len(res.Diagnostics) == 0 {
		t.Fatal("diagnostics missing")
	}
	if res.Error == "" {
		t.Fatal("failed result must carry a non-empty error")
	}
	for _, d := range res.Diagnostics {
		if d.Line < 1 || d.Line > 4 {
			t.Fatalf("diagnostic outside original source coordinates: %+v", d)
		}
	}
}

func TestExecute_TimeoutReturnsPromptly(t *testing.T) {
	p := newPipeline(t)
	started := time.Now()
	res, err := p.Execute(context.Background(), `while(true){}`,
		execution.Config{Timeout: time.Second}, runner.Observers{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "timed out") {
		t.Fatalf("result = %+v", res)
	}
	if waited := time.Since(started); waited > 10*time.Second {
		t.Fatalf("call hung %s for an infinite loop", waited)
	}
}

func TestExecute_PartialOutputOnFault(t *testing.T) {
	p := newPipeline(t)
	src := `import Runtime.Core;
System.outLine("a");
System.outLine("b");
System.outLine("c");
Core.div(1, 0);`
	res, err := p.Execute(context.Background(), src, execution.Config{}, runner.Observers{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected fault")
	}
	if res.Output != "a\nb\nc\n" {
		t.Fatalf("partial output = %q", res.Output)
	}
	if !strings.Contains(res.Error, "division by zero") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestExecute_NoCrossRunStateLeak(t *testing.T) {
	p := newPipeline(t)
	src := `if (typeof globalThis.counter === 'undefined') { globalThis.counter = 0; }
globalThis.counter = globalThis.counter + 1;
System.out('' + globalThis.counter);`

	for i := 0; i < 2; i++ {
		res, err := p.Execute(context.Background(), src, execution.Config{}, runner.Observers{})
		if err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
		if !res.Success || res.Output != "1" {
			t.Fatalf("run %d leaked state: %+v", i, res)
		}
	}
}

func TestExecute_CachedPackageImportBindsNamespace(t *testing.T) {
	root := t.TempDir()
	libDir := filepath.Join(root, "greetkit", "1.0.0", "lib")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatal(err)
	}
	payload := `({ greet: function () { return "hello from kit"; } })`
	if err := os.WriteFile(filepath.Join(libDir, "GreetKit.bin"), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewPipeline(refs.NewResolver(refs.CacheDir{Root: root}, nil), nil)
	res, err := p.Execute(context.Background(),
		"import GreetKit;\nSystem.out(GreetKit.greet());",
		execution.Config{Packages: map[string]string{"GreetKit": "1.0.0"}},
		runner.Observers{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success || res.Output != "hello from kit" {
		t.Fatalf("cache-resolved package not bound: %+v", res)
	}
}

func TestExecute_ConcurrentCallers(t *testing.T) {
	p := newPipeline(t)
	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			res, err := p.Execute(context.Background(), `System.out("x");`,
				execution.Config{}, runner.Observers{})
			if err == nil && (!res.Success || res.Output != "x") {
				err = context.DeadlineExceeded
			}
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent execute: %v", err)
		}
	}
}

func TestExecute_ContextDeadlineClampsTimeout(t *testing.T) {
	p := newPipeline(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	res, err := p.Execute(ctx, `while(true){}`,
		execution.Config{Timeout: time.Hour}, runner.Observers{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "timed out") {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	p := newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Execute(ctx, "1;", execution.Config{}, runner.Observers{}); err == nil {
		t.Fatal("expected context error")
	}
}
