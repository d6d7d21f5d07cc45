package reclaim

import (
	"testing"
	"time"

	"github.com/dop251/goja"

	"github.com/dasudiy/scratchpadsharp/internal/scratch/boundary"
)

// endBoundary loads a trivial unit and ends the boundary, returning only the
// probe so no strong reference survives in the caller.
func endBoundary(t *testing.T) *boundary.Probe {
	t.Helper()
	b, err := boundary.New(nil, nil)
	if err != nil {
		t.Fatalf("new boundary: %v", err)
	}
	prog, err := goja.Compile("t", "var x = 1;", false)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := b.Load(prog); err != nil {
		t.Fatalf("load: %v", err)
	}
	probe := b.Probe()
	b.End()
	return probe
}

// The verifier must terminate within its budget whether or not the collector
// cooperates: it either reports collected or reports the bounded attempt
// count. It must never hang.
func TestVerify_TerminatesWithinBudget(t *testing.T) {
	probe := endBoundary(t)

	select {
	case report := <-New(nil).Verify(probe):
		if report.BoundaryID != probe.BoundaryID() {
			t.Fatalf("report for wrong boundary: %+v", report)
		}
		if report.Attempts < 1 || report.Attempts > 10 {
			t.Fatalf("attempts = %d, outside budget", report.Attempts)
		}
		if !report.Collected && report.Attempts != 10 {
			t.Fatalf("gave up before exhausting the budget: %+v", report)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("verifier hung past its budget")
	}
}

func TestVerify_DoesNotBlockCaller(t *testing.T) {
	probe := endBoundary(t)

	started := time.Now()
	ch := New(nil).Verify(probe)
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("Verify blocked the caller for %s", elapsed)
	}
	<-ch
}
