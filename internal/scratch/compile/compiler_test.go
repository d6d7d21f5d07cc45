package compile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/preprocess"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/refs"
)

func baselineRefs(t *testing.T) []refs.Reference {
	t.Helper()
	base, err := refs.Baseline()
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	return base
}

func TestCompile_Success(t *testing.T) {
	unit := preprocess.Process("let x = 1;\nx + 1;")
	out, err := Compile(unit, baselineRefs(t), execution.Config{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if out.Failed() {
		t.Fatalf("unexpected diagnostics: %v", out.Diagnostics)
	}
	if out.EntryPoint != "Scratchpad.Main" {
		t.Fatalf("entry point = %q", out.EntryPoint)
	}
	if len(out.Image.Bytes()) == 0 || out.Image.Program() == nil {
		t.Fatal("image payload missing")
	}
}

func TestCompile_RequiresReferences(t *testing.T) {
	if _, err := Compile(preprocess.Process("1;"), nil, execution.Config{}); err == nil {
		t.Fatal("expected error without references")
	}
}

func TestCompile_DiagnosticOnOriginalLine(t *testing.T) {
	// Two leading lines are stripped; the syntax error sits on original line 4.
	src := "// comment\nimport System;\nlet a = 1;\nlet b = ;"
	unit := preprocess.Process(src)
	out, err := Compile(unit, baselineRefs(t), execution.Config{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !out.Failed() {
		t.Fatal("expected diagnostics")
	}
	d := out.Diagnostics[0]
	if d.Line != 4 {
		t.Fatalf("diagnostic line = %d, want 4 (original coordinates)", d.Line)
	}
	if d.Severity != execution.SeverityError || d.Code == "" {
		t.Fatalf("diagnostic incomplete: %+v", d)
	}
}

// Property over generated leading blocks: an error on user-code line K is
// reported as K regardless of how many import/comment/blank lines precede it.
func TestCompile_LineOffsetInvariant(t *testing.T) {
	for leading := 0; leading < 8; leading++ {
		var b strings.Builder
		for i := 0; i < leading; i++ {
			switch i % 3 {
			case 0:
				b.WriteString("// filler\n")
			case 1:
				b.WriteString("\n")
			default:
				fmt.Fprintf(&b, "import Pkg%d;\n", i)
			}
		}
		b.WriteString("let ok = 1;\n")  // user line leading+1
		b.WriteString("let bad = = 2;") // user line leading+2

		unit := preprocess.Process(b.String())
		out, err := Compile(unit, baselineRefs(t), execution.Config{})
		if err != nil {
			t.Fatalf("leading=%d: compile: %v", leading, err)
		}
		if !out.Failed() {
			t.Fatalf("leading=%d: expected diagnostics", leading)
		}
		want := leading + 2
		if got := out.Diagnostics[0].Line; got != want {
			t.Fatalf("leading=%d: line = %d, want %d", leading, got, want)
		}
	}
}

func TestCompile_UnbalancedBraceAttributedToUser(t *testing.T) {
	unit := preprocess.Process("if (true) {\n  let x = 1;")
	out, err := Compile(unit, baselineRefs(t), execution.Config{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !out.Failed() {
		t.Fatal("expected diagnostics")
	}
	d := out.Diagnostics[0]
	if d.Line < 1 || d.Line > 2 {
		t.Fatalf("diagnostic leaked scaffold coordinates: %+v", d)
	}
}

func TestBuildScaffold_ImportBindings(t *testing.T) {
	unit := preprocess.Process("import System.Linq;\nimport Custom;\nimport Custom;\n1;")
	sc := buildScaffold(unit, []string{"Json"})
	if !strings.Contains(sc.source, "var Json = __host__.use('Json');") {
		t.Fatalf("default import not bound:\n%s", sc.source)
	}
	if !strings.Contains(sc.source, "var Linq = __host__.use('System.Linq');") {
		t.Fatalf("dotted import not aliased:\n%s", sc.source)
	}
	if strings.Count(sc.source, "var Custom =") != 1 {
		t.Fatalf("duplicate import bound twice:\n%s", sc.source)
	}
	if sc.bodyLines != 1 {
		t.Fatalf("bodyLines = %d", sc.bodyLines)
	}
}
