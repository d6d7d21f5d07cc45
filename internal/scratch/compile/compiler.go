// Package compile wraps preprocessed scratchpad source in the fixed entry
// scaffold and compiles it, reporting diagnostics in the coordinates of the
// original user source.
package compile

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/preprocess"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/refs"
)

// parse diagnostics share one code; the engine does not classify further.
const diagnosticCode = "ES0001"

// Image is the compiled binary payload: the scaffolded source bytes plus the
// engine program ready to load into a boundary.
type Image struct {
	data    []byte
	program *goja.Program
}

// Bytes returns the opaque image payload.
func (im *Image) Bytes() []byte { return im.data }

// Program returns the engine-level compiled unit.
func (im *Image) Program() *goja.Program { return im.program }

// Outcome is the result of one compilation. Exactly one of Diagnostics or
// Image is populated.
type Outcome struct {
	Diagnostics []execution.Diagnostic
	Image       *Image
	EntryPoint  string
}

// Failed reports whether compilation produced diagnostics instead of an image.
func (o Outcome) Failed() bool { return o.Image == nil }

// Compile merges configured default imports ahead of the unit's own imports,
// scaffolds the body, and invokes the engine once. References must already be
// resolved; compilation itself touches neither filesystem nor network.
// Diagnostic lines are mapped back through the scaffold prefix and the
// preprocessor's removed-line count, and diagnostics positioned in the user's
// body are preferred over scaffold-only ones so plumbing never leaks into
// error messages.
func Compile(unit preprocess.Unit, references []refs.Reference, cfg execution.Config) (Outcome, error) {
	if len(references) == 0 {
		return Outcome{}, errors.New("compile requires a resolved reference set")
	}

	sc := buildScaffold(unit, cfg.DefaultImports)
	return compileScaffold(sc, unit)
}

func compileScaffold(sc scaffold, unit preprocess.Unit) (Outcome, error) {
	prog, err := parser.ParseFile(nil, "scratchpad", sc.source, 0)
	if err != nil {
		diags := mapParseErrors(err, sc, unit.RemovedLines)
		if len(diags) == 0 {
			return Outcome{}, fmt.Errorf("parse failed without positions: %w", err)
		}
		return Outcome{Diagnostics: diags}, nil
	}

	compiled, err := goja.CompileAST(prog, false)
	if err != nil {
		return Outcome{}, fmt.Errorf("compile scaffolded unit: %w", err)
	}

	return Outcome{
		Image:      &Image{data: []byte(sc.source), program: compiled},
		EntryPoint: EntryPoint,
	}, nil
}

// mapParseErrors converts engine parse errors to user-coordinate diagnostics.
func mapParseErrors(err error, sc scaffold, removedLines int) []execution.Diagnostic {
	var list parser.ErrorList
	if !errors.As(err, &list) {
		return nil
	}

	var body, scaffoldOnly []execution.Diagnostic
	for _, e := range list {
		d := execution.Diagnostic{
			Severity: execution.SeverityError,
			Code:     diagnosticCode,
			Message:  e.Message,
			Column:   e.Position.Column,
		}
		line := e.Position.Line
		if line > sc.prefixLines {
			// Inside the user body, or on the scaffold's closing line when an
			// unbalanced body construct runs off the end. Either way the user
			// owns it.
			userLine := line - sc.prefixLines + removedLines
			lastUserLine := sc.bodyLines + removedLines
			if sc.bodyLines > 0 && userLine > lastUserLine {
				userLine = lastUserLine
			}
			d.Line = userLine
			body = append(body, d)
		} else {
			d.Line = 1
			scaffoldOnly = append(scaffoldOnly, d)
		}
	}

	if len(body) > 0 {
		return body
	}
	return scaffoldOnly
}
