// Package preprocess strips the leading comment and import block from raw
// scratchpad source, leaving the executable body plus the information needed
// to map diagnostic positions back onto what the user actually typed.
package preprocess

import (
	"regexp"
	"strings"
)

// importPattern matches a leading import declaration: the import keyword, one
// identifier (dotted segments allowed), and the statement separator.
var importPattern = regexp.MustCompile(`^import\s+([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*;\s*$`)

// Unit is the result of preprocessing one source text.
type Unit struct {
	// Body is every retained line joined with "\n".
	Body string
	// Imports are the extracted import names in order of appearance.
	// Duplicates are preserved.
	Imports []string
	// RemovedLines counts the leading lines stripped from the source. Added
	// back to scaffold-relative diagnostic lines to recover user coordinates.
	RemovedLines int
}

// Process scans the source line by line. Leading block comments, line
// comments, blank lines and import declarations are stripped; the first line
// that is none of those starts the body, and everything from there on is
// retained verbatim, comments and blanks included.
//
// An unterminated block comment consumes all remaining lines. That mirrors
// the editor's behavior and can swallow real code; it is deliberate.
func Process(source string) Unit {
	lines := splitLines(source)

	var (
		unit    Unit
		inBlock bool
		bodyAt  = len(lines)
	)

scan:
	for i, line := range lines {
		if inBlock {
			if idx := strings.Index(line, "*/"); idx >= 0 {
				inBlock = false
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			// leading blank
		case strings.HasPrefix(trimmed, "//"):
			// leading line comment
		case strings.HasPrefix(trimmed, "/*"):
			if !strings.Contains(trimmed[2:], "*/") {
				inBlock = true
			}
		default:
			m := importPattern.FindStringSubmatch(trimmed)
			if m == nil {
				bodyAt = i
				break scan
			}
			unit.Imports = append(unit.Imports, m[1])
		}
	}

	unit.RemovedLines = bodyAt
	if bodyAt < len(lines) {
		unit.Body = strings.Join(lines[bodyAt:], "\n")
	}
	return unit
}

func splitLines(source string) []string {
	if source == "" {
		return nil
	}
	normalized := strings.ReplaceAll(source, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.Split(normalized, "\n")
}
