package compile

import (
	"fmt"
	"strings"

	"github.com/dasudiy/scratchpadsharp/internal/scratch/preprocess"
)

const (
	// HolderName is the static holder type generated around user code.
	HolderName = "Scratchpad"
	// EntryMethod is the asynchronous entry method on the holder.
	EntryMethod = "Main"
	// EntryPoint is the fully-qualified entry point identifier.
	EntryPoint = HolderName + "." + EntryMethod
	// ConnectionStringProperty is the injectable static property on the holder.
	ConnectionStringProperty = "ConnectionString"
)

// scaffold is the fixed wrapper emitted around the preprocessed body. The
// holder declaration and import bindings come first, then the entry method
// whose body is the user's code verbatim, one source line per line so
// diagnostic positions remap by a constant offset.
type scaffold struct {
	source      string
	prefixLines int
	bodyLines   int
}

// buildScaffold merges configured imports ahead of imports extracted from the
// user source and wraps the body. Duplicate imports bind once.
func buildScaffold(unit preprocess.Unit, defaultImports []string) scaffold {
	var b strings.Builder
	lines := 0

	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\n")
		lines++
	}

	line(fmt.Sprintf("var %s = {};", HolderName))
	line(fmt.Sprintf("%s.%s = '';", HolderName, ConnectionStringProperty))

	seen := make(map[string]bool)
	for _, name := range append(append([]string{}, defaultImports...), unit.Imports...) {
		alias := importAlias(name)
		if alias == "" || seen[alias] {
			continue
		}
		seen[alias] = true
		line(fmt.Sprintf("var %s = __host__.use('%s');", alias, name))
	}

	line(fmt.Sprintf("%s.%s = async function () {", HolderName, EntryMethod))

	prefix := lines
	bodyLines := 0
	if unit.Body != "" {
		bodyLines = strings.Count(unit.Body, "\n") + 1
		b.WriteString(unit.Body)
		b.WriteString("\n")
	}
	b.WriteString("};\n")

	return scaffold{source: b.String(), prefixLines: prefix, bodyLines: bodyLines}
}

// importAlias binds an import under its last dotted segment, so
// "System.Linq" is reachable as "Linq".
func importAlias(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
