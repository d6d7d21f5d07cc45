package boundary

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tidwall/gjson"
)

// Loader resolves managed and native dependencies for exactly one boundary.
// Loaders are never shared across boundaries.
type Loader struct {
	// manifestPath points at a dependency manifest tied to a known assembly
	// location. Optional; when set it is consulted before the probing paths.
	manifestPath string
	probingPaths []string
	// resolved maps dependency names to binary paths pinned ahead of time,
	// typically from the reference resolution that preceded compilation.
	resolved map[string]string
}

// NewLoader builds a loader over the given probing paths.
func NewLoader(probingPaths ...string) *Loader {
	return &Loader{probingPaths: probingPaths}
}

// WithManifest attaches a dependency manifest. The manifest is a JSON file
// whose "dependencies" object maps dependency names to paths relative to the
// manifest's own directory.
func (l *Loader) WithManifest(path string) *Loader {
	l.manifestPath = path
	return l
}

// WithResolved pins dependency names to binary paths resolved before the
// boundary existed. Pinned entries win over the manifest and probing paths so
// a script binds exactly the binaries its request resolved.
func (l *Loader) WithResolved(resolved map[string]string) *Loader {
	l.resolved = resolved
	return l
}

// ResolveManaged locates a managed dependency by name. Order: pinned
// reference paths, then the dependency manifest, then each probing path for
// <name>.bin. A miss is not an error; the caller falls through to the
// process-default resolution.
func (l *Loader) ResolveManaged(name string) (string, bool) {
	if path, ok := l.resolved[name]; ok && fileExists(path) {
		return path, true
	}
	if l.manifestPath != "" {
		if path, ok := l.resolveFromManifest(name); ok {
			return path, true
		}
	}
	for _, dir := range l.probingPaths {
		candidate := filepath.Join(dir, name+managedExt)
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (l *Loader) resolveFromManifest(name string) (string, bool) {
	data, err := os.ReadFile(l.manifestPath)
	if err != nil {
		return "", false
	}
	entry := gjson.GetBytes(data, "dependencies."+gjsonEscape(name))
	if !entry.Exists() {
		return "", false
	}
	path := entry.String()
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(l.manifestPath), path)
	}
	if !fileExists(path) {
		return "", false
	}
	return path, true
}

// ResolveNative locates a native dependency by name, trying the structured
// runtimes/<rid>/native layout and then the flat layout under each probing
// path. Candidate names follow the platform's decoration rules; first match
// wins. A miss defers to the enclosing process's native resolution.
func (l *Loader) ResolveNative(name string) (string, bool) {
	candidates := nativeCandidates(runtime.GOOS, name)
	rid := RID()

	for _, dir := range l.probingPaths {
		for _, candidate := range candidates {
			structured := filepath.Join(dir, "runtimes", rid, "native", candidate)
			if fileExists(structured) {
				return structured, true
			}
		}
		for _, candidate := range candidates {
			flat := filepath.Join(dir, candidate)
			if fileExists(flat) {
				return flat, true
			}
		}
	}
	return "", false
}

const managedExt = ".bin"

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// gjsonEscape guards dotted dependency names against being parsed as paths.
func gjsonEscape(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out = append(out, '\\')
		}
		out = append(out, name[i])
	}
	return string(out)
}
