package refs

import (
	"fmt"
	"os"
	"sync"
)

// ManagedExt is the file extension of managed binary payloads.
const ManagedExt = ".bin"

// baselineNames is the fixed surface every compilation requires: the core
// runtime, collection and task types, and the host's own hook surface so
// result-capture calls made by compiled code resolve.
var baselineNames = []string{
	"Runtime.Core",
	"Runtime.Collections",
	"Runtime.Tasks",
	"Scratchpad.Hooks",
}

// Process-wide baseline cache. Intentional global mutable state: computed
// once behind the sync.Once, read-only afterwards, safe for concurrent
// readers.
var (
	baselineOnce sync.Once
	baselineRefs []Reference
	baselineErr  error
)

// Baseline returns the fixed reference set. The first call computes it; every
// later call returns the cached slice. Callers must treat the result as
// immutable. A failure here is a fatal configuration error, never a
// per-script error.
func Baseline() ([]Reference, error) {
	baselineOnce.Do(func() {
		refs := make([]Reference, 0, len(baselineNames))
		for _, name := range baselineNames {
			if name == "" {
				baselineErr = fmt.Errorf("baseline reference with empty name")
				return
			}
			refs = append(refs, Reference{Name: name, Kind: KindBaseline})
		}
		baselineRefs = refs
	})
	return baselineRefs, baselineErr
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
