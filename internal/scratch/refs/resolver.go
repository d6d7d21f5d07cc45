// Package refs resolves the ordered set of binary references a compilation
// needs: the fixed baseline surface, references named in configuration, and
// binaries found in the local package cache.
package refs

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/pkg/logger"
)

// Kind distinguishes where a reference came from.
type Kind string

const (
	KindBaseline   Kind = "baseline"
	KindConfigured Kind = "configured"
	KindPackage    Kind = "package"
)

// Reference is a handle to one binary the compiler and loader may consume.
// Baseline references are in-process and carry no path.
type Reference struct {
	Name string
	Path string
	Kind Kind
}

// ReferenceConfig supplies reference names from application configuration.
type ReferenceConfig interface {
	GetConfiguredReferenceNames() []string
}

// PackageSource locates the binary payloads of one package version.
type PackageSource interface {
	GetPackageBinaries(name, version string) ([]string, error)
}

// Resolver produces the reference list for a run. Baseline references are
// resolved once per process; configured and package references are resolved
// per request since package sets vary run to run.
type Resolver struct {
	config   ReferenceConfig
	packages PackageSource
	probing  []string
	log      *logger.Logger
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithReferenceConfig attaches the configuration collaborator.
func WithReferenceConfig(rc ReferenceConfig) Option {
	return func(r *Resolver) { r.config = rc }
}

// WithProbingPaths sets the directories searched for configured references.
func WithProbingPaths(paths ...string) Option {
	return func(r *Resolver) { r.probing = paths }
}

// NewResolver builds a resolver over the given package source.
func NewResolver(packages PackageSource, log *logger.Logger, opts ...Option) *Resolver {
	if log == nil {
		log = logger.NewDefault("refs")
	}
	r := &Resolver{packages: packages, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the ordered reference list for one request: baseline first,
// then configured references, then package binaries. Failures on individual
// configured or package entries are swallowed; a baseline failure is fatal.
func (r *Resolver) Resolve(cfg execution.Config) ([]Reference, error) {
	baseline, err := Baseline()
	if err != nil {
		return nil, fmt.Errorf("baseline references unavailable: %w", err)
	}

	out := make([]Reference, 0, len(baseline)+8)
	out = append(out, baseline...)

	if r.config != nil {
		for _, name := range r.config.GetConfiguredReferenceNames() {
			ref, ok := r.resolveConfigured(name)
			if !ok {
				r.log.WithField("reference", name).Warn("configured reference not found, skipping")
				continue
			}
			out = append(out, ref)
		}
	}

	if r.packages != nil {
		for _, name := range sortedKeys(cfg.Packages) {
			version := cfg.Packages[name]
			paths, err := r.packages.GetPackageBinaries(name, version)
			if err != nil {
				r.log.WithField("package", name).
					WithField("version", version).
					WithError(err).
					Warn("package resolution failed, skipping")
				continue
			}
			for _, p := range paths {
				out = append(out, Reference{Name: name, Path: p, Kind: KindPackage})
			}
		}
	}

	return out, nil
}

func (r *Resolver) resolveConfigured(name string) (Reference, bool) {
	for _, dir := range r.probing {
		candidate := filepath.Join(dir, name+ManagedExt)
		if fileExists(candidate) {
			return Reference{Name: name, Path: candidate, Kind: KindConfigured}, true
		}
	}
	return Reference{}, false
}

// CacheDir is the package source backed by the on-disk package cache. Layout:
// <root>/<name-lowercase>/<version>/lib/**/*.bin, skipping any directory
// segment literally named "ref". This layout is a fixed contract.
type CacheDir struct {
	Root string
}

// GetPackageBinaries walks the lib tree of one package version.
func (c CacheDir) GetPackageBinaries(name, version string) ([]string, error) {
	base := filepath.Join(c.Root, strings.ToLower(name), version, "lib")

	var paths []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "ref" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ManagedExt {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan package %s@%s: %w", name, version, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("package %s@%s has no binaries under lib", name, version)
	}
	sort.Strings(paths)
	return paths, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
