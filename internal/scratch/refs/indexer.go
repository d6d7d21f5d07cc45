package refs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dasudiy/scratchpadsharp/internal/app/system"
	"github.com/dasudiy/scratchpadsharp/pkg/logger"
)

var _ system.Service = (*Indexer)(nil)
var _ PackageSource = (*Indexer)(nil)

// Indexer keeps an in-memory index of the package cache so per-request
// resolution does not walk the directory tree every time. The index is
// rebuilt on a cron schedule and on demand for cache misses, falling back to
// a direct scan so freshly downloaded packages resolve immediately.
type Indexer struct {
	cache    CacheDir
	log      *logger.Logger
	schedule string

	mu    sync.RWMutex
	index map[string][]string // "<name-lower>@<version>" -> binary paths

	cronRunner *cron.Cron
	entryID    cron.EntryID
}

// NewIndexer creates an indexer over the cache root. The schedule uses cron
// syntax, descriptors included ("@every 1m").
func NewIndexer(root, schedule string, log *logger.Logger) *Indexer {
	if log == nil {
		log = logger.NewDefault("package-index")
	}
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &Indexer{
		cache:    CacheDir{Root: root},
		log:      log,
		schedule: schedule,
		index:    make(map[string][]string),
	}
}

func (ix *Indexer) Name() string { return "package-index" }

// Start builds the index once, then keeps it fresh on the cron schedule.
func (ix *Indexer) Start(ctx context.Context) error {
	if err := ix.Refresh(); err != nil {
		ix.log.WithError(err).Warn("initial package index scan failed")
	}

	runner := cron.New()
	id, err := runner.AddFunc(ix.schedule, func() {
		if err := ix.Refresh(); err != nil {
			ix.log.WithError(err).Warn("package index refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule package index refresh: %w", err)
	}
	ix.cronRunner = runner
	ix.entryID = id
	runner.Start()

	ix.log.WithField("schedule", ix.schedule).Info("package index started")
	return nil
}

func (ix *Indexer) Stop(ctx context.Context) error {
	if ix.cronRunner != nil {
		stopCtx := ix.cronRunner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Refresh rescans the whole cache root and swaps the index atomically.
func (ix *Indexer) Refresh() error {
	next := make(map[string][]string)

	names, err := os.ReadDir(ix.cache.Root)
	if err != nil {
		return fmt.Errorf("read cache root: %w", err)
	}
	for _, nameEntry := range names {
		if !nameEntry.IsDir() {
			continue
		}
		name := nameEntry.Name()
		versions, err := os.ReadDir(filepath.Join(ix.cache.Root, name))
		if err != nil {
			continue
		}
		for _, versionEntry := range versions {
			if !versionEntry.IsDir() {
				continue
			}
			version := versionEntry.Name()
			paths, err := ix.cache.GetPackageBinaries(name, version)
			if err != nil {
				continue
			}
			next[indexKey(name, version)] = paths
		}
	}

	ix.mu.Lock()
	ix.index = next
	ix.mu.Unlock()

	ix.log.WithField("entries", len(next)).Debugf("package index refreshed")
	return nil
}

// GetPackageBinaries serves from the index, scanning the cache directly on a
// miss so callers never wait for the next scheduled refresh.
func (ix *Indexer) GetPackageBinaries(name, version string) ([]string, error) {
	key := indexKey(name, version)

	ix.mu.RLock()
	paths, ok := ix.index[key]
	ix.mu.RUnlock()
	if ok {
		return paths, nil
	}

	paths, err := ix.cache.GetPackageBinaries(name, version)
	if err != nil {
		return nil, err
	}

	ix.mu.Lock()
	ix.index[key] = paths
	ix.mu.Unlock()
	return paths, nil
}

func indexKey(name, version string) string {
	return fmt.Sprintf("%s@%s", strings.ToLower(name), version)
}
