// Package store: cached access to active flow definitions.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/optichat/optichat/internal/models"
	"gopkg.in/fsnotify.v1"
)

// DefaultFlowCacheTTL bounds staleness when an invalidation is missed (e.g. a
// flow edited directly in the database).
const DefaultFlowCacheTTL = 10 * time.Minute

// FlowCache serves parsed active flow definitions per bot. Definitions are
// cached explicitly and invalidated on every save, so the executor never
// reads ambient global state. When a bot has no stored active flow, a legacy
// flow.json file (hot-reloaded via fsnotify) is used as fallback.
type FlowCache struct {
	store Store
	cache *bigcache.BigCache

	legacyPath string
	legacyMu   sync.RWMutex
	legacyDef  *models.FlowDefinition

	watcher *fsnotify.Watcher
}

// NewFlowCache creates a FlowCache over the given store. legacyPath may be
// empty to disable the flow.json fallback.
func NewFlowCache(st Store, legacyPath string) (*FlowCache, error) {
	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(DefaultFlowCacheTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create flow cache: %w", err)
	}
	c := &FlowCache{store: st, cache: cache, legacyPath: legacyPath}
	if legacyPath != "" {
		c.reloadLegacy()
	}
	return c, nil
}

// WatchLegacy starts watching the legacy flow.json for changes and reloads it
// on write. It returns immediately; the watch goroutine stops when ctx ends.
func (c *FlowCache) WatchLegacy(ctx context.Context) error {
	if c.legacyPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(c.legacyPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", c.legacyPath, err)
	}
	c.watcher = watcher
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					slog.Info("Legacy flow file changed, reloading", "path", c.legacyPath)
					c.reloadLegacy()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Legacy flow watcher error", "error", err, "path", c.legacyPath)
			}
		}
	}()
	return nil
}

func (c *FlowCache) reloadLegacy() {
	data, err := os.ReadFile(c.legacyPath)
	if err != nil {
		slog.Debug("Legacy flow file not readable", "error", err, "path", c.legacyPath)
		c.legacyMu.Lock()
		c.legacyDef = nil
		c.legacyMu.Unlock()
		return
	}
	def, err := models.ParseFlowDefinition(data)
	if err != nil {
		slog.Error("Legacy flow file invalid", "error", err, "path", c.legacyPath)
		return
	}
	c.legacyMu.Lock()
	c.legacyDef = def
	c.legacyMu.Unlock()
	slog.Debug("Legacy flow definition loaded", "path", c.legacyPath, "nodes", len(def.Nodes))
}

func flowCacheKey(botID int64) string {
	return "bot:" + strconv.FormatInt(botID, 10)
}

// ActiveDefinition returns the parsed active flow definition for a bot. The
// result is always non-nil: no stored flow and no legacy fallback yields a
// disabled empty definition.
func (c *FlowCache) ActiveDefinition(botID int64) (*models.FlowDefinition, error) {
	if raw, err := c.cache.Get(flowCacheKey(botID)); err == nil {
		def, perr := models.ParseFlowDefinition(raw)
		if perr == nil {
			return def, nil
		}
		// Unparseable cache entries fall through to a fresh read.
		slog.Error("Cached flow definition invalid, refetching", "error", perr, "bot_id", botID)
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		slog.Debug("Flow cache read failed", "error", err, "bot_id", botID)
	}

	f, err := c.store.GetActiveFlow(botID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active flow for bot %d: %w", botID, err)
	}
	if f == nil || len(f.Definition) == 0 {
		c.legacyMu.RLock()
		legacy := c.legacyDef
		c.legacyMu.RUnlock()
		if legacy != nil {
			return legacy, nil
		}
		return models.EmptyFlowDefinition(), nil
	}
	def, err := models.ParseFlowDefinition(f.Definition)
	if err != nil {
		slog.Error("Stored flow definition invalid", "error", err, "bot_id", botID, "flow_id", f.ID)
		return models.EmptyFlowDefinition(), nil
	}
	if err := c.cache.Set(flowCacheKey(botID), f.Definition); err != nil {
		slog.Debug("Flow cache write failed", "error", err, "bot_id", botID)
	}
	return def, nil
}

// Invalidate drops the cached definition for a bot. Called on every flow save.
func (c *FlowCache) Invalidate(botID int64) {
	if err := c.cache.Delete(flowCacheKey(botID)); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		slog.Debug("Flow cache invalidation failed", "error", err, "bot_id", botID)
	}
}
