package formsource

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/logging"
)

// Cache memoizes decoded forms by reference. File entries are evicted when
// the file changes on disk; everything else lives until Purge.
type Cache struct {
	loader FormLoader
	logger logging.Logger

	mu      sync.RWMutex
	entries map[string]*form.Form
	watched map[string]struct{}

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

var _ FormLoader = (*Cache)(nil)

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	watch  bool
	logger logging.Logger
}

// WithWatch enables fsnotify based invalidation of file entries.
func WithWatch(enabled bool) CacheOption {
	return func(o *cacheOptions) {
		o.watch = enabled
	}
}

// WithCacheLogger sets the logger used for watcher events.
func WithCacheLogger(logger logging.Logger) CacheOption {
	return func(o *cacheOptions) {
		o.logger = logger
	}
}

// NewCache wraps loader. Close must be called when watching is enabled.
func NewCache(loader FormLoader, options ...CacheOption) (*Cache, error) {
	if loader == nil {
		loader = NewLoader()
	}
	var opts cacheOptions
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&opts)
	}

	c := &Cache{
		loader:  loader,
		logger:  opts.logger.Module("formsource"),
		entries: make(map[string]*form.Form),
		watched: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	if opts.watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("formsource: create watcher: %w", err)
		}
		c.watcher = watcher
		go c.watch()
	}
	return c, nil
}

// Load returns the cached form for ref, loading it on a miss. Inline
// references bypass the cache.
func (c *Cache) Load(ctx context.Context, ref Reference) (*form.Form, error) {
	if ref == nil || ref.Kind() == KindInline {
		return c.loader.Load(ctx, ref)
	}
	key := cacheKey(ref)

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	loaded, err := c.loader.Load(ctx, ref)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = loaded
	c.mu.Unlock()

	if ref.Kind() == KindFile {
		c.watchFile(ref.Location())
	}
	return loaded, nil
}

// Invalidate drops the entry for ref.
func (c *Cache) Invalidate(ref Reference) {
	if ref == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, cacheKey(ref))
	c.mu.Unlock()
}

// Purge drops every entry and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*form.Form)
	return n
}

// Len reports the number of cached forms.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the watcher.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.watcher != nil {
			err = c.watcher.Close()
		}
	})
	return err
}

// watchFile watches the parent directory so editors that replace files
// through renames are still noticed.
func (c *Cache) watchFile(path string) {
	if c.watcher == nil {
		return
	}
	dir := filepath.Dir(absPath(path))

	c.mu.Lock()
	_, seen := c.watched[dir]
	if !seen {
		c.watched[dir] = struct{}{}
	}
	c.mu.Unlock()
	if seen {
		return
	}

	if err := c.watcher.Add(dir); err != nil {
		c.logger.Emit(logging.LevelWarn, "Unable to watch form directory", map[string]any{
			"path":  dir,
			"error": err.Error(),
		})
		return
	}
	c.logger.Emit(logging.LevelDebug, "Watching form directory", map[string]any{"path": dir})
}

func (c *Cache) watch() {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			key := string(KindFile) + ":" + absPath(event.Name)
			c.mu.Lock()
			_, cached := c.entries[key]
			delete(c.entries, key)
			c.mu.Unlock()
			if cached {
				c.logger.Emit(logging.LevelInfo, "Form changed, cache entry dropped", map[string]any{
					"path": event.Name,
					"op":   event.Op.String(),
				})
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Emit(logging.LevelError, "Form watcher error", map[string]any{"error": err.Error()})
		}
	}
}

func cacheKey(ref Reference) string {
	location := ref.Location()
	if ref.Kind() == KindFile {
		location = absPath(location)
	}
	return string(ref.Kind()) + ":" + location
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
