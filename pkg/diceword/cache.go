package diceword

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"
	"golang.org/x/sync/singleflight"
)

const loadKey = "dictionary"

// CacheConfig configures a Cache.
type CacheConfig struct {
	// Loader fetches the raw word list.
	// Defaults to EmbeddedLoader if nil.
	Loader Loader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Cache lazily loads a Dictionary once and shares it with all callers.
//
// Concurrent callers that arrive before the first successful load wait on
// the same in-flight load. Failures are returned to every waiter of that load
// and are not remembered.
type Cache struct {
	loader Loader
	group  singleflight.Group
	log    logging.LeveledLogger

	mu   sync.RWMutex
	dict *Dictionary
}

// NewCache creates a new dictionary cache.
func NewCache(config CacheConfig) *Cache {
	loader := config.Loader
	if loader == nil {
		loader = EmbeddedLoader()
	}

	c := &Cache{
		loader: loader,
	}

	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("diceword")
	}

	return c
}

// Dictionary returns the loaded dictionary, loading it on first use.
//
// The shared load is not canceled when ctx is; ctx only bounds how long this
// caller waits for it.
func (c *Cache) Dictionary(ctx context.Context) (*Dictionary, error) {
	if d := c.cached(); d != nil {
		return d, nil
	}

	ch := c.group.DoChan(loadKey, func() (interface{}, error) {
		if d := c.cached(); d != nil {
			return d, nil
		}
		return c.load(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Dictionary), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrDictionaryUnavailable, ctx.Err())
	}
}

// WordsFromBytes maps data onto count words of the cached dictionary.
func (c *Cache) WordsFromBytes(ctx context.Context, data []byte, count int) ([]string, error) {
	d, err := c.Dictionary(ctx)
	if err != nil {
		return nil, err
	}
	return d.WordsFromBytes(data, count), nil
}

// ValidateWords reports whether every word is in the cached dictionary.
func (c *Cache) ValidateWords(ctx context.Context, words []string) (bool, error) {
	d, err := c.Dictionary(ctx)
	if err != nil {
		return false, err
	}
	return d.ValidateWords(words), nil
}

// Count returns the number of words in the cached dictionary.
func (c *Cache) Count(ctx context.Context) (int, error) {
	d, err := c.Dictionary(ctx)
	if err != nil {
		return 0, err
	}
	return d.Len(), nil
}

func (c *Cache) cached() *Dictionary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dict
}

func (c *Cache) load(ctx context.Context) (*Dictionary, error) {
	raw, err := c.loader.Load(ctx)
	if err != nil {
		if c.log != nil {
			c.log.Warnf("word list load failed: %v", err)
		}
		if errors.Is(err, ErrDictionaryUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDictionaryUnavailable, err)
	}

	d, err := Parse(raw)
	if err != nil {
		if c.log != nil {
			c.log.Warnf("word list rejected: %v", err)
		}
		return nil, err
	}

	c.mu.Lock()
	c.dict = d
	c.mu.Unlock()

	if c.log != nil {
		c.log.Debugf("loaded %d words", d.Len())
	}
	return d, nil
}

var (
	defaultMu    sync.Mutex
	defaultCache = NewCache(CacheConfig{})
)

// Default returns the process-wide cache.
// Unless SetDefaultLoader was called, it serves the embedded word list.
func Default() *Cache {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultCache
}

// SetDefaultLoader replaces the process-wide cache with one backed by loader.
// Call it during startup, before the first lookup.
func SetDefaultLoader(loader Loader, loggerFactory logging.LoggerFactory) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCache = NewCache(CacheConfig{Loader: loader, LoggerFactory: loggerFactory})
}
