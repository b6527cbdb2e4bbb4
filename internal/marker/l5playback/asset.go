package l5playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/banshee-data/markerlens/internal/config"
	"github.com/banshee-data/markerlens/internal/timeutil"
)

// DefaultLoadTimeout bounds how long Load waits for a player to buffer.
const DefaultLoadTimeout = 10 * time.Second

// Asset load failure kinds. Both are reachable with errors.Is through
// *AssetLoadError.
var (
	ErrAssetLoadTimeout = errors.New("video asset load timed out")
	ErrAssetDecode      = errors.New("video asset decode failed")
)

// AssetLoadError reports a failed load of one named asset.
type AssetLoadError struct {
	Name string
	Src  string
	Kind error // ErrAssetLoadTimeout or ErrAssetDecode
	Err  error // Underlying cause, if any
}

func (e *AssetLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %q from %s: %v: %v", e.Name, e.Src, e.Kind, e.Err)
	}
	return fmt.Sprintf("load %q from %s: %v", e.Name, e.Src, e.Kind)
}

func (e *AssetLoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// TextureHandle identifies the video texture created for an asset.
type TextureHandle struct {
	ID   uuid.UUID
	Name string
}

// VideoAsset is a loaded, buffered video and its texture.
type VideoAsset struct {
	Name     string
	Src      string
	Player   Player
	Texture  TextureHandle
	LoadedAt time.Time
}

// CacheConfig configures an AssetCache.
type CacheConfig struct {
	LoadTimeout time.Duration
	Clock       timeutil.Clock
}

// CacheConfigFromTuning builds a CacheConfig from a loaded TuningConfig.
func CacheConfigFromTuning(cfg *config.TuningConfig, clock timeutil.Clock) CacheConfig {
	return CacheConfig{LoadTimeout: cfg.GetAssetLoadTimeout(), Clock: clock}
}

// AssetCache loads video assets at most once per name. Concurrent loads of
// the same name share one decode and receive the same *VideoAsset. Failed
// loads are not cached.
type AssetCache struct {
	decoder Decoder
	timeout time.Duration
	clock   timeutil.Clock
	group   singleflight.Group

	mu     sync.Mutex
	assets map[string]*VideoAsset
}

// NewAssetCache creates an empty cache over decoder.
func NewAssetCache(decoder Decoder, cfg CacheConfig) *AssetCache {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &AssetCache{
		decoder: decoder,
		timeout: cfg.LoadTimeout,
		clock:   cfg.Clock,
		assets:  make(map[string]*VideoAsset),
	}
}

// Get returns a cached asset without loading.
func (c *AssetCache) Get(name string) (*VideoAsset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assets[name]
	return a, ok
}

// Load returns the asset for name, decoding src on first use.
//
// Cancelling ctx only stops this caller from waiting: the shared load runs
// to completion (or timeout) so other callers and later lookups still get
// the result.
func (c *AssetCache) Load(ctx context.Context, name, src string) (*VideoAsset, error) {
	if a, ok := c.Get(name); ok {
		return a, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(name, func() (interface{}, error) {
		return c.load(loadCtx, name, src)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*VideoAsset), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *AssetCache) load(ctx context.Context, name, src string) (*VideoAsset, error) {
	// A load may have finished between the caller's lookup and joining the
	// flight.
	if a, ok := c.Get(name); ok {
		return a, nil
	}

	start := c.clock.Now()
	player, err := c.decoder.Decode(ctx, name, src)
	if err != nil {
		return nil, &AssetLoadError{Name: name, Src: src, Kind: ErrAssetDecode, Err: err}
	}

	select {
	case <-player.Ready():
	case <-c.clock.After(c.timeout):
		_ = player.Close()
		return nil, &AssetLoadError{Name: name, Src: src, Kind: ErrAssetLoadTimeout,
			Err: fmt.Errorf("not ready after %v", c.timeout)}
	}

	player.Seek(0)
	asset := &VideoAsset{
		Name:     name,
		Src:      src,
		Player:   player,
		Texture:  TextureHandle{ID: uuid.New(), Name: name},
		LoadedAt: c.clock.Now(),
	}

	c.mu.Lock()
	c.assets[name] = asset
	c.mu.Unlock()

	diagf("loaded asset %q from %s in %v (texture %s)", name, src, c.clock.Since(start), asset.Texture.ID)
	return asset, nil
}

// LoadWithFallback loads name and, if that fails, fallbackName. An empty
// fallbackSrc disables the fallback. The returned error joins both
// failures when neither loads.
func (c *AssetCache) LoadWithFallback(ctx context.Context, name, src, fallbackName, fallbackSrc string) (*VideoAsset, error) {
	asset, err := c.Load(ctx, name, src)
	if err == nil {
		return asset, nil
	}
	if ctx.Err() != nil || fallbackSrc == "" {
		return nil, err
	}
	opsf("asset %q failed, trying fallback %q: %v", name, fallbackName, err)

	fallback, ferr := c.Load(ctx, fallbackName, fallbackSrc)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return fallback, nil
}

// Dispose closes and removes the named asset. Unknown names are ignored.
func (c *AssetCache) Dispose(name string) error {
	c.mu.Lock()
	a, ok := c.assets[name]
	delete(c.assets, name)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return a.Player.Close()
}

// Clear disposes every cached asset.
func (c *AssetCache) Clear() error {
	c.mu.Lock()
	assets := c.assets
	c.assets = make(map[string]*VideoAsset)
	c.mu.Unlock()

	var errs []error
	for name, a := range assets {
		if err := a.Player.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of cached assets.
func (c *AssetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.assets)
}
