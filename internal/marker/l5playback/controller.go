package l5playback

import (
	"sort"
	"sync"

	"github.com/banshee-data/markerlens/internal/config"
	"github.com/banshee-data/markerlens/internal/marker/l4tracking"
)

// NodeVisibility toggles scene node visibility.
type NodeVisibility interface {
	SetVisible(nodeID string, visible bool) error
}

// PlaybackConfig is applied to every bound player.
type PlaybackConfig struct {
	Muted  bool
	Loop   bool
	Volume float64
}

// DefaultPlaybackConfig returns muted, looping, full volume.
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{Muted: true, Loop: true, Volume: 1}
}

// PlaybackConfigFromTuning builds a PlaybackConfig from a loaded TuningConfig.
func PlaybackConfigFromTuning(cfg *config.TuningConfig) PlaybackConfig {
	return PlaybackConfig{
		Muted:  cfg.GetVideoMuted(),
		Loop:   cfg.GetVideoLoop(),
		Volume: cfg.GetVideoVolume(),
	}
}

// Controller shows and plays bound videos while the marker is tracked and
// hides and pauses them when it is lost. It owns the node-to-asset table.
type Controller struct {
	vis NodeVisibility
	cfg PlaybackConfig

	mu         sync.Mutex
	bindings   map[string]*VideoAsset
	playStarts int
	visible    bool
}

// NewController creates a Controller that toggles visibility through vis.
func NewController(vis NodeVisibility, cfg PlaybackConfig) *Controller {
	return &Controller{
		vis:      vis,
		cfg:      cfg,
		bindings: make(map[string]*VideoAsset),
	}
}

// Bind associates asset with nodeID and applies the playback config. A nil
// asset binds the node for visibility only.
func (c *Controller) Bind(nodeID string, asset *VideoAsset) {
	if asset != nil {
		asset.Player.SetMuted(c.cfg.Muted)
		asset.Player.SetLoop(c.cfg.Loop)
		asset.Player.SetVolume(c.cfg.Volume)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings[nodeID] = asset
}

// Unbind removes nodeID's association and pauses its player.
func (c *Controller) Unbind(nodeID string) {
	c.mu.Lock()
	asset, ok := c.bindings[nodeID]
	delete(c.bindings, nodeID)
	c.mu.Unlock()

	if ok && asset != nil {
		asset.Player.Pause()
	}
}

// Asset returns the asset bound to nodeID.
func (c *Controller) Asset(nodeID string) (*VideoAsset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.bindings[nodeID]
	return a, ok && a != nil
}

// Nodes returns the bound node IDs in sorted order.
func (c *Controller) Nodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.bindings))
	for id := range c.bindings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HandleTrackingEvent implements l4tracking.Subscriber.
func (c *Controller) HandleTrackingEvent(ev l4tracking.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case l4tracking.MarkerFound:
		c.visible = true
		for id, asset := range c.bindings {
			c.setVisible(id, true)
			if asset == nil || !asset.Player.Paused() {
				continue
			}
			if err := asset.Player.Play(); err != nil {
				opsf("play %q on node %s: %v", asset.Name, id, err)
				continue
			}
			c.playStarts++
		}
	case l4tracking.MarkerLost:
		c.visible = false
		for id, asset := range c.bindings {
			c.setVisible(id, false)
			if asset != nil {
				asset.Player.Pause()
			}
		}
	}
}

func (c *Controller) setVisible(id string, visible bool) {
	if c.vis == nil {
		return
	}
	if err := c.vis.SetVisible(id, visible); err != nil {
		opsf("set node %s visible=%v: %v", id, visible, err)
	}
}

// PlayStarts returns how many times a paused player was started.
func (c *Controller) PlayStarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playStarts
}

// Visible reports whether the last event made bound nodes visible.
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}
