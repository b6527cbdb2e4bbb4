package scene

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/markerlens/internal/marker/l3pose"
	"github.com/banshee-data/markerlens/internal/marker/l5playback"
)

// ErrUnknownNode is returned when an operation names a node not in the scene.
var ErrUnknownNode = errors.New("unknown scene node")

// Node is a textured plane centred on its local origin in the XY plane.
type Node struct {
	ID        string
	Visible   bool
	Transform l3pose.Transform
	Width     float64
	Height    float64
	Texture   *l5playback.TextureHandle
}

// Scene is a flat collection of nodes keyed by ID. It is safe for
// concurrent use.
type Scene struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// New returns an empty scene.
func New() *Scene {
	return &Scene{nodes: make(map[string]*Node)}
}

// AddPlane adds a hidden plane with an identity transform.
func (s *Scene) AddPlane(id string, width, height float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; ok {
		return fmt.Errorf("node %q already exists", id)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("node %q: plane size must be positive, got %vx%v", id, width, height)
	}
	s.nodes[id] = &Node{ID: id, Transform: l3pose.Identity(), Width: width, Height: height}
	return nil
}

// Remove deletes a node. Unknown IDs are ignored.
func (s *Scene) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
}

// SetVisible shows or hides a node.
func (s *Scene) SetVisible(id string, visible bool) error {
	return s.update(id, func(n *Node) { n.Visible = visible })
}

// SetTransform replaces a node's model transform.
func (s *Scene) SetTransform(id string, t l3pose.Transform) error {
	return s.update(id, func(n *Node) { n.Transform = t })
}

// SetTexture attaches a texture to a node. A nil handle detaches it.
func (s *Scene) SetTexture(id string, tex *l5playback.TextureHandle) error {
	return s.update(id, func(n *Node) { n.Texture = tex })
}

func (s *Scene) update(id string, fn func(*Node)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	fn(n)
	return nil
}

// Node returns a copy of the named node.
func (s *Scene) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns copies of every node sorted by ID.
func (s *Scene) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
