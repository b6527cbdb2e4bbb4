package l1frames

import (
	"image"
	"sync"
	"time"
)

// SliceSource serves a fixed list of images, one per Frame call. A nil
// entry yields a not-ready frame, which models a stalled decoder. After
// the last image the source keeps returning not-ready frames.
type SliceSource struct {
	mu      sync.Mutex
	images  []image.Image
	next    int
	start   time.Time
	stamper Stamper
}

// NewSliceSource returns a source over images with timestamps starting at
// start and advancing one millisecond per frame.
func NewSliceSource(start time.Time, images ...image.Image) *SliceSource {
	return &SliceSource{images: images, start: start}
}

// Ready reports whether an unread image remains.
func (s *SliceSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next < len(s.images) && s.images[s.next] != nil
}

// Frame returns the next image as a Frame.
func (s *SliceSource) Frame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var img image.Image
	if s.next < len(s.images) {
		img = s.images[s.next]
	}
	s.next++
	seq, ts := s.stamper.Stamp(s.start.Add(time.Duration(s.next) * time.Millisecond))
	if img == nil {
		return &Frame{Seq: seq, Timestamp: ts}, nil
	}
	return NewFrame(seq, ts, img, true), nil
}

// Close is a no-op.
func (s *SliceSource) Close() error { return nil }
