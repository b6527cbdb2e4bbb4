package l1frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/banshee-data/markerlens/internal/security"
	"github.com/banshee-data/markerlens/internal/timeutil"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// ImageSequenceCamera replays a directory of still images as a camera.
// Files are read in lexical order; each call to Frame advances one image.
type ImageSequenceCamera struct {
	Dir   string
	Loop  bool // Restart from the first image after the last
	Clock timeutil.Clock
}

// Acquire lists the directory. A missing or empty directory is reported as
// ErrNoDevice, an unreadable one as ErrPermissionDenied.
func (c *ImageSequenceCamera) Acquire(ctx context.Context, cons Constraints) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		reason := ErrNoDevice
		if errors.Is(err, fs.ErrPermission) {
			reason = ErrPermissionDenied
		}
		return nil, &PermissionError{Reason: reason, Device: c.Dir, Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		path := filepath.Join(c.Dir, e.Name())
		// Symlinks may not lead outside the sequence directory.
		if err := security.ValidatePathWithinDirectory(path, c.Dir); err != nil {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, &PermissionError{Reason: ErrNoDevice, Device: c.Dir, Err: fmt.Errorf("no images found")}
	}

	clock := c.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &imageSequenceSource{
		files:       files,
		loop:        c.Loop,
		constraints: cons,
		clock:       clock,
	}, nil
}

type imageSequenceSource struct {
	mu          sync.Mutex
	files       []string
	next        int
	loop        bool
	constraints Constraints
	clock       timeutil.Clock
	stamper     Stamper
	closed      bool
}

func (s *imageSequenceSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && (s.loop || s.next < len(s.files))
}

func (s *imageSequenceSource) Frame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("image sequence source closed")
	}
	if s.next >= len(s.files) {
		if !s.loop {
			seq, ts := s.stamper.Stamp(s.clock.Now())
			return &Frame{Seq: seq, Timestamp: ts}, nil
		}
		s.next = 0
	}

	path := s.files[s.next]
	s.next++

	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	rgba := Resize(img, s.constraints.Width, s.constraints.Height)
	seq, ts := s.stamper.Stamp(s.clock.Now())
	return NewFrame(seq, ts, rgba, true), nil
}

func (s *imageSequenceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}
	return img, nil
}

// LoadImage decodes a single image file in any supported format.
func LoadImage(path string) (image.Image, error) {
	return decodeImage(path)
}

// Stamper hands out sequence numbers and strictly increasing timestamps.
// The zero value is ready to use; it is not safe for concurrent use.
type Stamper struct {
	seq  uint64
	last time.Time
}

// Stamp returns the next sequence number and now, nudged forward by a
// nanosecond if the clock did not advance since the previous stamp.
func (s *Stamper) Stamp(now time.Time) (uint64, time.Time) {
	if !s.last.IsZero() && !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	s.seq++
	return s.seq, now
}
