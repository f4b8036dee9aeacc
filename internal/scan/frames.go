package scan

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DirOpener serves image files from a directory as capture frames, in name
// order, one per Frame call. It stands in for a camera when the payer client
// runs headless.
type DirOpener struct {
	// Dir holds the frames for the rear facing; FrontDir, when set, holds
	// frames for the front fallback.
	Dir      string
	FrontDir string
}

func (o *DirOpener) Open(facing Facing) (Device, error) {
	dir := o.Dir
	if facing == FacingFront {
		dir = o.FrontDir
	}
	if dir == "" {
		return nil, ErrNoDevice
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		if os.IsNotExist(err) {
			return nil, ErrNoDevice
		}
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var frames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasSuffix(name, ".png") || strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") {
			frames = append(frames, filepath.Join(dir, entry.Name()))
		}
	}
	if len(frames) == 0 {
		return nil, ErrNoDevice
	}
	sort.Strings(frames)

	return &dirDevice{frames: frames}, nil
}

type dirDevice struct {
	mu     sync.Mutex
	frames []string
	next   int
	closed bool
}

func (d *dirDevice) Frame() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrNoDevice
	}
	if d.next >= len(d.frames) {
		// Loop the sequence like a live feed would keep delivering frames.
		d.next = 0
	}

	f, err := os.Open(d.frames[d.next])
	if err != nil {
		return nil, fmt.Errorf("failed to open frame %s: %w", d.frames[d.next], err)
	}
	defer f.Close()
	d.next++

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, ErrNotReady
	}
	return img, nil
}

func (d *dirDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
