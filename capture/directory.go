package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nvr-ai/go-livedetect/images"
)

// ImageFile represents an encoded frame on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from the file name, or the position in the directory listing.
	Frame int
}

// LoadDirectoryImageFiles lists the image files of a directory in frame order.
//
// Files named "frame-N.ext" are ordered by N. Other names are numbered from the listing length onward in lexical order.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The image files, sorted by frame number.
//   - error: Error if the directory cannot be read.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []ImageFile
	for i, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := formatForExt(ext); !ok {
			continue
		}

		frame, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "frame-"), filepath.Ext(entry.Name())))
		if err != nil {
			frame = len(entries) + i
		}
		files = append(files, ImageFile{
			Path:  filepath.Join(dir, entry.Name()),
			Frame: frame,
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Frame < files[j].Frame
	})

	return files, nil
}

func formatForExt(ext string) (images.ImageFormat, bool) {
	switch ext {
	case ".jpg", ".jpeg":
		return images.FormatJPEG, true
	case ".png":
		return images.FormatPNG, true
	case ".webp":
		return images.FormatWebP, true
	}
	return "", false
}

// DirectorySource replays the image files of a directory as a frame source.
type DirectorySource struct {
	mu     sync.Mutex
	files  []ImageFile
	next   int
	loop   bool
	closed bool
}

// NewDirectorySource lists dir and returns a source over its frames.
//
// Arguments:
//   - dir: The directory to replay.
//   - loop: Restart from the first frame after the last one.
//
// Returns:
//   - *DirectorySource: The source.
//   - error: If the directory cannot be read or holds no images.
func NewDirectorySource(dir string, loop bool) (*DirectorySource, error) {
	files, err := LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	return &DirectorySource{files: files, loop: loop}, nil
}

// Len returns the number of frames in the directory.
func (s *DirectorySource) Len() int {
	return len(s.files)
}

// Active reports whether frames remain.
func (s *DirectorySource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && (s.loop || s.next < len(s.files))
}

// Ready is equivalent to Active.
func (s *DirectorySource) Ready() bool {
	return s.Active()
}

// Read decodes the next frame.
func (s *DirectorySource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSourceClosed
	}
	if s.next >= len(s.files) {
		if !s.loop {
			s.mu.Unlock()
			return nil, ErrSourceClosed
		}
		s.next = 0
	}
	file := s.files[s.next]
	s.next++
	s.mu.Unlock()

	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame %d: %w", file.Frame, err)
	}

	format, _ := formatForExt(strings.ToLower(filepath.Ext(file.Path)))
	img := &images.Image{Format: format, Data: data}
	decoded, err := img.Decode()
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", file.Path, err)
	}
	return decoded, nil
}

// Close stops the replay.
func (s *DirectorySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
