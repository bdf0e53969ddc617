package payload

import (
	"fmt"
	"os"
)

// MaxFileSize caps the size of a file payload.
const MaxFileSize = 1024 * 1024

// File sends the whole content of a file, re-read on every send so edits
// between sends are picked up.
type File struct {
	path string
}

// NewFile creates a file source. The file is checked once up front.
func NewFile(path string) (*File, error) {
	f := &File{path: path}
	if _, err := f.Next(0); err != nil {
		return nil, err
	}
	return f, nil
}

// Next implements Source.
func (f *File) Next(int) ([]byte, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("payload: reading %s: %w", f.path, err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrTooLarge, f.path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("payload: reading %s: %w", f.path, err)
	}
	return data, nil
}
