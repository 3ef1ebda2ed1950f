package infra

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/deepakjacob/launchk/internal/domain"
)

// Fifo is a named pipe in a private 0700 temp directory.
type Fifo struct {
	dir  string
	path string
	r    *os.File
	w    *os.File
}

// NewFifo creates the FIFO and opens both ends.
//
// The read end is opened non-blocking first so that opening the write end
// cannot wait on a reader, then switched back to blocking reads.
func NewFifo() (*Fifo, error) {
	dir, err := os.MkdirTemp("", "launchk-fifo-")
	if err != nil {
		return nil, fmt.Errorf("failed to create fifo dir: %w", err)
	}
	if err := os.Chmod(dir, 0700); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to restrict fifo dir: %w", err)
	}

	f := &Fifo{dir: dir, path: filepath.Join(dir, "procinfo")}
	if err := unix.Mkfifo(f.path, 0600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create fifo: %w", err)
	}

	f.r, err = os.OpenFile(f.path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		f.Remove()
		return nil, fmt.Errorf("failed to open fifo for reading: %w", err)
	}
	f.w, err = os.OpenFile(f.path, os.O_WRONLY, 0)
	if err != nil {
		f.Remove()
		return nil, fmt.Errorf("failed to open fifo for writing: %w", err)
	}
	if err := unix.SetNonblock(int(f.r.Fd()), false); err != nil {
		f.Remove()
		return nil, fmt.Errorf("failed to set fifo blocking: %w", err)
	}
	return f, nil
}

// Path returns the FIFO's filesystem path.
func (f *Fifo) Path() string {
	return f.path
}

// Reader returns the read end. It reports EOF once the write end is closed.
func (f *Fifo) Reader() io.ReadCloser {
	return f.r
}

// Writer returns the write end.
func (f *Fifo) Writer() io.WriteCloser {
	return f.w
}

// Remove closes any open ends and deletes the FIFO and its directory.
func (f *Fifo) Remove() error {
	if f.w != nil {
		f.w.Close()
	}
	if f.r != nil {
		f.r.Close()
	}
	return os.RemoveAll(f.dir)
}

// FifoFactory creates a fresh FIFO per request.
type FifoFactory struct{}

// NewPipe implements domain.PipeFactory.
func (FifoFactory) NewPipe() (domain.Pipe, error) {
	return NewFifo()
}

// Ensure Fifo implements domain.Pipe.
var _ domain.Pipe = (*Fifo)(nil)
var _ domain.PipeFactory = FifoFactory{}
