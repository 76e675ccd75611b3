package log

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// rollingWriter is a minimal size-triggered rotating file writer backing
// the logger.rolling_file_size config knob. It rotates the current file to
// a timestamped sibling once it exceeds maxSizeMB.
type rollingWriter struct {
	mu        sync.Mutex
	path      string
	maxBytes  int64
	size      int64
	f         *os.File
}

func newRollingWriter(path string, maxSizeMB int) (*rollingWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	return &rollingWriter{
		path:     path,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		size:     info.Size(),
		f:        f,
	}, nil
}

func (w *rollingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rollingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Sync()
}

func (w *rollingWriter) rotate() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	rotated := fmt.Sprintf("%s.%s", w.path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(w.path, rotated); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.size = 0
	return nil
}
