package capturer

import (
	"fmt"
	"os"
)

// backingStore accumulates drained output in a temporary file that is
// unlinked as soon as it has been opened twice: the file has no name but
// stays addressable through the two open handles, so captured output of any
// size survives without leaving anything on disk. The write handle is owned
// exclusively by the drain worker; the read handle by the session.
type backingStore struct {
	w *os.File
	r *os.File
	// name is empty once the unlink succeeded; kept as a removal fallback
	// for filesystems that refuse to unlink open files.
	name string
}

func newBackingStore() (*backingStore, error) {
	w, err := os.CreateTemp("", "capturer-*")
	if err != nil {
		return nil, fmt.Errorf("create backing store: %w", err)
	}
	r, err := os.Open(w.Name())
	if err != nil {
		name := w.Name()
		_ = w.Close()
		_ = os.Remove(name)
		return nil, fmt.Errorf("open backing store for reading: %w", err)
	}
	b := &backingStore{w: w, r: r, name: w.Name()}
	if err := os.Remove(b.name); err == nil {
		b.name = ""
	}
	return b, nil
}

func (b *backingStore) Close() error {
	err := b.w.Close()
	if rErr := b.r.Close(); err == nil {
		err = rErr
	}
	if b.name != "" {
		_ = os.Remove(b.name)
		b.name = ""
	}
	return err
}
