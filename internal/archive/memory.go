package archive

import (
	"fmt"
	"io"
	"sync"
)

// MemoryDestination keeps snapshots in memory. Useful for testing.
// Safe for concurrent use.
type MemoryDestination struct {
	snapshots map[string][]byte
	mu        sync.RWMutex
}

// NewMemoryDestination creates a new in-memory destination.
func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{snapshots: make(map[string][]byte)}
}

// Put stores the snapshot under name.
func (d *MemoryDestination) Put(name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots[name] = data
	return nil
}

// ValidateSetup always succeeds for an in-memory destination.
func (d *MemoryDestination) ValidateSetup() error {
	return nil
}

// Snapshot returns the stored bytes for name, or false if absent.
func (d *MemoryDestination) Snapshot(name string) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.snapshots[name]
	return data, ok
}

// Names returns the stored snapshot names.
func (d *MemoryDestination) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.snapshots))
	for name := range d.snapshots {
		names = append(names, name)
	}
	return names
}

// Compile-time check that MemoryDestination implements Destination
var _ Destination = (*MemoryDestination)(nil)
