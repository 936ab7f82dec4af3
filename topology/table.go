// Package topology materializes device lifecycle events into a local
// ownership table. Each validator replica runs its own instance; tables
// converge independently and are eventually consistent with no staleness
// bound.
package topology

import (
	"sync"
)

// Table is the in-memory device and ownership state for one replica.
// The consumer goroutine is the only writer; readers go through the
// accessor methods, never through shared references.
type Table struct {
	mu      sync.RWMutex
	devices map[string]struct{}
	owners  map[string]string // device id -> user id
}

// NewTable creates an empty ownership table
func NewTable() *Table {
	return &Table{
		devices: make(map[string]struct{}),
		owners:  make(map[string]string),
	}
}

// UpsertDevice records a device's existence. Replayed created events
// are no-ops.
func (t *Table) UpsertDevice(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices[deviceID] = struct{}{}
}

// Assign records device ownership, last write wins. The device record is
// created if the assignment arrives before the created event.
func (t *Table) Assign(deviceID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices[deviceID] = struct{}{}
	t.owners[deviceID] = userID
}

// Unassign removes device ownership. Unassigning an unowned device is
// a no-op.
func (t *Table) Unassign(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.owners, deviceID)
}

// Delete removes the device and any ownership it had
func (t *Table) Delete(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.devices, deviceID)
	delete(t.owners, deviceID)
}

// Owns reports whether the exact device/user pair is currently mapped.
// A device owned by a different user does not match.
func (t *Table) Owns(deviceID, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	owner, ok := t.owners[deviceID]
	return ok && owner == userID
}

// HasDevice reports whether the device is known
func (t *Table) HasDevice(deviceID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.devices[deviceID]
	return ok
}

// DeviceCount returns the number of known devices
func (t *Table) DeviceCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.devices)
}

// OwnershipCount returns the number of device assignments
func (t *Table) OwnershipCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.owners)
}
