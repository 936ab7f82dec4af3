// Package broadcast implements the fan-out broadcaster: a WebSocket
// server whose connected clients receive broadcast events scoped by the
// device and user they registered under.
package broadcast

import (
	"sync"
)

// hub owns the connection registries. A client registers under a device
// and/or a user at upgrade time and is removed from every registry on
// disconnect. All mutation goes through register/unregister; delivery
// takes a snapshot and never touches a socket directly.
type hub struct {
	mu       sync.RWMutex
	byDevice map[string]map[*client]struct{}
	byUser   map[string]map[*client]struct{}
}

func newHub() *hub {
	return &hub{
		byDevice: make(map[string]map[*client]struct{}),
		byUser:   make(map[string]map[*client]struct{}),
	}
}

// register adds a client to the registries its keys name
func (h *hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.deviceID != "" {
		if h.byDevice[c.deviceID] == nil {
			h.byDevice[c.deviceID] = make(map[*client]struct{})
		}
		h.byDevice[c.deviceID][c] = struct{}{}
	}
	if c.userID != "" {
		if h.byUser[c.userID] == nil {
			h.byUser[c.userID] = make(map[*client]struct{})
		}
		h.byUser[c.userID][c] = struct{}{}
	}
}

// unregister removes a client from both registries. Safe to call more
// than once; disconnect is terminal.
func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.deviceID != "" {
		if set, ok := h.byDevice[c.deviceID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byDevice, c.deviceID)
			}
		}
	}
	if c.userID != "" {
		if set, ok := h.byUser[c.userID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byUser, c.userID)
			}
		}
	}
}

// deviceClients snapshots the clients registered under a device
func (h *hub) deviceClients(deviceID string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return snapshot(h.byDevice[deviceID])
}

// userClients snapshots the clients registered under a user
func (h *hub) userClients(userID string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return snapshot(h.byUser[userID])
}

// allClients snapshots every distinct connected client
func (h *hub) allClients() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	unique := make(map[*client]struct{})
	for _, set := range h.byDevice {
		for c := range set {
			unique[c] = struct{}{}
		}
	}
	for _, set := range h.byUser {
		for c := range set {
			unique[c] = struct{}{}
		}
	}

	clients := make([]*client, 0, len(unique))
	for c := range unique {
		clients = append(clients, c)
	}
	return clients
}

// connectionCount returns the number of distinct connected clients
func (h *hub) connectionCount() int {
	return len(h.allClients())
}

func snapshot(set map[*client]struct{}) []*client {
	if len(set) == 0 {
		return nil
	}
	clients := make([]*client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}
