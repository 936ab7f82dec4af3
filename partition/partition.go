// Package partition assigns devices to validator replicas.
package partition

import (
	"hash/fnv"
)

// Replica maps a device identifier to a replica index in [0, n).
// The assignment is a pure function of the identifier bytes, so it is
// stable across restarts and identical on every router instance. It is
// never persisted. Callers guarantee n > 0 and a non-empty identifier.
func Replica(deviceID string, n int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(deviceID))
	return int(h.Sum64() % uint64(n))
}
