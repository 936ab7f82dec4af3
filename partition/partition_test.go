package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplicaDeterministic(t *testing.T) {
	ids := []string{
		"d8f3b2a1-0000-0000-0000-000000000001",
		"a1b2c3d4-0000-0000-0000-000000000002",
		"device-with-plain-name",
	}

	for _, id := range ids {
		first := Replica(id, 3)
		for i := 0; i < 100; i++ {
			assert.Equal(t, first, Replica(id, 3), "assignment must be stable for %s", id)
		}
	}
}

func TestReplicaWithinRange(t *testing.T) {
	for n := 1; n <= 16; n++ {
		for i := 0; i < 200; i++ {
			id := fmt.Sprintf("device-%d", i)
			r := Replica(id, n)
			assert.GreaterOrEqual(t, r, 0)
			assert.Less(t, r, n)
		}
	}
}

func TestReplicaSingleReplica(t *testing.T) {
	assert.Equal(t, 0, Replica("any-device", 1))
}

func TestReplicaSpreadsLoad(t *testing.T) {
	// Not a uniformity proof, just a sanity check that more than one
	// replica receives assignments.
	seen := make(map[int]bool)
	for i := 0; i < 100; i++ {
		seen[Replica(fmt.Sprintf("device-%d", i), 4)] = true
	}
	assert.Greater(t, len(seen), 1)
}
