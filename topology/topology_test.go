package topology

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gridstream/component"
	"github.com/c360/gridstream/metric"
	"github.com/c360/gridstream/natsclient"
)

func TestTableOwnsExactPair(t *testing.T) {
	table := NewTable()
	table.UpsertDevice("dev-1")
	table.Assign("dev-1", "user-1")

	assert.True(t, table.Owns("dev-1", "user-1"))
	assert.False(t, table.Owns("dev-1", "user-2"), "wrong user must not match")
	assert.False(t, table.Owns("dev-2", "user-1"), "unknown device must not match")
}

func TestTableAssignUnassignSequence(t *testing.T) {
	table := NewTable()
	table.UpsertDevice("dev-1")

	table.Assign("dev-1", "user-1")
	assert.True(t, table.Owns("dev-1", "user-1"))

	table.Unassign("dev-1")
	assert.False(t, table.Owns("dev-1", "user-1"))

	// Unassign on an unowned device is a no-op
	table.Unassign("dev-1")
	assert.False(t, table.Owns("dev-1", "user-1"))
}

func TestTableReassignmentLastWriteWins(t *testing.T) {
	table := NewTable()
	table.Assign("dev-1", "user-1")
	table.Assign("dev-1", "user-2")

	assert.False(t, table.Owns("dev-1", "user-1"))
	assert.True(t, table.Owns("dev-1", "user-2"))
	assert.Equal(t, 1, table.OwnershipCount())
}

func TestTableCreatedIdempotent(t *testing.T) {
	table := NewTable()
	table.UpsertDevice("dev-1")
	table.UpsertDevice("dev-1")
	assert.Equal(t, 1, table.DeviceCount())
}

func TestTableAssignBeforeCreated(t *testing.T) {
	// Out-of-order delivery: assignment arrives before the created event
	table := NewTable()
	table.Assign("dev-1", "user-1")

	assert.True(t, table.HasDevice("dev-1"))
	assert.True(t, table.Owns("dev-1", "user-1"))

	table.UpsertDevice("dev-1")
	assert.True(t, table.Owns("dev-1", "user-1"), "replayed created must not clear ownership")
}

func TestTableDeleteRemovesOwnership(t *testing.T) {
	table := NewTable()
	table.Assign("dev-1", "user-1")
	table.Delete("dev-1")

	assert.False(t, table.HasDevice("dev-1"))
	assert.False(t, table.Owns("dev-1", "user-1"))
	assert.Equal(t, 0, table.DeviceCount())
	assert.Equal(t, 0, table.OwnershipCount())
}

func newTestMaterializer(t *testing.T, replicaID int) *Materializer {
	t.Helper()

	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	deps := component.Dependencies{
		NATSClient:      client,
		MetricsRegistry: metric.NewMetricsRegistry(),
	}

	raw, err := json.Marshal(Config{ReplicaID: replicaID})
	require.NoError(t, err)

	comp, err := NewMaterializer(raw, deps)
	require.NoError(t, err)

	mz, ok := comp.(*Materializer)
	require.True(t, ok)
	return mz
}

func TestMaterializerEventSequence(t *testing.T) {
	mz := newTestMaterializer(t, 0)
	ctx := context.Background()

	steps := []struct {
		subject string
		payload string
		outcome natsclient.Outcome
	}{
		{"device.created", `{"id": "dev-1"}`, natsclient.Accept},
		{"device.assigned", `{"deviceId": "dev-1", "userId": "user-1"}`, natsclient.Accept},
		{"device.unassigned", `"dev-1"`, natsclient.Accept},
		{"device.assigned", `{"deviceId": "dev-1", "userId": "user-2"}`, natsclient.Accept},
		{"device.deleted", `{"id": "dev-1"}`, natsclient.Accept},
	}

	expectations := []func(*Table){
		func(tb *Table) { assert.True(t, tb.HasDevice("dev-1")) },
		func(tb *Table) { assert.True(t, tb.Owns("dev-1", "user-1")) },
		func(tb *Table) { assert.False(t, tb.Owns("dev-1", "user-1")) },
		func(tb *Table) { assert.True(t, tb.Owns("dev-1", "user-2")) },
		func(tb *Table) { assert.False(t, tb.HasDevice("dev-1")) },
	}

	for i, step := range steps {
		outcome := mz.handleEvent(ctx, step.subject, []byte(step.payload))
		assert.Equal(t, step.outcome, outcome, "step %d", i)
		expectations[i](mz.Table())
	}
}

func TestMaterializerMalformedEventDiscards(t *testing.T) {
	mz := newTestMaterializer(t, 0)
	ctx := context.Background()

	tests := []struct {
		name    string
		subject string
		payload string
	}{
		{"broken json", "device.created", `{broken`},
		{"assigned without user", "device.assigned", `{"deviceId": "dev-1"}`},
		{"unknown event kind", "device.rebooted", `{"id": "dev-1"}`},
		{"empty object", "device.deleted", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := mz.handleEvent(ctx, tt.subject, []byte(tt.payload))
			assert.Equal(t, natsclient.Discard, outcome)
		})
	}

	// Table untouched by malformed events
	assert.Equal(t, 0, mz.Table().DeviceCount())
}

func TestMaterializerRedeliveryIdempotent(t *testing.T) {
	mz := newTestMaterializer(t, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mz.handleEvent(ctx, "device.created", []byte(`{"id": "dev-1"}`))
		mz.handleEvent(ctx, "device.assigned", []byte(`{"deviceId": "dev-1", "userId": "user-1"}`))
	}

	assert.Equal(t, 1, mz.Table().DeviceCount())
	assert.Equal(t, 1, mz.Table().OwnershipCount())
	assert.True(t, mz.Table().Owns("dev-1", "user-1"))
}

func TestMaterializerMeta(t *testing.T) {
	mz := newTestMaterializer(t, 0)
	assert.Equal(t, "topology-materializer", mz.Meta().Name)
	assert.Equal(t, "processor", mz.Meta().Type)
}

func TestNewMaterializerInvalidConfig(t *testing.T) {
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)
	deps := component.Dependencies{NATSClient: client}

	_, err = NewMaterializer(json.RawMessage(`{"replica_id": -1}`), deps)
	assert.Error(t, err)

	_, err = NewMaterializer(json.RawMessage(`{broken`), deps)
	assert.Error(t, err)
}
