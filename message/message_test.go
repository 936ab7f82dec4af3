package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gridstream/errors"
)

func TestDecodeMeasurement(t *testing.T) {
	payload := []byte(`{
		"device_id": "d8f3b2a1-0000-0000-0000-000000000001",
		"user_id": "a1b2c3d4-0000-0000-0000-000000000002",
		"timestamp": "2026-08-29 14:30:00",
		"measurement_value": 1.2345
	}`)

	m, err := DecodeMeasurement(payload)
	require.NoError(t, err)
	assert.Equal(t, "d8f3b2a1-0000-0000-0000-000000000001", m.DeviceID)
	assert.Equal(t, 1.2345, m.Value)
	require.NoError(t, m.Validate())

	ts, err := m.RecordedAt()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC), ts)
}

func TestDecodeMeasurementMalformed(t *testing.T) {
	_, err := DecodeMeasurement([]byte(`{not json`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMeasurementValidate(t *testing.T) {
	base := Measurement{
		DeviceID:  "dev-1",
		UserID:    "user-1",
		Timestamp: "2026-08-29 10:00:00",
		Value:     2.5,
	}

	tests := []struct {
		name   string
		mutate func(*Measurement)
		ok     bool
	}{
		{"valid", func(*Measurement) {}, true},
		{"missing device", func(m *Measurement) { m.DeviceID = "" }, false},
		{"missing user", func(m *Measurement) { m.UserID = "" }, false},
		{"bad timestamp", func(m *Measurement) { m.Timestamp = "29/08/2026 10:00" }, false},
		{"empty timestamp", func(m *Measurement) { m.Timestamp = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base
			tt.mutate(&m)
			err := m.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
			}
		})
	}
}

func TestDecodeTopologyEventForms(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		payload string
		want    TopologyEvent
	}{
		{
			"created object",
			DeviceCreated,
			`{"id": "dev-1"}`,
			TopologyEvent{Kind: DeviceCreated, DeviceID: "dev-1"},
		},
		{
			"created bare string",
			DeviceCreated,
			`"dev-1"`,
			TopologyEvent{Kind: DeviceCreated, DeviceID: "dev-1"},
		},
		{
			"assigned object",
			DeviceAssigned,
			`{"deviceId": "dev-1", "userId": "user-7"}`,
			TopologyEvent{Kind: DeviceAssigned, DeviceID: "dev-1", UserID: "user-7"},
		},
		{
			"unassigned bare string",
			DeviceUnassigned,
			`"dev-1"`,
			TopologyEvent{Kind: DeviceUnassigned, DeviceID: "dev-1"},
		},
		{
			"unassigned object with id",
			DeviceUnassigned,
			`{"id": "dev-1"}`,
			TopologyEvent{Kind: DeviceUnassigned, DeviceID: "dev-1"},
		},
		{
			"deleted object with deviceId",
			DeviceDeleted,
			`{"deviceId": "dev-1"}`,
			TopologyEvent{Kind: DeviceDeleted, DeviceID: "dev-1"},
		},
		{
			"deleted raw unquoted identifier",
			DeviceDeleted,
			`dev-1`,
			TopologyEvent{Kind: DeviceDeleted, DeviceID: "dev-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeTopologyEvent(tt.kind, []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestDecodeTopologyEventErrors(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		payload string
	}{
		{"unknown kind", "rebooted", `{"id": "dev-1"}`},
		{"created without id", DeviceCreated, `{}`},
		{"assigned without user", DeviceAssigned, `{"deviceId": "dev-1"}`},
		{"assigned without device", DeviceAssigned, `{"userId": "user-7"}`},
		{"deleted empty object", DeviceDeleted, `{}`},
		{"malformed object", DeviceCreated, `{broken`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTopologyEvent(tt.kind, []byte(tt.payload))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestKindFromSubject(t *testing.T) {
	assert.Equal(t, "assigned", KindFromSubject("device.assigned"))
	assert.Equal(t, "created", KindFromSubject("device.created"))
	assert.Equal(t, "deleted", KindFromSubject("deleted"))
}

func TestEnvelopeUserDeliverable(t *testing.T) {
	tests := []struct {
		name string
		env  BroadcastEnvelope
		want bool
	}{
		{"chat with user", BroadcastEnvelope{UserID: "u1", Type: TypeChat}, true},
		{"alert with user", BroadcastEnvelope{UserID: "u1", Type: TypeAlert}, true},
		{"measurement with user", BroadcastEnvelope{UserID: "u1", DeviceID: "d1", Type: TypeMeasurement}, false},
		{"untyped with user", BroadcastEnvelope{UserID: "u1", DeviceID: "d1"}, false},
		{"chat without user", BroadcastEnvelope{Type: TypeChat}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.env.UserDeliverable())
		})
	}
}

func TestMeasurementEnvelope(t *testing.T) {
	m := Measurement{
		DeviceID:  "dev-1",
		UserID:    "user-7",
		Timestamp: "2026-08-29 10:00:00",
		Value:     3.25,
	}

	env := MeasurementEnvelope(m)
	assert.Equal(t, "dev-1", env.DeviceID)
	assert.Equal(t, "user-7", env.UserID)
	assert.Equal(t, TypeMeasurement, env.Type)
	assert.Equal(t, 3.25, env.Value)
	assert.False(t, env.UserDeliverable())

	data, err := env.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)
}
