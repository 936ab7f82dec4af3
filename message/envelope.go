package message

import (
	"encoding/json"

	"github.com/c360/gridstream/errors"
)

// Envelope types that target the user registry. Anything else (including
// an absent type, the plain measurement case) is delivered by device only.
const (
	TypeChat        = "chat"
	TypeAlert       = "alert"
	TypeMeasurement = "measurement"
)

// BroadcastEnvelope is a fan-out event on the broadcast stream. The raw
// payload is forwarded to clients verbatim; only the addressing fields
// are inspected for delivery.
type BroadcastEnvelope struct {
	DeviceID  string  `json:"device_id,omitempty"`
	UserID    string  `json:"user_id,omitempty"`
	Type      string  `json:"type,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	Value     float64 `json:"measurement_value,omitempty"`
	Text      string  `json:"text,omitempty"`
}

// DecodeEnvelope parses a broadcast payload
func DecodeEnvelope(data []byte) (BroadcastEnvelope, error) {
	var e BroadcastEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return BroadcastEnvelope{}, errors.WrapInvalid(err, "BroadcastEnvelope", "Decode", "unmarshal payload")
	}
	return e, nil
}

// Encode serializes the envelope to its wire form
func (e BroadcastEnvelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WrapInvalid(err, "BroadcastEnvelope", "Encode", "marshal payload")
	}
	return data, nil
}

// UserDeliverable reports whether the envelope targets the user registry.
// Chat and alert events reach a user's connections directly; measurements
// reach only the connections registered for the device.
func (e BroadcastEnvelope) UserDeliverable() bool {
	if e.UserID == "" {
		return false
	}
	return e.Type == TypeChat || e.Type == TypeAlert
}

// MeasurementEnvelope builds the broadcast form of an accepted measurement
func MeasurementEnvelope(m Measurement) BroadcastEnvelope {
	return BroadcastEnvelope{
		DeviceID:  m.DeviceID,
		UserID:    m.UserID,
		Type:      TypeMeasurement,
		Timestamp: m.Timestamp,
		Value:     m.Value,
	}
}
