// Package message defines the wire formats moving through GridStream:
// raw measurements, device topology events, and broadcast envelopes.
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/gridstream/errors"
)

// TimestampLayout is the wire format for measurement timestamps
const TimestampLayout = "2006-01-02 15:04:05"

// Measurement is a single raw reading from a metered device. The payload
// is routed byte-identical between streams; this struct is only decoded
// where a field is inspected.
type Measurement struct {
	DeviceID  string  `json:"device_id"`
	UserID    string  `json:"user_id"`
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"measurement_value"`
}

// DecodeMeasurement parses a measurement payload without validating it.
// Routing only needs the device identifier; full validation happens at
// the validator.
func DecodeMeasurement(data []byte) (Measurement, error) {
	var m Measurement
	if err := json.Unmarshal(data, &m); err != nil {
		return Measurement{}, errors.WrapInvalid(err, "Measurement", "Decode", "unmarshal payload")
	}
	return m, nil
}

// Validate checks the fields a measurement needs before persistence
func (m Measurement) Validate() error {
	if m.DeviceID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "Measurement", "Validate", "device_id is empty")
	}
	if m.UserID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "Measurement", "Validate", "user_id is empty")
	}
	if _, err := m.RecordedAt(); err != nil {
		return err
	}
	return nil
}

// RecordedAt parses the wire timestamp
func (m Measurement) RecordedAt() (time.Time, error) {
	t, err := time.Parse(TimestampLayout, m.Timestamp)
	if err != nil {
		return time.Time{}, errors.WrapInvalid(err, "Measurement", "RecordedAt",
			fmt.Sprintf("parse timestamp %q", m.Timestamp))
	}
	return t, nil
}

// Encode serializes the measurement to its wire form
func (m Measurement) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Measurement", "Encode", "marshal payload")
	}
	return data, nil
}
