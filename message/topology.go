package message

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/gridstream/errors"
)

// Device topology event kinds, matching the subject suffix they arrive on
const (
	DeviceCreated    = "created"
	DeviceAssigned   = "assigned"
	DeviceUnassigned = "unassigned"
	DeviceDeleted    = "deleted"
)

// TopologyEvent is a decoded device lifecycle event. UserID is set only
// for assignment events.
type TopologyEvent struct {
	Kind     string
	DeviceID string
	UserID   string
}

// deviceEventObject is the object payload form. Which keys a publisher
// uses varies by event kind, so all are optional here.
type deviceEventObject struct {
	ID       string `json:"id"`
	DeviceID string `json:"deviceId"`
	UserID   string `json:"userId"`
}

// DecodeTopologyEvent parses a device event payload for the given kind.
// Publishers are inconsistent: created events carry {"id": ...}, assigned
// events carry {"deviceId": ..., "userId": ...}, and unassigned/deleted
// events arrive as either an object or a bare JSON string identifier.
// All forms are accepted.
func DecodeTopologyEvent(kind string, data []byte) (TopologyEvent, error) {
	ev := TopologyEvent{Kind: kind}

	switch kind {
	case DeviceCreated:
		obj, err := decodeObjectOrBare(data)
		if err != nil {
			return TopologyEvent{}, err
		}
		ev.DeviceID = firstNonEmpty(obj.ID, obj.DeviceID)

	case DeviceAssigned:
		var obj deviceEventObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return TopologyEvent{}, errors.WrapInvalid(err, "TopologyEvent", "Decode", "unmarshal assigned payload")
		}
		ev.DeviceID = obj.DeviceID
		ev.UserID = obj.UserID

	case DeviceUnassigned, DeviceDeleted:
		obj, err := decodeObjectOrBare(data)
		if err != nil {
			return TopologyEvent{}, err
		}
		ev.DeviceID = firstNonEmpty(obj.ID, obj.DeviceID)

	default:
		return TopologyEvent{}, errors.WrapInvalid(
			fmt.Errorf("unknown device event kind %q", kind),
			"TopologyEvent", "Decode", "kind validation")
	}

	if ev.DeviceID == "" {
		return TopologyEvent{}, errors.WrapInvalid(errors.ErrMissingField,
			"TopologyEvent", "Decode",
			fmt.Sprintf("%s event without device identifier", kind))
	}
	if kind == DeviceAssigned && ev.UserID == "" {
		return TopologyEvent{}, errors.WrapInvalid(errors.ErrMissingField,
			"TopologyEvent", "Decode", "assigned event without user identifier")
	}

	return ev, nil
}

// KindFromSubject extracts the event kind from a device subject,
// e.g. "device.assigned" yields "assigned".
func KindFromSubject(subject string) string {
	if idx := strings.LastIndex(subject, "."); idx >= 0 {
		return subject[idx+1:]
	}
	return subject
}

// decodeObjectOrBare handles payloads that are either an identifier
// object or a bare JSON string
func decodeObjectOrBare(data []byte) (deviceEventObject, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var obj deviceEventObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return deviceEventObject{}, errors.WrapInvalid(err, "TopologyEvent", "Decode", "unmarshal object payload")
		}
		return obj, nil
	}

	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		// Raw unquoted identifier as a last resort
		if trimmed != "" && !strings.ContainsAny(trimmed, "{}[]\"") {
			return deviceEventObject{ID: trimmed}, nil
		}
		return deviceEventObject{}, errors.WrapInvalid(err, "TopologyEvent", "Decode", "unmarshal bare identifier")
	}
	return deviceEventObject{ID: id}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
