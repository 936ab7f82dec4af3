package message

import "fmt"

// Stream and subject layout. Subject names are part of the wire contract
// with device publishers and the chat collaborator, so they live with the
// payload definitions.
const (
	// StreamTelemetry holds raw measurements from devices
	StreamTelemetry = "TELEMETRY"
	// SubjectIngress is where devices publish raw measurements
	SubjectIngress = "telemetry.ingress"

	// StreamReplicas holds routed measurements, one subject per replica
	StreamReplicas = "TELEMETRY_REPLICAS"
	// ReplicaSubjectPrefix prefixes per-replica subjects
	ReplicaSubjectPrefix = "telemetry.replica."

	// StreamDevices holds device topology events
	StreamDevices = "DEVICES"
	// SubjectDeviceWildcard matches every device event subject
	SubjectDeviceWildcard = "device.>"

	// SubjectBroadcast is the core NATS fan-out subject. Not
	// stream-backed: late joiners get no backlog.
	SubjectBroadcast = "broadcast.events"
)

// ReplicaSubject returns the routed subject for a replica index
func ReplicaSubject(replica int) string {
	return fmt.Sprintf("%s%d", ReplicaSubjectPrefix, replica)
}

// TopologyDurable names the per-replica durable consumer on the device
// stream. Each replica materializes its own ownership table, so each
// needs its own cursor.
func TopologyDurable(replica int) string {
	return fmt.Sprintf("topology-replica-%d", replica)
}

// ReplicaDurable names the per-replica durable consumer on the routed
// measurement stream
func ReplicaDurable(replica int) string {
	return fmt.Sprintf("validator-replica-%d", replica)
}
