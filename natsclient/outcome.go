package natsclient

// Outcome is the explicit result a message handler returns to its consumer
// loop. The loop, not the handler, decides acknowledgement from it, which
// makes the poison-message and retry policy a testable contract instead of
// control flow buried in callbacks.
type Outcome int

const (
	// Accept acknowledges the message; processing succeeded.
	Accept Outcome = iota
	// Discard acknowledges the message without processing it further.
	// Used for malformed payloads and business-rule rejections so they
	// are never redelivered.
	Discard
	// Retry negatively acknowledges the message for redelivery.
	// Used for transient failures such as an unavailable store.
	Retry
	// Reject terminates the message: no acknowledgement of success, no
	// redelivery. Used when redelivery cannot help, e.g. a republish
	// that failed from a state immediate retry will not fix.
	Reject
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case Accept:
		return "accept"
	case Discard:
		return "discard"
	case Retry:
		return "retry"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}
