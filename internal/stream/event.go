package stream

// Kind labels one stream event variant.
type Kind string

const (
	// KindConnected is emitted once by the consumer when a stream opens.
	KindConnected Kind = "connected"
	// KindData carries the work's output.
	KindData Kind = "data"
	// KindPing is a synthetic keep-alive emitted by the consumer.
	KindPing Kind = "ping"
	// KindError carries a human-readable failure cause.
	KindError Kind = "error"
	// KindEnd is the terminal sentinel; nothing follows it.
	KindEnd Kind = "end"
)

// Event is one message on a session channel. The producer writes only Data,
// Error, and End; Connected and Ping are synthesized by the consumer.
type Event struct {
	Kind    Kind
	Payload string
}

// DataEvent wraps a work result.
func DataEvent(payload string) Event { return Event{Kind: KindData, Payload: payload} }

// ErrorEvent wraps a failure cause.
func ErrorEvent(msg string) Event { return Event{Kind: KindError, Payload: msg} }

// EndEvent is the terminal sentinel.
func EndEvent() Event { return Event{Kind: KindEnd} }
