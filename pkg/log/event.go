package log

import (
	"time"

	"github.com/armish/fireplace/pkg/action"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the peer session or server run (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Endpoint is the local endpoint the event belongs to.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address, when the transport knows it.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Module is the name of the loaded module.
	Module string `cbor:"8,keyasint,omitempty"`

	// Unit is the name of the loaded processing unit.
	Unit string `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Lifecycle state
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the socket layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the envelope layer (decoded JSON).
	LayerWire Layer = 1
	// LayerModule is the module and driver layer.
	LayerModule Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerModule:
		return "MODULE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request, response or queued item.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw message data at the transport layer.
type FrameEvent struct {
	// Size is the message size in bytes (including any length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated for large messages).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded envelope or a forwarded queue item.
type MessageEvent struct {
	// Type distinguishes request/response/item.
	Type MessageType `cbor:"1,keyasint"`

	// Action of the request (requests and responses).
	Action action.Action `cbor:"2,keyasint,omitempty"`

	// Method of the request (requests and responses).
	Method string `cbor:"3,keyasint,omitempty"`

	// ParamCount is the number of request parameters or item parameters.
	ParamCount int `cbor:"4,keyasint,omitempty"`

	// IsError is set on error responses.
	IsError bool `cbor:"5,keyasint,omitempty"`

	// Result is the response result (responses only).
	Result any `cbor:"6,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send (response only).
	// Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"7,keyasint,omitempty"`
}

// MessageType distinguishes request/response/item.
type MessageType uint8

const (
	// MessageTypeRequest indicates a client request.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response to a request.
	MessageTypeResponse MessageType = 1
	// MessageTypeItem indicates a queue item forwarded on the async endpoint.
	MessageTypeItem MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeItem:
		return "ITEM"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures server, worker, module and unit lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityServer indicates a middleware server state change.
	StateEntityServer StateEntity = 0
	// StateEntityWorker indicates a sync or async worker state change.
	StateEntityWorker StateEntity = 1
	// StateEntityModule indicates a module load or unload.
	StateEntityModule StateEntity = 2
	// StateEntityUnit indicates a processing unit load or unload.
	StateEntityUnit StateEntity = 3
	// StateEntitySession indicates a peer attaching to or leaving an endpoint.
	StateEntitySession StateEntity = 4
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityServer:
		return "SERVER"
	case StateEntityWorker:
		return "WORKER"
	case StateEntityModule:
		return "MODULE"
	case StateEntityUnit:
		return "UNIT"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Fatal marks errors that stop the service.
	Fatal bool `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
