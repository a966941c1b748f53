package log

import (
	"time"

	"github.com/armish/fireplace/pkg/action"
)

// MaxFrameDataSize is the maximum payload size copied into a FrameEvent.
// Larger payloads are truncated.
const MaxFrameDataSize = 4096

// NewFrameEvent builds a transport layer event for a message of size bytes
// on the wire carrying data.
func NewFrameEvent(sessionID, endpoint string, dir Direction, size int, data []byte) Event {
	truncated := false
	if len(data) > MaxFrameDataSize {
		data = data[:MaxFrameDataSize]
		truncated = true
	}
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Direction: dir,
		Layer:     LayerTransport,
		Category:  CategoryMessage,
		Endpoint:  endpoint,
		Frame: &FrameEvent{
			Size:      size,
			Data:      append([]byte(nil), data...),
			Truncated: truncated,
		},
	}
}

// NewRequestEvent builds a wire layer event for a decoded request.
func NewRequestEvent(sessionID, endpoint string, act action.Action, method string, params int) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Direction: DirectionIn,
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Endpoint:  endpoint,
		Message: &MessageEvent{
			Type:       MessageTypeRequest,
			Action:     act,
			Method:     method,
			ParamCount: params,
		},
	}
}

// NewResponseEvent builds a wire layer event for a response sent after
// elapsed processing time.
func NewResponseEvent(sessionID, endpoint string, act action.Action, method string, result any, isError bool, elapsed time.Duration) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Direction: DirectionOut,
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Endpoint:  endpoint,
		Message: &MessageEvent{
			Type:           MessageTypeResponse,
			Action:         act,
			Method:         method,
			IsError:        isError,
			Result:         result,
			ProcessingTime: &elapsed,
		},
	}
}

// NewItemEvent builds a wire layer event for a queue item forwarded to the client.
func NewItemEvent(sessionID, endpoint string, params int) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Direction: DirectionOut,
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Endpoint:  endpoint,
		Message: &MessageEvent{
			Type:       MessageTypeItem,
			ParamCount: params,
		},
	}
}

// NewStateEvent builds a module layer state change event.
func NewStateEvent(sessionID string, entity StateEntity, oldState, newState, reason string) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Layer:     LayerModule,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// NewErrorEvent builds an error event for err at layer.
func NewErrorEvent(sessionID string, layer Layer, err error, context string, fatal bool) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Layer:     layer,
		Category:  CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Fatal:   fatal,
			Context: context,
		},
	}
}
