package log

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/armish/fireplace/pkg/action"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 123456789, time.UTC)
	original := Event{
		Timestamp:  ts,
		SessionID:  "abc12345-def6-7890-abcd-ef1234567890",
		Direction:  DirectionOut,
		Layer:      LayerWire,
		Category:   CategoryMessage,
		Endpoint:   "tcp://127.0.0.1:5555",
		RemoteAddr: "127.0.0.1:41234",
		Module:     "switches",
		Unit:       "circulator_switch",
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.SessionID != original.SessionID {
		t.Errorf("SessionID: got %q, want %q", decoded.SessionID, original.SessionID)
	}
	if decoded.Direction != original.Direction {
		t.Errorf("Direction: got %v, want %v", decoded.Direction, original.Direction)
	}
	if decoded.Layer != original.Layer {
		t.Errorf("Layer: got %v, want %v", decoded.Layer, original.Layer)
	}
	if decoded.Endpoint != original.Endpoint {
		t.Errorf("Endpoint: got %q, want %q", decoded.Endpoint, original.Endpoint)
	}
	if decoded.Module != original.Module || decoded.Unit != original.Unit {
		t.Errorf("Module/Unit: got %q/%q, want %q/%q", decoded.Module, decoded.Unit, original.Module, original.Unit)
	}
}

func TestFrameEventTruncation(t *testing.T) {
	payload := make([]byte, MaxFrameDataSize+10)
	event := NewFrameEvent("s1", "inproc://x", DirectionIn, len(payload)+4, payload)

	if !event.Frame.Truncated {
		t.Error("expected frame to be truncated")
	}
	if len(event.Frame.Data) != MaxFrameDataSize {
		t.Errorf("frame data = %d bytes, want %d", len(event.Frame.Data), MaxFrameDataSize)
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if decoded.Frame == nil || decoded.Frame.Size != len(payload)+4 {
		t.Errorf("decoded frame = %+v", decoded.Frame)
	}
}

func TestMessageEventRoundTrip(t *testing.T) {
	event := NewResponseEvent("s1", "tcp://:5555", action.Request, "echo", "x", false, 3*time.Millisecond)

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	msg := decoded.Message
	if msg == nil {
		t.Fatal("expected message payload")
	}
	if msg.Type != MessageTypeResponse {
		t.Errorf("Type: got %v, want RESPONSE", msg.Type)
	}
	if msg.Action != action.Request {
		t.Errorf("Action: got %v, want request", msg.Action)
	}
	if msg.Method != "echo" {
		t.Errorf("Method: got %q", msg.Method)
	}
	if msg.Result != "x" {
		t.Errorf("Result: got %v", msg.Result)
	}
	if msg.ProcessingTime == nil || *msg.ProcessingTime != 3*time.Millisecond {
		t.Errorf("ProcessingTime: got %v", msg.ProcessingTime)
	}
}

func TestStateAndErrorEventRoundTrip(t *testing.T) {
	events := []Event{
		NewStateEvent("s1", StateEntityServer, "stopped", "running", "reconfigure"),
		NewErrorEvent("s1", LayerTransport, errors.New("bind failed"), "listen", true),
	}

	for _, event := range events {
		data, err := EncodeEvent(event)
		if err != nil {
			t.Fatalf("EncodeEvent failed: %v", err)
		}
		decoded, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		if decoded.Category != event.Category {
			t.Errorf("Category: got %v, want %v", decoded.Category, event.Category)
		}
	}

	state, _ := DecodeEvent(mustEncode(t, events[0]))
	if state.StateChange == nil || state.StateChange.NewState != "running" || state.StateChange.Entity != StateEntityServer {
		t.Errorf("state change = %+v", state.StateChange)
	}

	errEvent, _ := DecodeEvent(mustEncode(t, events[1]))
	if errEvent.Error == nil || errEvent.Error.Message != "bind failed" || !errEvent.Error.Fatal {
		t.Errorf("error = %+v", errEvent.Error)
	}
}

func TestDecodeEventInvalid(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for invalid CBOR")
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerWire.String(), "WIRE"},
		{LayerModule.String(), "MODULE"},
		{CategoryMessage.String(), "MESSAGE"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{MessageTypeItem.String(), "ITEM"},
		{StateEntityUnit.String(), "UNIT"},
		{StateEntitySession.String(), "SESSION"},
		{StateEntity(42).String(), "UNKNOWN"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func mustEncode(t *testing.T, event Event) []byte {
	t.Helper()
	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	return data
}

func TestResultMapsDecodeWithStringKeys(t *testing.T) {
	event := NewResponseEvent("s", "inproc://in", action.Request, "state",
		map[string]any{"ports": uint64(4), "names": []any{"a", "b"}}, false, time.Millisecond)

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	result, ok := decoded.Message.Result.(map[string]any)
	if !ok {
		t.Fatalf("Result: got %T, want map[string]any", decoded.Message.Result)
	}
	if result["ports"] != uint64(4) {
		t.Errorf("ports: got %v (%T)", result["ports"], result["ports"])
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	event := NewResponseEvent("s", "inproc://in", action.Request, "state",
		map[string]any{"b": true, "a": "x", "c": 1.5}, false, time.Millisecond)

	first := mustEncode(t, event)
	for i := 0; i < 10; i++ {
		if !bytes.Equal(first, mustEncode(t, event)) {
			t.Fatal("encoding differs between runs")
		}
	}
}

func TestTruncatedCaptureReadableUpToLastEvent(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(mustEncode(t, NewItemEvent("s", "inproc://out", 1)))
	second := mustEncode(t, NewItemEvent("s", "inproc://out", 2))
	buf.Write(second[:len(second)/2])

	reader := NewStreamReader(&buf, Filter{})
	event, err := reader.Next()
	if err != nil {
		t.Fatalf("first event: %v", err)
	}
	if event.Message.ParamCount != 1 {
		t.Errorf("ParamCount: got %d, want 1", event.Message.ParamCount)
	}
	if _, err := reader.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("truncated event: got %v, want a decode error", err)
	}
}
