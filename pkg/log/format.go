package log

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// A capture file (FileExtension) is a plain concatenation of CBOR items,
// one Event per item, with no header or framing. Items are self-delimiting,
// so a file cut short by a crash is readable up to its last whole event, and
// filtered copies are made by re-encoding the selected events.
//
// Events use integer map keys (see the cbor struct tags in event.go). Writers
// use core deterministic encoding so identical events produce identical
// bytes; timestamps are RFC 3339 strings with nanoseconds.
var (
	captureEnc = mustEncMode()
	captureDec = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.NilContainers = cbor.NilContainerAsNull
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture encoding: %v", err))
	}
	return mode
}

// mustDecMode accepts what older writers may have produced (duplicate keys,
// indefinite lengths). Response results are decoded into string keyed maps
// because fireplace-log re-encodes them as JSON.
func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		IndefLength:    cbor.IndefLengthAllowed,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture decoding: %v", err))
	}
	return mode
}

// EncodeEvent returns the capture encoding of event.
func EncodeEvent(event Event) ([]byte, error) {
	return captureEnc.Marshal(event)
}

// DecodeEvent decodes a single captured event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := captureDec.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns an encoder appending events to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return captureEnc.NewEncoder(w)
}

// NewDecoder returns a decoder reading successive events from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return captureDec.NewDecoder(r)
}
