package wire

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/armish/fireplace/pkg/action"
)

// envelope mirrors Request with the action kept as plain text so that a
// missing or unknown action can be told apart from a syntax error.
type envelope struct {
	Action     *string           `json:"action"`
	Method     *string           `json:"method"`
	Parameters []json.RawMessage `json:"parameters"`
}

// EncodeRequest encodes a request to JSON.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	params := req.Parameters
	if params == nil {
		params = []json.RawMessage{}
	}
	return json.Marshal(&Request{Action: req.Action, Method: req.Method, Parameters: params})
}

// DecodeRequest decodes a JSON envelope into a request.
// All failures wrap ErrMalformedInput.
func DecodeRequest(data []byte) (*Request, error) {
	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(data), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if env.Action == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedInput, FieldAction)
	}
	act, err := action.Parse(*env.Action)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	if env.Method == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedInput, FieldMethod)
	}

	req := &Request{
		Action:     act,
		Method:     *env.Method,
		Parameters: env.Parameters,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// EncodeResponse encodes a response to JSON.
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a JSON response.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}
