package wire

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/armish/fireplace/pkg/action"
)

// JSON field names of the request envelope.
const (
	FieldAction     = "action"
	FieldMethod     = "method"
	FieldParameters = "parameters"
)

// ErrMalformedInput indicates a request that cannot be decoded or dispatched:
// a missing field, an unknown method, or a parameter of the wrong type.
var ErrMalformedInput = errors.New("malformed input")

// Request is a client call.
//
// JSON encoding:
//
//	{
//	  "action": "request",      // push | wait | request | reply
//	  "method": "get_state",    // driver sub-command
//	  "parameters": [1, "x"]    // heterogeneous scalars and arrays
//	}
type Request struct {
	Action     action.Action     `json:"action"`
	Method     string            `json:"method"`
	Parameters []json.RawMessage `json:"parameters"`
}

// NewRequest builds a request, encoding each parameter as JSON.
func NewRequest(a action.Action, method string, params ...any) (*Request, error) {
	req := &Request{
		Action:     a,
		Method:     method,
		Parameters: make([]json.RawMessage, 0, len(params)),
	}
	for i, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		req.Parameters = append(req.Parameters, raw)
	}
	return req, nil
}

// Validate checks that the request carries a known action and a method.
func (r *Request) Validate() error {
	if !r.Action.IsValid() {
		return fmt.Errorf("%w: %w", ErrMalformedInput, action.ErrInvalidAction)
	}
	if r.Method == "" {
		return fmt.Errorf("%w: missing %s", ErrMalformedInput, FieldMethod)
	}
	return nil
}

// NumParams returns the number of parameters.
func (r *Request) NumParams() int {
	return len(r.Parameters)
}

// ParamString returns the string parameter at idx.
func (r *Request) ParamString(idx int) (string, error) {
	return param[string](r, idx)
}

// ParamBool returns the boolean parameter at idx.
func (r *Request) ParamBool(idx int) (bool, error) {
	return param[bool](r, idx)
}

// ParamInt returns the signed integer parameter at idx.
func (r *Request) ParamInt(idx int) (int64, error) {
	return param[int64](r, idx)
}

// ParamUint returns the unsigned integer parameter at idx.
func (r *Request) ParamUint(idx int) (uint64, error) {
	return param[uint64](r, idx)
}

// ParamFloat returns the floating point parameter at idx.
func (r *Request) ParamFloat(idx int) (float64, error) {
	return param[float64](r, idx)
}

// ParamStrings returns the string array parameter at idx.
func (r *Request) ParamStrings(idx int) ([]string, error) {
	return param[[]string](r, idx)
}

// ParamBools returns the boolean array parameter at idx.
func (r *Request) ParamBools(idx int) ([]bool, error) {
	return param[[]bool](r, idx)
}

// ParamInts returns the signed integer array parameter at idx.
func (r *Request) ParamInts(idx int) ([]int64, error) {
	return param[[]int64](r, idx)
}

// ParamUints returns the unsigned integer array parameter at idx.
func (r *Request) ParamUints(idx int) ([]uint64, error) {
	return param[[]uint64](r, idx)
}

// ParamFloats returns the floating point array parameter at idx.
func (r *Request) ParamFloats(idx int) ([]float64, error) {
	return param[[]float64](r, idx)
}

// ArrayLen returns the element count of the array parameter at idx.
func (r *Request) ArrayLen(idx int) (int, error) {
	arr, err := param[[]json.RawMessage](r, idx)
	if err != nil {
		return 0, err
	}
	return len(arr), nil
}

// param decodes the parameter at idx into T.
func param[T any](r *Request, idx int) (T, error) {
	var v T
	if idx < 0 || idx >= len(r.Parameters) {
		return v, fmt.Errorf("%w: parameter %d out of range (have %d)", ErrMalformedInput, idx, len(r.Parameters))
	}
	if err := json.Unmarshal(r.Parameters[idx], &v); err != nil {
		return v, fmt.Errorf("%w: parameter %d: %v", ErrMalformedInput, idx, err)
	}
	return v, nil
}

// Response is the reply to a request.
//
// JSON encoding:
//
//	{"result": <any>, "error": <bool>}
//
// For failed requests Result holds the error message and Error is true.
type Response struct {
	Result any  `json:"result"`
	Error  bool `json:"error"`
}

// NewResponse creates a successful response.
func NewResponse(result any) *Response {
	return &Response{Result: result}
}

// NewErrorResponse creates a failed response carrying msg.
func NewErrorResponse(msg string) *Response {
	return &Response{Result: msg, Error: true}
}

// ErrorResponse creates a failed response from err.
func ErrorResponse(err error) *Response {
	return NewErrorResponse(err.Error())
}

// IsSuccess returns true if the response does not signal an error.
func (r *Response) IsSuccess() bool {
	return !r.Error
}

// ResultString returns the result as a string, or false if it is not one.
func (r *Response) ResultString() (string, bool) {
	s, ok := r.Result.(string)
	return s, ok
}

// ResultBool returns the result as a bool, or false if it is not one.
func (r *Response) ResultBool() (value bool, ok bool) {
	value, ok = r.Result.(bool)
	return value, ok
}
