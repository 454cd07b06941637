// Package wire encodes and decodes the JSON envelopes exchanged with the
// remote browser executor.
//
// Requests travel server -> executor as {"id", "type", "payload"}; responses
// travel back as {"id", "result"} or {"id", "error"}. Decoding is tolerant:
// unknown fields are ignored and anything that cannot be correlated by id
// is reported as a discard instead of an error.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// MaxFrameSize bounds a single inbound frame. Screenshots are the largest
// payloads the executor sends back.
const MaxFrameSize = 16 << 20

// ErrMalformedFrame describes input that was dropped by the decoder. It is
// never returned to a caller of the broker; it only appears in logs.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// Request is the envelope for one outgoing call.
type Request struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Response is the envelope for one reply. Error takes precedence over Result.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// IsError reports whether the executor answered with an error.
func (r Response) IsError() bool {
	return r.Error != ""
}

// EncodeRequest produces the canonical request frame. A nil payload is sent
// as an empty object.
func EncodeRequest(id int64, msgType string, payload any) ([]byte, error) {
	if msgType == "" {
		return nil, fmt.Errorf("wire: request %d missing type", id)
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s payload: %w", msgType, err)
	}

	return json.Marshal(Request{ID: id, Type: msgType, Payload: raw})
}

// EncodeResponse produces the canonical response frame. When errMsg is set
// the result is omitted.
func EncodeResponse(id int64, result any, errMsg string) ([]byte, error) {
	resp := Response{ID: id, Error: errMsg}
	if errMsg == "" && result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("wire: encode result for %d: %w", id, err)
		}
		resp.Result = raw
	}
	return json.Marshal(resp)
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(p) {
			return nil, errors.New("invalid raw JSON payload")
		}
		return p, nil
	default:
		return json.Marshal(p)
	}
}

// DecodeResponse parses a reply frame. The boolean is false when the frame
// must be discarded: invalid JSON, not an object, or no integer id.
func DecodeResponse(data []byte) (Response, bool) {
	root, id, ok := parseEnvelope(data)
	if !ok {
		return Response{}, false
	}

	resp := Response{ID: id}
	if errField := root.Get("error"); isTruthy(errField) {
		resp.Error = errorMessage(errField)
	}
	if result := root.Get("result"); result.Exists() && resp.Error == "" {
		resp.Result = json.RawMessage(result.Raw)
	}
	return resp, true
}

// DecodeRequest parses a request frame on the executor side. Frames without
// an integer id or a string type are discarded.
func DecodeRequest(data []byte) (Request, bool) {
	root, id, ok := parseEnvelope(data)
	if !ok {
		return Request{}, false
	}

	msgType := root.Get("type")
	if msgType.Type != gjson.String || msgType.Str == "" {
		return Request{}, false
	}

	req := Request{ID: id, Type: msgType.Str, Payload: json.RawMessage("{}")}
	if payload := root.Get("payload"); payload.Exists() && payload.Type != gjson.Null {
		req.Payload = json.RawMessage(payload.Raw)
	}
	return req, true
}

func parseEnvelope(data []byte) (gjson.Result, int64, bool) {
	if len(data) == 0 || len(data) > MaxFrameSize || !gjson.ValidBytes(data) {
		return gjson.Result{}, 0, false
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return gjson.Result{}, 0, false
	}

	idField := root.Get("id")
	if idField.Type != gjson.Number {
		return gjson.Result{}, 0, false
	}
	if idField.Num != math.Trunc(idField.Num) || math.Abs(idField.Num) > math.MaxInt64/2 {
		return gjson.Result{}, 0, false
	}
	return root, idField.Int(), true
}

// errorMessage flattens the error field into the string surfaced to callers.
func errorMessage(field gjson.Result) string {
	switch {
	case field.Type == gjson.String:
		return field.Str
	case field.IsObject() && field.Get("message").Type == gjson.String:
		return field.Get("message").Str
	default:
		return field.Raw
	}
}

// isTruthy treats absent, null, false, zero and empty-string error fields as
// "no error", matching how executors commonly leave the field in place.
func isTruthy(field gjson.Result) bool {
	switch field.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return field.Str != ""
	case gjson.Number:
		return field.Num != 0
	default:
		return field.Exists()
	}
}
