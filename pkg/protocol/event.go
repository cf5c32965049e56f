// Package protocol implements the frame codec for the real-time event feed.
//
// Every text frame carries one JSON object. The "kind" field names the event
// and every other field belongs to the event body, which is opaque to the
// codec beyond its JSON structure.
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	// ErrMalformed is wrapped by DecodeError when a frame is not a JSON object.
	ErrMalformed = errors.New("protocol: malformed frame")

	// ErrMissingKind is wrapped by DecodeError when the kind field is absent,
	// not a string, or empty.
	ErrMissingKind = errors.New("protocol: missing event kind")
)

// DecodeError describes a frame that could not be turned into an Event.
type DecodeError struct {
	Err   error
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %v", e.Err, e.Cause)
	}
	return e.Err.Error()
}

// Unwrap returns the sentinel and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// Body is the payload of an event with the kind field removed.
// Values follow JSON semantics: numbers are float64, objects are
// map[string]any and arrays are []any.
type Body map[string]any

// String returns the string stored under key, or "" when absent or not a string.
func (b Body) String(key string) string {
	s, _ := b[key].(string)
	return s
}

// Event is a decoded frame.
type Event struct {
	Kind Kind
	Body Body
}

// Encode encodes the event into a JSON text frame.
func (e *Event) Encode() ([]byte, error) {
	if e.Kind == "" {
		return nil, fmt.Errorf("failed to encode event: %w", ErrMissingKind)
	}
	s, err := e.toProto()
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

// Decode decodes a JSON text frame into the event. Objects with duplicate
// keys at any depth are rejected as malformed.
// It returns a *DecodeError when the frame is malformed or carries no kind.
func (e *Event) Decode(data []byte) error {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return &DecodeError{Err: ErrMalformed, Cause: err}
	}
	return e.fromProto(s)
}

// Decode is a convenience wrapper around (*Event).Decode.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := e.Decode(data); err != nil {
		return Event{}, err
	}
	return e, nil
}

// toProto converts the event into a protobuf Struct with the kind field set.
func (e *Event) toProto() (*structpb.Struct, error) {
	fields := make(map[string]any, len(e.Body)+1)
	for k, v := range e.Body {
		fields[k] = plain(v)
	}
	fields[KindField] = string(e.Kind)
	return structpb.NewStruct(fields)
}

// fromProto populates the event from a protobuf Struct, consuming s.
func (e *Event) fromProto(s *structpb.Struct) error {
	v, ok := s.GetFields()[KindField]
	if !ok {
		return &DecodeError{Err: ErrMissingKind}
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || sv.StringValue == "" {
		return &DecodeError{Err: ErrMissingKind}
	}
	delete(s.Fields, KindField)

	e.Kind = Kind(sv.StringValue)
	e.Body = Body(s.AsMap())
	return nil
}

// plain unwraps nested Body values so structpb accepts them.
func plain(v any) any {
	switch t := v.(type) {
	case Body:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = plain(inner)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = plain(inner)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = plain(inner)
		}
		return out
	default:
		return v
	}
}
