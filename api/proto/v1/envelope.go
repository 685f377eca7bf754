// Package pb holds the wire types of codeshift: the envelope exchanged with
// isolated execution contexts, the gRPC service carrying it, and the frames
// moved through the worker pipeline.
package pb

import (
	"encoding/json"
	"fmt"

	structpb "google.golang.org/protobuf/types/known/structpb"
)

const (
	TypeRun        = "run"
	TypeLoadScript = "loadScript"
	TypeLoaded     = "loaded"
	TypeError      = "error"
)

// Envelope is one message of the Exchange stream. Which payload fields are
// set depends on Type.
type Envelope struct {
	Type string
	ID   string

	// run
	Code    string
	Options map[string]any
	Result  any

	// loadScript, loaded
	URL    string
	Method string

	// error
	Error string
}

// ToStruct encodes e. Result must be JSON-like; other values go through a
// JSON round trip first.
func (e *Envelope) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{"type": e.Type, "id": e.ID}
	switch e.Type {
	case TypeRun:
		if e.Code != "" {
			m["code"] = e.Code
		}
		if e.Options != nil {
			opts, err := jsonLike(e.Options)
			if err != nil {
				return nil, fmt.Errorf("encode options: %w", err)
			}
			m["options"] = opts
		}
		if e.Result != nil {
			res, err := jsonLike(e.Result)
			if err != nil {
				return nil, fmt.Errorf("encode result: %w", err)
			}
			m["result"] = res
		}
	case TypeLoadScript, TypeLoaded:
		m["url"] = e.URL
		if e.Method != "" {
			m["method"] = e.Method
		}
	case TypeError:
		m["error"] = e.Error
	}
	return structpb.NewStruct(m)
}

// EnvelopeFromStruct decodes a message received on the stream. Numbers come
// back as float64.
func EnvelopeFromStruct(s *structpb.Struct) (*Envelope, error) {
	if s == nil {
		return nil, fmt.Errorf("empty envelope")
	}
	m := s.AsMap()
	e := &Envelope{
		Type:   str(m["type"]),
		ID:     str(m["id"]),
		Code:   str(m["code"]),
		URL:    str(m["url"]),
		Method: str(m["method"]),
		Error:  str(m["error"]),
		Result: m["result"],
	}
	if e.Type == "" {
		return nil, fmt.Errorf("envelope without type")
	}
	if opts, ok := m["options"].(map[string]any); ok {
		e.Options = opts
	}
	return e, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func jsonLike(v any) (any, error) {
	if _, err := structpb.NewValue(v); err == nil {
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
