// Package wire converts between Go values, JSON and protobuf Struct frames.
// Both gRPC surfaces (the backend gateway and the daemon command API) carry
// google.protobuf.Struct messages instead of generated types.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Struct encodes any JSON-marshalable value whose JSON form is an object.
func Struct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return s, nil
}

// Value encodes any JSON-marshalable value.
func Value(v any) (*structpb.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	out := &structpb.Value{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

// JSON renders m as JSON for gjson access. A nil message yields an empty
// result.
func JSON(m proto.Message) (gjson.Result, error) {
	if m == nil {
		return gjson.Result{}, nil
	}
	b, err := protojson.Marshal(m)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode frame: %w", err)
	}
	return gjson.ParseBytes(b), nil
}

// Decode unmarshals a Struct frame into v.
func Decode(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
