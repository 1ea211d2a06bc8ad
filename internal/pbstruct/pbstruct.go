// Package pbstruct bridges plain Go records and protobuf Struct messages.
// Records are shaped by their json tags, then carried as google.protobuf.Struct
// both on disk (proto binary) and on the gRPC wire.
package pbstruct

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Encode converts a json-tagged value into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err = protojson.Unmarshal(bytes, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// Decode fills v from a Struct. A nil Struct leaves v untouched.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	bytes, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err = json.Unmarshal(bytes, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// Marshal encodes v as a binary protobuf Struct.
func Marshal(v any) ([]byte, error) {
	s, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func Unmarshal(data []byte, v any) error {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return Decode(&s, v)
}

// MarshalJSON encodes v as the canonical protobuf JSON of its Struct.
func MarshalJSON(v any) ([]byte, error) {
	s, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}

func UnmarshalJSON(data []byte, v any) error {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return Decode(&s, v)
}
