package grpcserver

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype clients use to select JSON framing,
// i.e. content-type application/grpc+json.
const codecName = "json"

// jsonCodec marshals request and response messages as JSON. The auth
// and user services carry plain structs rather than generated protobuf
// types, so the wire shapes stay identical to the REST transport.
type jsonCodec struct{}

// Marshal implements the encoding.Codec interface.
func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec: marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal implements the encoding.Codec interface.
func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec: unmarshal into %T: %w", v, err)
	}
	return nil
}

// Name returns the name of the codec.
func (jsonCodec) Name() string {
	return codecName
}

// Ensure jsonCodec implements encoding.Codec
var _ encoding.Codec = jsonCodec{}

// init registers the JSON codec with gRPC.
func init() {
	encoding.RegisterCodec(jsonCodec{})
}
