package remote

import "encoding/json"

// jsonCodec marshals the plain wire structs with encoding/json. It replaces
// connect's default protobuf codecs because the session contract is defined
// by hand-written structs rather than generated message types; structpb
// payload fields carry their own JSON encoding.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	return json.Unmarshal(data, message)
}
