package api

import (
	"encoding/json"
	"fmt"
)

// CodecName is the name Connect negotiates for Codec. It replaces the
// built-in protojson codec, so clients use the application/json and
// application/connect+json content types.
const CodecName = "json"

// Codec encodes messages as plain JSON.
type Codec struct{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
