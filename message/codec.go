package message

import "encoding/json"

// Codec defines the serialization contract for messages.
// Implementations handle encoding/decoding messages to/from bytes.
type Codec interface {
	// Encode serializes a message to bytes.
	Encode(m *Message) ([]byte, error)

	// Decode deserializes bytes into a message.
	Decode(data []byte) (*Message, error)

	// Name returns the codec identifier (e.g., "json").
	Name() string
}

// CodecNameJSON identifies the JSON codec.
const CodecNameJSON = "json"

// ContentTypeJSON is the body content type produced by the JSON codec,
// stamped on outbound message headers.
const ContentTypeJSON = "application/json"

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameJSON, "":
		return &JSONCodec{}
	default:
		return &JSONCodec{}
	}
}

// JSONCodec encodes/decodes messages as JSON.
type JSONCodec struct{}

func (c *JSONCodec) Encode(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

func (c *JSONCodec) Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *JSONCodec) Name() string { return CodecNameJSON }
