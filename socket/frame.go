package socket

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var emptyObject = json.RawMessage(`{}`)

// Frame is the envelope exchanged over the socket.
type Frame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeFrame serializes event and data into a wire frame. A nil data is sent
// as an empty object.
func EncodeFrame(event Event, data any) ([]byte, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}

	var raw json.RawMessage
	switch v := data.(type) {
	case nil:
		raw = emptyObject
	case json.RawMessage:
		if len(v) == 0 {
			raw = emptyObject
		} else {
			raw = v
		}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", event, err)
		}
		raw = b
	}

	return json.Marshal(Frame{Event: event, Data: raw})
}

// DecodeFrame parses an inbound payload. Anything that is not a JSON object
// with a non-empty string "event" field is rejected with ErrInvalidMessage.
func DecodeFrame(payload []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("%w: missing event", ErrInvalidMessage)
	}
	if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
		f.Data = emptyObject
	}
	return f, nil
}
