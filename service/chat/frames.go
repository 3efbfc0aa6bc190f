package chat

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Frame is the transport envelope: one event name plus a dynamic payload.
// Payloads are decoded into typed requests via tools/decode, so numeric
// fields tolerate the usual JSON float/string looseness.
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "unmarshal frame")
	}
	if f.Event == "" {
		return nil, errors.New("frame missing event")
	}
	return &f, nil
}

func EncodeFrame(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", event)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrapf(err, "remarshal %s payload", event)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}
