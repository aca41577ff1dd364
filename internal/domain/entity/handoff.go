package entity

import (
	"encoding/json"
	"fmt"
)

// HandoffMessage names the bucket and object prefix one stage produced
// for the next one.
type HandoffMessage struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
}

// Encode renders the message as a publishable JSON body.
func (m HandoffMessage) Encode() (json.RawMessage, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode handoff message: %w", err)
	}
	return data, nil
}

func ParseHandoffMessage(body []byte) (HandoffMessage, error) {
	var msg HandoffMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return HandoffMessage{}, fmt.Errorf("decode handoff message: %w", err)
	}
	if msg.Bucket == "" {
		return HandoffMessage{}, fmt.Errorf("handoff message has no bucket")
	}
	return msg, nil
}
