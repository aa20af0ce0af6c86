// Package protocol defines the JSON envelope gesture clients exchange through
// the relay. The relay forwards frames verbatim and never decodes them; this
// package exists for clients.
//
// The relay does not filter by Type either. A client that only understands
// gesture events must drop other envelopes itself; DecodeGesture reports them
// as ErrUnexpectedType.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventGesture is the only event type the gesture client emits.
const EventGesture = "gestureMessage"

// ErrUnexpectedType is returned when decoding an envelope of another type.
var ErrUnexpectedType = errors.New("protocol: unexpected event type")

// Envelope is one framed event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Landmark is one 3-D hand keypoint.
type Landmark [3]float64

// Gesture is the payload of a gestureMessage event.
type Gesture struct {
	Landmarks []Landmark `json:"landmarks"`
	Name      string     `json:"name,omitempty"`
}

// EncodeGesture wraps g in a gestureMessage envelope.
func EncodeGesture(g Gesture) ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode gesture: %w", err)
	}
	return Encode(EventGesture, data)
}

// Encode wraps an already encoded payload in an envelope of the given type.
func Encode(eventType string, data json.RawMessage) ([]byte, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("encode %s: payload is not valid JSON", eventType)
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}

// Decode parses an envelope without interpreting its payload.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodeGesture parses a gestureMessage envelope and its landmark payload.
func DecodeGesture(frame []byte) (Gesture, error) {
	env, err := Decode(frame)
	if err != nil {
		return Gesture{}, err
	}
	if env.Type != EventGesture {
		return Gesture{}, fmt.Errorf("%w: %q", ErrUnexpectedType, env.Type)
	}

	var g Gesture
	if err := json.Unmarshal(env.Data, &g); err != nil {
		return Gesture{}, fmt.Errorf("decode gesture: %w", err)
	}
	return g, nil
}
