// Package wire pushes onboarding notifications to observers over WebSocket
// and server-sent events.
//
// Every message on a WebSocket is a Frame. The server sends event frames
// carrying a notify.Message for the client the socket was opened on, and
// answers client frames with pong, echo or error frames. Frames are JSON
// text by default; "?format=msgpack" switches the socket to MessagePack
// binary frames.
package wire

import (
	"encoding/json"
	"time"

	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/notify"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameEvent FrameType = "event"
	FrameEcho  FrameType = "echo"
	FrameErr   FrameType = "error"
	FramePing  FrameType = "ping"
	FramePong  FrameType = "pong"

	// FrameCredits is sent by clients to replenish flow-control credits.
	FrameCredits FrameType = "credits"
)

// Frame is the wire envelope.
type Frame struct {
	// ID uniquely identifies this frame. Event frames reuse the ID of the
	// notification they carry.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// CorrelID links a pong or error to the client frame that caused it.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Channel is the stream topic an event frame was published on.
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`

	// Data carries the JSON-encoded payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Credits replenishes flow-control credits when sent by a client.
	Credits int `json:"credits,omitempty" msgpack:"credits,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// Error codes carried in error frames.
const (
	ErrCodeBadRequest = 400
	ErrCodeInternal   = 500
)

// NewEventFrame wraps msg for delivery on channel.
func NewEventFrame(channel string, msg notify.Message) (*Frame, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        msg.ID.String(),
		Type:      FrameEvent,
		Channel:   channel,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewEchoFrame answers a plain text message the way the socket always has:
// with the text prefixed by "Echo: ".
func NewEchoFrame(text string) *Frame {
	raw, _ := json.Marshal("Echo: " + text) //nolint:errcheck // strings always marshal
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameEcho,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}
}

// NewPongFrame answers a ping.
func NewPongFrame(ping *Frame) *Frame {
	return &Frame{
		ID:        NewFrameID(),
		Type:      FramePong,
		CorrelID:  ping.ID,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorFrame reports a problem with the client frame correlID.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameErr,
		CorrelID:  correlID,
		Error:     &ErrorDetail{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// Message decodes the notification carried by an event frame.
func (f *Frame) Message() (notify.Message, error) {
	var msg notify.Message
	err := json.Unmarshal(f.Data, &msg)
	return msg, err
}

// NewCreditsFrame grants the server n more events.
func NewCreditsFrame(n int) *Frame {
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameCredits,
		Credits:   n,
		Timestamp: time.Now().UTC(),
	}
}

// NewPingFrame creates a ping.
func NewPingFrame() *Frame {
	return &Frame{ID: NewFrameID(), Type: FramePing, Timestamp: time.Now().UTC()}
}

// NewFrameID returns a new unique frame ID.
func NewFrameID() string { return id.NewEventID().String() }
