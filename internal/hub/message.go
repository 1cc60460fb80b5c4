package hub

import (
	"time"

	"github.com/openmotion/vrio/internal/tracksvc"
)

// WSMessage is the envelope for every server-to-client message.
type WSMessage struct {
	Type      string                    `json:"type"`
	Seq       int64                     `json:"seq"`
	Timestamp int64                     `json:"timestamp"`
	Event     *tracksvc.TrackEvent      `json:"event,omitempty"`
	Devices   []tracksvc.DeviceSnapshot `json:"devices,omitempty"`
	Slot      int                       `json:"slot,omitempty"`
	Duration  int64                     `json:"durationMs,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// ClientMessage is a command sent by a client.
type ClientMessage struct {
	Type    string `json:"type"`
	Slot    int    `json:"slot,omitempty"`
	Channel string `json:"channel,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Preset  string `json:"preset,omitempty"`
}

func newEventMessage(seq int64, record *tracksvc.TrackEvent) *WSMessage {
	return &WSMessage{
		Type:      "event",
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Event:     record,
	}
}

func newSnapshotMessage(seq int64, devices []tracksvc.DeviceSnapshot) *WSMessage {
	return &WSMessage{
		Type:      "snapshot",
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Devices:   devices,
	}
}

func newVibeAcceptedMessage(slot int, duration time.Duration) *WSMessage {
	return &WSMessage{
		Type:      "vibe_accepted",
		Timestamp: time.Now().UnixMilli(),
		Slot:      slot,
		Duration:  duration.Milliseconds(),
	}
}

func newErrorMessage(text string) *WSMessage {
	return &WSMessage{
		Type:      "error",
		Timestamp: time.Now().UnixMilli(),
		Error:     text,
	}
}
