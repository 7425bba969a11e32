// Package wire decodes inbound Bitfinex websocket frames into typed events
// and builds the outbound command payloads. Decoding is per-frame: a
// malformed frame yields an error for that frame only and never affects the
// session.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame is one classified inbound websocket frame.
type Frame interface {
	frame()
}

// Ack is an object frame carrying an event acknowledgement: "info",
// "subscribed", "unsubscribed" or "error".
type Ack struct {
	Event   string      `json:"event"`
	Channel string      `json:"channel"`
	ChanID  int         `json:"chanId"`
	Symbol  string      `json:"symbol"`
	Prec    string      `json:"prec"`
	Freq    string      `json:"freq"`
	Len     json.Number `json:"len"`
	Code    int         `json:"code"`
	Msg     string      `json:"msg"`
	Version int         `json:"version"`
}

func (Ack) frame() {}

// LenInt returns the acknowledged book depth. The exchange serializes it as
// a string.
func (a Ack) LenInt() int {
	n, err := a.Len.Int64()
	if err != nil {
		return 0
	}
	return int(n)
}

// Heartbeat is a channel keep-alive; it carries no data but refreshes the
// last-seen-message clock.
type Heartbeat struct {
	ChanID int
}

func (Heartbeat) frame() {}

// DataFrame is an array frame holding channel data. Tag is the optional
// string marker preceding the payload ("te", "tu", "cs"); it is empty for
// book frames. Payload is the undecoded tuple or array of tuples.
type DataFrame struct {
	ChanID  int
	Tag     string
	Payload json.RawMessage
}

func (DataFrame) frame() {}

// Decode classifies a raw inbound frame. Object frames become Acks, array
// frames become Heartbeats or DataFrames.
func Decode(msg []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	switch trimmed[0] {
	case '{':
		var ack Ack
		if err := json.Unmarshal(trimmed, &ack); err != nil {
			return nil, fmt.Errorf("decode event frame: %w", err)
		}
		if ack.Event == "" {
			return nil, fmt.Errorf("event frame without event field")
		}
		return ack, nil
	case '[':
		return decodeArrayFrame(trimmed)
	default:
		return nil, fmt.Errorf("unrecognized frame start %q", trimmed[0])
	}
}

func decodeArrayFrame(msg []byte) (Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(msg, &parts); err != nil {
		return nil, fmt.Errorf("decode channel frame: %w", err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("channel frame with %d elements", len(parts))
	}

	var chanID int
	if err := json.Unmarshal(parts[0], &chanID); err != nil {
		return nil, fmt.Errorf("decode channel id: %w", err)
	}

	second := bytes.TrimSpace(parts[1])
	if len(second) > 0 && second[0] == '"' {
		var tag string
		if err := json.Unmarshal(second, &tag); err != nil {
			return nil, fmt.Errorf("decode channel tag: %w", err)
		}
		if tag == "hb" {
			return Heartbeat{ChanID: chanID}, nil
		}
		frame := DataFrame{ChanID: chanID, Tag: tag}
		if len(parts) > 2 {
			frame.Payload = parts[2]
		}
		return frame, nil
	}

	return DataFrame{ChanID: chanID, Payload: parts[1]}, nil
}
