package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Engine.IO v4 packet types, as the first byte of a text frame
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
)

// Socket.IO v5 packet types, as the byte after an Engine.IO message
const (
	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketConnectError = '4'
)

// packet is one decoded Engine.IO frame
type packet struct {
	engine byte
	socket byte // set only when engine == engineMessage
	data   string
}

func parsePacket(frame string) (packet, error) {
	if frame == "" {
		return packet{}, errors.New("empty frame")
	}
	p := packet{engine: frame[0], data: frame[1:]}
	if p.engine == engineMessage {
		if p.data == "" {
			return packet{}, errors.New("empty socket packet")
		}
		p.socket = p.data[0]
		p.data = p.data[1:]
		// Skip an optional namespace prefix such as "/chat,"
		if strings.HasPrefix(p.data, "/") {
			if i := strings.IndexByte(p.data, ','); i >= 0 {
				p.data = p.data[i+1:]
			}
		}
	}
	return p, nil
}

// decodeEvent splits an event payload `["name", data...]` into its name and first argument
func decodeEvent(data string) (string, json.RawMessage, error) {
	// An ack id may precede the array
	if i := strings.IndexByte(data, '['); i > 0 {
		data = data[i:]
	}

	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(data), &parts); err != nil {
		return "", nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("event has no name")
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("event name is not a string: %w", err)
	}
	if len(parts) < 2 {
		return name, nil, nil
	}
	return name, parts[1], nil
}

// encodeEvent builds the text frame for emitting event with data
func encodeEvent(event string, data interface{}) (string, error) {
	raw, err := json.Marshal([]interface{}{event, data})
	if err != nil {
		return "", fmt.Errorf("failed to encode event %s: %w", event, err)
	}
	return string([]byte{engineMessage, socketEvent}) + string(raw), nil
}
