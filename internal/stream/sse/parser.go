// Package sse decodes text/event-stream framing. The parser is isolated
// from any transport so it can be exercised against arbitrary chunk
// boundaries; the stream client feeds it raw reads and dispatches whatever
// events complete.
package sse

import (
	"bytes"
	"strings"
)

// DefaultEventType is assigned to events with no explicit event: field, per
// the event-stream contract.
const DefaultEventType = "message"

// Event is one decoded server-sent event.
type Event struct {
	Type string
	Data string
}

// Parser is an incremental event-stream decoder. Feed it chunks in arrival
// order; it buffers partial lines internally and never blocks.
type Parser struct {
	buf       bytes.Buffer
	eventType string
	dataLines []string
}

// Feed appends chunk and returns every event completed by it, in order.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf.Write(chunk)

	var events []Event
	for {
		raw := p.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			return events
		}
		line := string(raw[:idx])
		p.buf.Next(idx + 1)
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if ev, ok := p.flush(); ok {
				events = append(events, ev)
			}
			continue
		}
		p.field(line)
	}
}

func (p *Parser) field(line string) {
	if strings.HasPrefix(line, ":") {
		return // comment / keep-alive
	}
	name, value, found := strings.Cut(line, ":")
	if !found {
		name, value = line, ""
	}
	value = strings.TrimPrefix(value, " ")

	switch name {
	case "event":
		p.eventType = value
	case "data":
		p.dataLines = append(p.dataLines, value)
	}
	// id and retry fields are accepted but unused: reconnection policy is
	// owned by the stream client, not the server.
}

func (p *Parser) flush() (Event, bool) {
	if len(p.dataLines) == 0 && p.eventType == "" {
		return Event{}, false
	}
	ev := Event{
		Type: p.eventType,
		Data: strings.Join(p.dataLines, "\n"),
	}
	if ev.Type == "" {
		ev.Type = DefaultEventType
	}
	p.eventType = ""
	p.dataLines = nil
	return ev, true
}
