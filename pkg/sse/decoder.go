package sse

import (
	"bytes"
	"encoding/json"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

// EventType tags a decoded stream event.
type EventType string

const (
	EventEmotion EventType = "emotion"
	EventDelta   EventType = "delta"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Event is one element of a chat turn: emotion, delta, done or error.
type Event struct {
	Type    EventType
	Emotion chatapi.EmotionAnalysis
	Text    string
	Err     error
}

type envelope struct {
	Type    string                   `json:"type"`
	Emotion *chatapi.EmotionAnalysis `json:"emotion"`
	Choices []DeltaChoice            `json:"choices"`
}

// Decoder turns arbitrary byte chunks into events. Only complete lines are
// parsed; an unterminated tail stays buffered until the next chunk or Flush.
type Decoder struct {
	buf         []byte
	emotionSeen bool
	done        bool
	malformed   int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Done reports whether [DONE] (or Flush) has terminated the stream.
func (d *Decoder) Done() bool { return d.done }

// Malformed counts complete data lines that were not valid JSON.
func (d *Decoder) Malformed() int { return d.malformed }

// Feed appends chunk and returns the events of every complete line.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var (
		events   []Event
		consumed int
	)
	for !d.done {
		idx := bytes.IndexByte(d.buf[consumed:], '\n')
		if idx < 0 {
			break
		}
		line := d.buf[consumed : consumed+idx]
		consumed += idx + 1
		if ev, ok := d.decodeLine(line); ok {
			events = append(events, ev)
		}
	}

	if consumed > 0 {
		n := copy(d.buf, d.buf[consumed:])
		d.buf = d.buf[:n]
	}
	if d.done {
		d.buf = nil
	}
	return events
}

// Flush decodes whatever is still buffered after the input ended and always
// finishes with a done event, unless the stream already terminated.
func (d *Decoder) Flush() []Event {
	if d.done {
		return nil
	}

	var events []Event
	for _, line := range bytes.Split(d.buf, []byte("\n")) {
		if ev, ok := d.decodeLine(line); ok {
			events = append(events, ev)
		}
		if d.done {
			break
		}
	}
	d.buf = nil

	if !d.done {
		d.done = true
		events = append(events, Event{Type: EventDone})
	}
	return events
}

func (d *Decoder) decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 || line[0] == ':' {
		return Event{}, false
	}
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Event{}, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == doneToken {
		d.done = true
		return Event{Type: EventDone}, true
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		d.malformed++
		return Event{}, false
	}

	if env.Type == string(EventEmotion) && env.Emotion != nil {
		if d.emotionSeen {
			return Event{}, false
		}
		d.emotionSeen = true
		return Event{Type: EventEmotion, Emotion: *env.Emotion}, true
	}

	if len(env.Choices) > 0 && env.Choices[0].Delta.Content != "" {
		return Event{Type: EventDelta, Text: env.Choices[0].Delta.Content}, true
	}
	return Event{}, false
}
