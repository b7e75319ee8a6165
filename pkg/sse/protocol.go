// Package sse implements the line-delimited event protocol spoken between the
// chat server and its clients: "data: <json>\n\n" events, ":" comment lines and
// a terminating "data: [DONE]".
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

const (
	dataPrefix = "data: "
	doneToken  = "[DONE]"
)

var doneLine = []byte(dataPrefix + doneToken + "\n\n")

// EmotionEnvelope is the tagged classification event that opens every stream.
type EmotionEnvelope struct {
	Type    string                  `json:"type"`
	Emotion chatapi.EmotionAnalysis `json:"emotion"`
}

// DeltaEnvelope mirrors the provider's per-token shape, choices[0].delta.content.
type DeltaEnvelope struct {
	Choices []DeltaChoice `json:"choices"`
}

type DeltaChoice struct {
	Delta Delta `json:"delta"`
}

type Delta struct {
	Content string `json:"content"`
}

// NewDelta wraps a text fragment in the provider delta envelope.
func NewDelta(content string) DeltaEnvelope {
	return DeltaEnvelope{Choices: []DeltaChoice{{Delta: Delta{Content: content}}}}
}

// WriteEvent writes payload as one data event.
func WriteEvent(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s%s\n\n", dataPrefix, data); err != nil {
		return fmt.Errorf("write sse payload: %w", err)
	}
	return nil
}

// WriteDone writes the end-of-stream marker.
func WriteDone(w io.Writer) error {
	_, err := w.Write(doneLine)
	return err
}

// SetHeaders prepares an HTTP response for streaming.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func flush(f http.Flusher) {
	if f != nil {
		f.Flush()
	}
}
