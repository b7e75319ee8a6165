package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

var doneMarker = []byte("\n" + dataPrefix + doneToken)

// Multiplex writes the classification event, then forwards upstream bytes
// unchanged until the upstream closes, then terminates the stream with
// [DONE] unless the upstream already sent it.
//
// A failed upstream read ends forwarding without [DONE]; the error is returned
// for logging only since the response is already committed.
func Multiplex(w io.Writer, flusher http.Flusher, analysis chatapi.EmotionAnalysis, upstream io.Reader) error {
	if err := WriteEvent(w, EmotionEnvelope{Type: "emotion", Emotion: analysis}); err != nil {
		return fmt.Errorf("write emotion event: %w", err)
	}
	flush(flusher)

	var (
		buf     = make([]byte, 32*1024)
		tail    = []byte("\n")
		sawDone bool
		last    byte = '\n'
	)

	for {
		n, err := upstream.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if !sawDone {
				sawDone, tail = scanForDone(tail, chunk)
			}
			last = chunk[n-1]
			if _, werr := w.Write(chunk); werr != nil {
				return fmt.Errorf("forward upstream chunk: %w", werr)
			}
			flush(flusher)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read upstream: %w", err)
		}
	}

	if !sawDone {
		// An unterminated final event must not share a line with [DONE].
		if last != '\n' {
			if _, err := io.WriteString(w, "\n\n"); err != nil {
				return fmt.Errorf("terminate upstream event: %w", err)
			}
		}
		if err := WriteDone(w); err != nil {
			return fmt.Errorf("write done marker: %w", err)
		}
		flush(flusher)
	}
	return nil
}

// scanForDone looks for a [DONE] line that may straddle chunk boundaries.
func scanForDone(tail, chunk []byte) (bool, []byte) {
	window := make([]byte, 0, len(tail)+len(chunk))
	window = append(window, tail...)
	window = append(window, chunk...)
	if bytes.Contains(window, doneMarker) {
		return true, nil
	}

	keep := len(doneMarker) - 1
	if len(window) > keep {
		window = window[len(window)-keep:]
	}
	return false, window
}
