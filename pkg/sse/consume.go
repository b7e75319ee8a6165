package sse

import (
	"errors"
	"io"
	"iter"
)

const readChunkSize = 16 * 1024

// Consume reads r until [DONE] or EOF and yields decoded events in order.
// The sequence always ends with exactly one done or error event unless the
// caller stops iterating early.
func Consume(r io.Reader) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		dec := NewDecoder()
		buf := make([]byte, readChunkSize)

		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, ev := range dec.Feed(buf[:n]) {
					if !yield(ev) {
						return
					}
				}
				if dec.Done() {
					return
				}
			}

			if errors.Is(err, io.EOF) {
				for _, ev := range dec.Flush() {
					if !yield(ev) {
						return
					}
				}
				return
			}
			if err != nil {
				yield(Event{Type: EventError, Err: err})
				return
			}
		}
	}
}
