package alert

import (
	"sync"

	model "github.com/kaviyashree6/empathyconnect/internal/model/alert"
)

type EventType string

const (
	EventCreated EventType = "alert.created"
	EventUpdated EventType = "alert.updated"
)

// FeedEvent is pushed to dashboard subscribers.
type FeedEvent struct {
	Type  EventType         `json:"type"`
	Alert model.CrisisAlert `json:"alert"`
}

// Feed fans alert changes out to live subscribers. Slow subscribers miss
// events rather than block publishers.
type Feed struct {
	mu     sync.RWMutex
	subs   map[chan FeedEvent]struct{}
	buffer int
}

func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 16
	}
	return &Feed{subs: make(map[chan FeedEvent]struct{}), buffer: buffer}
}

// Subscribe returns a channel of events and a function that releases it.
func (f *Feed) Subscribe() (<-chan FeedEvent, func()) {
	ch := make(chan FeedEvent, f.buffer)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Feed) Publish(ev FeedEvent) {
	if f == nil {
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
