package chat

import (
	"sync"

	"github.com/codr1/grudge/internal/db/dbq"
)

const subscriberBuffer = 16

type channelKey struct {
	kind string
	id   int64
}

// Broadcaster fans posted messages out to stream subscribers of the same
// channel. Slow subscribers drop messages rather than block posting; clients
// recover them by polling with after=.
type Broadcaster struct {
	mu     sync.Mutex
	next   int
	closed bool
	subs   map[channelKey]map[int]chan dbq.ChatMessage
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[channelKey]map[int]chan dbq.ChatMessage)}
}

func (b *Broadcaster) Subscribe(kind string, channelID int64) (<-chan dbq.ChatMessage, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := channelKey{kind: kind, id: channelID}
	id := b.next
	b.next++

	c := make(chan dbq.ChatMessage, subscriberBuffer)
	if b.closed {
		close(c)
		return c, func() {}
	}
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]chan dbq.ChatMessage)
	}
	b.subs[key][id] = c

	return c, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c2, ok := b.subs[key][id]; ok {
			delete(b.subs[key], id)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
			close(c2)
		}
	}
}

func (b *Broadcaster) Publish(msg dbq.ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channelKey{kind: msg.ChannelKind, id: msg.ChannelID}] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers reports the number of open subscriptions on a channel.
func (b *Broadcaster) Subscribers(kind string, channelID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channelKey{kind: kind, id: channelID}])
}

// Close ends every open subscription so streams return during shutdown.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for key, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, key)
	}
}
