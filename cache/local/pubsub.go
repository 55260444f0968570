package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

// LocalPubSub is an in-process fan-out pub/sub used when no Redis is
// configured. A slow subscriber loses messages rather than blocking the
// publisher; notification rows in the database remain the source of truth.
type LocalPubSub struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]chan *LocalMessage
	nextID  uint64
	bufSize int
}

// NewPubSub creates a LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subs:    make(map[string]map[uint64]chan *LocalMessage),
		bufSize: bufSize,
	}
}

// Publish delivers a message to every current subscriber of the channel.
// Delivery is non-blocking: a full subscriber buffer drops the message.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, ch := range ps.subs[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a stream of messages published on any of the given
// channels and a cancel function that closes the stream.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	ch := make(chan *LocalMessage, ps.bufSize)

	ps.mu.Lock()
	ps.nextID++
	id := ps.nextID
	for _, name := range channels {
		if ps.subs[name] == nil {
			ps.subs[name] = make(map[uint64]chan *LocalMessage)
		}
		ps.subs[name][id] = ch
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			for _, name := range channels {
				delete(ps.subs[name], id)
				if len(ps.subs[name]) == 0 {
					delete(ps.subs, name)
				}
			}
			ps.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
