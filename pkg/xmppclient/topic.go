package xmppclient

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
	"github.com/exavolt/xmpp-client/pkg/xmppim"
)

// topic fans events out to buffered subscriber channels. A subscriber
// whose buffer is full misses the event; publishing never blocks.
type topic[T any] struct {
	name   string
	buffer int
	logger logrus.FieldLogger

	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	closed bool
}

func newTopic[T any](name string, buffer int, logger logrus.FieldLogger) *topic[T] {
	return &topic[T]{
		name:   name,
		buffer: buffer,
		logger: logger,
		subs:   make(map[int]chan T),
	}
}

// subscribe returns the event channel and a function that detaches it.
// The channel is closed by either the returned function or the topic
// being closed.
func (t *topic[T]) subscribe() (<-chan T, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan T, t.buffer)
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
	}
}

func (t *topic[T]) publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for id, ch := range t.subs {
		select {
		case ch <- v:
		default:
			t.logger.WithFields(logrus.Fields{"topic": t.name, "subscriber": id}).
				Warn("Subscriber buffer full; event dropped")
		}
	}
}

func (t *topic[T]) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}

// topics holds the notification channels of one connection.
type topics struct {
	state        *topic[State]
	authFailures *topic[*AuthenticationError]
	infoQueries  *topic[*xmppcore.ClientIQ]
	messages     *topic[*xmppim.ClientMessage]
	presences    *topic[*xmppim.ClientPresence]
	rosterPushes *topic[*xmppim.RosterPush]
}

func newTopics(buffer int, logger logrus.FieldLogger) *topics {
	return &topics{
		state:        newTopic[State]("state", buffer, logger),
		authFailures: newTopic[*AuthenticationError]("auth_failures", buffer, logger),
		infoQueries:  newTopic[*xmppcore.ClientIQ]("info_queries", buffer, logger),
		messages:     newTopic[*xmppim.ClientMessage]("messages", buffer, logger),
		presences:    newTopic[*xmppim.ClientPresence]("presences", buffer, logger),
		rosterPushes: newTopic[*xmppim.RosterPush]("roster_pushes", buffer, logger),
	}
}

func (ts *topics) close() {
	ts.state.close()
	ts.authFailures.close()
	ts.infoQueries.close()
	ts.messages.close()
	ts.presences.close()
	ts.rosterPushes.close()
}
