package broker

type publication[TID comparable, TPayload any] struct {
	ID      TID
	Payload TPayload
}

type subscription[TID comparable, TPayload any] struct {
	ID      TID
	Channel chan TPayload
	// Reply receives false when the ID is not published.
	Reply chan bool
}

type unsubscription[TID comparable, TPayload any] struct {
	ID      TID
	Channel <-chan TPayload
}

// ChannelBroker fans the payloads published under an ID out to every subscriber of that ID.
//
// Payloads are snapshots: a subscriber only ever needs the latest one. Each subscriber channel therefore has room
// for a single payload and a newer payload replaces one the subscriber has not yet received. A new subscriber
// starts with the latest payload so that it does not need to wait for the next change.
//
// This kind of broker is useful for streaming run progress through SSE. The producer is the goroutine running the
// generation and the consumers are the HTTP handlers streaming to browsers. Reconnecting clients simply subscribe
// again.
type ChannelBroker[TID comparable, TPayload any] struct {
	stopChannel        chan struct{}
	openChannel        chan TID
	publishChannel     chan publication[TID, TPayload]
	closeChannel       chan TID
	subscribeChannel   chan subscription[TID, TPayload]
	unsubscribeChannel chan unsubscription[TID, TPayload]
}

// NewChannelBroker creates a new ChannelBroker. Use Start() to start the goroutine that handles it and Stop() to
// stop it.
func NewChannelBroker[TID comparable, TPayload any]() *ChannelBroker[TID, TPayload] {
	broker := ChannelBroker[TID, TPayload]{
		stopChannel:        make(chan struct{}),
		openChannel:        make(chan TID),
		publishChannel:     make(chan publication[TID, TPayload]),
		closeChannel:       make(chan TID),
		subscribeChannel:   make(chan subscription[TID, TPayload]),
		unsubscribeChannel: make(chan unsubscription[TID, TPayload]),
	}
	return &broker
}

type topic[TPayload any] struct {
	latest      TPayload
	hasLatest   bool
	subscribers map[<-chan TPayload]chan TPayload
}

// Start listening for broker events. This function blocks until Stop() is called, so it should be called in a
// goroutine.
func (b *ChannelBroker[TID, TPayload]) Start() {
	topics := map[TID]*topic[TPayload]{}
	for {
		select {
		case <-b.stopChannel:
			for _, t := range topics {
				for _, c := range t.subscribers {
					close(c)
				}
			}
			return

		case id := <-b.openChannel:
			if topics[id] == nil {
				topics[id] = &topic[TPayload]{subscribers: map[<-chan TPayload]chan TPayload{}}
			}

		case p := <-b.publishChannel:
			t := topics[p.ID]
			if t == nil {
				t = &topic[TPayload]{subscribers: map[<-chan TPayload]chan TPayload{}}
				topics[p.ID] = t
			}
			t.latest = p.Payload
			t.hasLatest = true
			for _, c := range t.subscribers {
				replace(c, p.Payload)
			}

		case id := <-b.closeChannel:
			t := topics[id]
			if t == nil {
				break
			}
			for _, c := range t.subscribers {
				close(c)
			}
			delete(topics, id)

		case s := <-b.subscribeChannel:
			t := topics[s.ID]
			if t == nil {
				// Signal to the subscriber that the producer is finished (or hasn't started yet).
				close(s.Channel)
				s.Reply <- false
				break
			}
			t.subscribers[s.Channel] = s.Channel
			if t.hasLatest {
				replace(s.Channel, t.latest)
			}
			s.Reply <- true

		case s := <-b.unsubscribeChannel:
			t := topics[s.ID]
			if t == nil {
				break
			}
			if c, ok := t.subscribers[s.Channel]; ok {
				delete(t.subscribers, s.Channel)
				close(c)
			}
		}
	}
}

// replace puts payload into the single slot of c, dropping a payload the subscriber has not yet received.
// The broker goroutine is the only sender so the final send never blocks.
func replace[TPayload any](c chan TPayload, payload TPayload) {
	select {
	case c <- payload:
	default:
		select {
		case <-c:
		default:
		}
		c <- payload
	}
}

// Stop the goroutine that handles the broker. Remaining subscriber channels are closed.
func (b *ChannelBroker[TID, TPayload]) Stop() {
	close(b.stopChannel)
}

// Open registers ID so that subscribers can wait for its first payload.
func (b *ChannelBroker[TID, TPayload]) Open(id TID) {
	send(b, b.openChannel, id)
}

// Publish the payload under ID to every subscriber.
func (b *ChannelBroker[TID, TPayload]) Publish(id TID, payload TPayload) {
	send(b, b.publishChannel, publication[TID, TPayload]{ID: id, Payload: payload})
}

// Close signals that no more payloads are published under ID. Subscribers receive the last payload, if they have
// not yet done so, after which their channels are closed.
func (b *ChannelBroker[TID, TPayload]) Close(id TID) {
	send(b, b.closeChannel, id)
}

// Subscribe to the payloads published under ID. The returned channel is closed when the producer is finished.
// If the ID is not open, the returned channel is already closed and ok is false.
func (b *ChannelBroker[TID, TPayload]) Subscribe(id TID) (<-chan TPayload, bool) {
	channel := make(chan TPayload, 1)
	reply := make(chan bool, 1)
	if !send(b, b.subscribeChannel, subscription[TID, TPayload]{ID: id, Channel: channel, Reply: reply}) {
		close(channel)
		return channel, false
	}
	return channel, <-reply
}

// Unsubscribe stops the delivery to channel and closes it. Unsubscribing an already closed channel is a no-op.
func (b *ChannelBroker[TID, TPayload]) Unsubscribe(id TID, channel <-chan TPayload) {
	send(b, b.unsubscribeChannel, unsubscription[TID, TPayload]{ID: id, Channel: channel})
}

// send delivers msg to the broker goroutine. It reports false when the broker is stopped.
func send[TID comparable, TPayload any, TMessage any](b *ChannelBroker[TID, TPayload], c chan TMessage, msg TMessage) bool {
	select {
	case c <- msg:
		return true
	case <-b.stopChannel:
		return false
	}
}
