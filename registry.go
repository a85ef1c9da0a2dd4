package gobayeux

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MessageListener is called with every message delivered to a channel. It
// runs on the goroutine that delivered the server response.
type MessageListener func(Message)

// ListenerID identifies a registered listener or subscriber so it can be
// removed again
type ListenerID uint64

// SubscriptionStatus describes whether the server confirmed the
// subscription of a channel for the current session
type SubscriptionStatus int32

const (
	// Unsubscribed means the channel has no subscribers
	Unsubscribed SubscriptionStatus = iota
	// SubscriptionPending means a /meta/subscribe has to be sent or is
	// waiting for its reply
	SubscriptionPending
	// Subscribed means the server acknowledged the /meta/subscribe
	Subscribed
	// SubscriptionFailed means the server refused the /meta/subscribe or it
	// could not be delivered
	SubscriptionFailed
)

func (s SubscriptionStatus) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case SubscriptionPending:
		return "pending"
	case Subscribed:
		return "subscribed"
	case SubscriptionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type listenerEntry struct {
	id       ListenerID
	listener MessageListener
}

// ClientChannel is the client side view of a channel or channel pattern.
// Listeners registered with AddListener see every message on a matching
// channel, subscribers registered with Subscribe only see messages that
// carry data and cause a /meta/subscribe to be sent.
type ClientChannel struct {
	id     Channel
	client *Client

	mu          sync.RWMutex
	listeners   []listenerEntry
	subscribers []listenerEntry
	status      SubscriptionStatus
}

// ID returns the channel name or pattern
func (ch *ClientChannel) ID() Channel {
	return ch.id
}

// SubscriptionStatus returns whether the subscription of this channel is
// confirmed by the server
func (ch *ClientChannel) SubscriptionStatus() SubscriptionStatus {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.status
}

// AddListener registers a local listener. No message is sent to the server,
// which makes listeners the way to observe the /meta/ channels.
func (ch *ClientChannel) AddListener(listener MessageListener) ListenerID {
	id := ch.client.channels.nextListenerID()
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.listeners = append(ch.listeners, listenerEntry{id, listener})
	return id
}

// RemoveListener removes a listener added with AddListener and reports
// whether it was registered
func (ch *ClientChannel) RemoveListener(id ListenerID) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	var removed bool
	ch.listeners, removed = removeEntry(ch.listeners, id)
	return removed
}

// Subscribe registers a subscriber. The first subscriber of a session sends
// a /meta/subscribe; until the server confirms it SubscriptionStatus reports
// SubscriptionPending.
func (ch *ClientChannel) Subscribe(listener MessageListener) (ListenerID, error) {
	if ch.id.IsMeta() {
		return 0, ErrCannotSubscribeMeta
	}
	if !ch.id.IsValid() {
		return 0, InvalidChannelError{ch.id}
	}
	return ch.client.subscribe(ch, listener)
}

// Unsubscribe removes a subscriber. Removing the last one sends a
// /meta/unsubscribe.
func (ch *ClientChannel) Unsubscribe(id ListenerID) error {
	return ch.client.unsubscribe(ch, id)
}

// Publish sends data to the channel without waiting for the reply
func (ch *ClientChannel) Publish(data interface{}) error {
	return ch.client.publish(ch.id, data, nil)
}

// PublishWithCallback sends data to the channel and calls callback with the
// reply correlated by message id. An unsuccessful reply is reported as an
// *ApplicationError.
func (ch *ClientChannel) PublishWithCallback(data interface{}, callback func(Message, error)) error {
	return ch.client.publish(ch.id, data, callback)
}

func (ch *ClientChannel) hasSubscribers() bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.subscribers) > 0
}

func (ch *ClientChannel) setStatus(status SubscriptionStatus) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.subscribers) == 0 {
		ch.status = Unsubscribed
		return
	}
	ch.status = status
}

func (ch *ClientChannel) snapshot(withSubscribers bool) []listenerEntry {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	entries := make([]listenerEntry, 0, len(ch.listeners)+len(ch.subscribers))
	entries = append(entries, ch.listeners...)
	if withSubscribers {
		entries = append(entries, ch.subscribers...)
	}
	return entries
}

func removeEntry(entries []listenerEntry, id ListenerID) ([]listenerEntry, bool) {
	for i, entry := range entries {
		if entry.id == id {
			return append(entries[:i:i], entries[i+1:]...), true
		}
	}
	return entries, false
}

// channelRegistry maps channel names and patterns to their ClientChannel and
// routes inbound messages to every matching one
type channelRegistry struct {
	mu       sync.RWMutex
	channels map[Channel]*ClientChannel
	ids      uint64

	logger  Logger
	metrics *Metrics
}

func newChannelRegistry(logger Logger, metrics *Metrics) *channelRegistry {
	return &channelRegistry{
		channels: make(map[Channel]*ClientChannel),
		logger:   logger,
		metrics:  metrics,
	}
}

func (r *channelRegistry) nextListenerID() ListenerID {
	return ListenerID(atomic.AddUint64(&r.ids, 1))
}

func (r *channelRegistry) getOrCreate(c Channel, client *Client) *ClientChannel {
	r.mu.RLock()
	ch, ok := r.channels[c]
	r.mu.RUnlock()
	if ok {
		return ch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[c]; ok {
		return ch
	}
	ch = &ClientChannel{id: c, client: client}
	r.channels[c] = ch
	return ch
}

func (r *channelRegistry) get(c Channel) (*ClientChannel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[c]
	return ch, ok
}

// matching returns the channels registered for c itself and for every
// wildcard pattern that matches it
func (r *channelRegistry) matching(c Channel) []*ClientChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]*ClientChannel, 0, 2)
	if ch, ok := r.channels[c]; ok {
		matched = append(matched, ch)
	}
	for _, pattern := range c.Wildcards() {
		if ch, ok := r.channels[pattern]; ok {
			matched = append(matched, ch)
		}
	}
	return matched
}

// subscribed returns every channel that currently has subscribers
func (r *channelRegistry) subscribed() []*ClientChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := make([]*ClientChannel, 0)
	for _, ch := range r.channels {
		if ch.hasSubscribers() {
			channels = append(channels, ch)
		}
	}
	return channels
}

// markPending flags every subscribed channel so the subscription is sent
// again after the next handshake
func (r *channelRegistry) markPending() {
	for _, ch := range r.subscribed() {
		ch.setStatus(SubscriptionPending)
	}
}

// dispatch delivers m to the listeners of every matching channel in
// registration order, and to the subscribers when m carries data
func (r *channelRegistry) dispatch(m Message) {
	r.metrics.messageReceived(m.Channel)
	hasData := m.HasData()
	for _, ch := range r.matching(m.Channel) {
		for _, entry := range ch.snapshot(hasData) {
			r.notify(ch, entry, m)
		}
	}
}

func (r *channelRegistry) notify(ch *ClientChannel, entry listenerEntry, m Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.listenerPanicked()
			r.logger.
				WithField("at", "dispatch").
				WithField("channel", ch.id).
				WithError(fmt.Errorf("%v", rec)).
				Error("listener panicked")
		}
	}()
	entry.listener(m)
}
