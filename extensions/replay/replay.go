// Package replay implements the replay message extension used by Salesforce
// streaming endpoints. The extension remembers the last replayId seen on
// every channel and sends those ids on subscribe, so a client that
// re-handshakes resumes its channels where it left off.
package replay

import (
	"maps"
	"sync"
	"sync/atomic"

	bayeux "github.com/sigmavirus24/gobayeux/v3"
)

// ExtensionName is the key of the extension in the ext field of messages
const ExtensionName string = "replay"

const (
	// NewEvents asks the server for events published after the subscribe
	NewEvents int = -1
	// AllEvents asks the server for every event it still retains
	AllEvents int = -2
)

// IDStorer stores and manages the channels and replay IDs for a bayeux
// server that supports the replay extension
type IDStorer interface {
	Set(channel string, replayID int)
	Get(channel string) (int, bool)
	Delete(channel string)
	AsMap() map[string]int
}

// Option configures an Extension
type Option func(*Extension)

// WithDefaultReplayID sends replayID for subscriptions that have no
// stored id yet, typically NewEvents or AllEvents
func WithDefaultReplayID(replayID int) Option {
	return func(e *Extension) {
		e.fallback = &replayID
	}
}

// Extension tracks replay ids per channel and whether the server agreed to
// use them
type Extension struct {
	supported atomic.Bool
	store     IDStorer
	fallback  *int
}

// New creates a new extension instance. A nil store is replaced by a
// MapStorage.
func New(store IDStorer, opts ...Option) *Extension {
	if store == nil {
		store = NewMapStorage()
	}
	e := &Extension{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements bayeux.NamedExtender
func (e *Extension) Name() string {
	return ExtensionName
}

// Outgoing advertises the extension on handshake and attaches the known
// replay ids to subscribe requests once the server accepted it
func (e *Extension) Outgoing(ms *bayeux.Message) {
	switch ms.Channel {
	case bayeux.MetaHandshake:
		ms.GetExt(true)[ExtensionName] = true
	case bayeux.MetaSubscribe:
		if !e.supported.Load() {
			return
		}
		ids := e.store.AsMap()
		if ids == nil {
			ids = make(map[string]int)
		}
		if e.fallback != nil && ms.Subscription != "" {
			if _, ok := ids[string(ms.Subscription)]; !ok {
				ids[string(ms.Subscription)] = *e.fallback
			}
		}
		ms.GetExt(true)[ExtensionName] = ids
	}
}

// Incoming records server support from handshake replies, forgets channels
// once they are unsubscribed and remembers the replayId of every event
func (e *Extension) Incoming(ms *bayeux.Message) {
	switch {
	case ms.Channel == bayeux.MetaHandshake:
		if ms.Successful {
			e.supported.Store(acknowledged(ms))
		}
	case ms.Channel == bayeux.MetaUnsubscribe:
		if ms.Successful {
			e.store.Delete(string(ms.Subscription))
		}
	case ms.Channel.Type() == bayeux.BroadcastChannel:
		if replayID, ok := eventReplayID(ms); ok {
			e.store.Set(string(ms.Channel), replayID)
		}
	}
}

// Registered is called after an extension has been successfully registered
func (e *Extension) Registered(extensionName string, client *bayeux.BayeuxClient) {
}

// Unregistered forgets whether the server supported the extension. Stored
// ids are kept so the extension can be registered again.
func (e *Extension) Unregistered() {
	e.supported.Store(false)
}

func acknowledged(ms *bayeux.Message) bool {
	supported, _ := ms.GetExt(false)[ExtensionName].(bool)
	return supported
}

// eventReplayID reads data.event.replayId
func eventReplayID(ms *bayeux.Message) (int, bool) {
	var data struct {
		Event struct {
			ReplayID *float64 `json:"replayId"`
		} `json:"event"`
	}
	if err := ms.UnmarshalData(&data); err != nil || data.Event.ReplayID == nil {
		return 0, false
	}
	return int(*data.Event.ReplayID), true
}

// MapStorage is an IDStorer kept in memory
type MapStorage struct {
	mu  sync.RWMutex
	ids map[string]int
}

// NewMapStorage creates a new MapStorage instance
func NewMapStorage() *MapStorage {
	return &MapStorage{ids: make(map[string]int)}
}

// Set implements the IDStorer interface
func (s *MapStorage) Set(channel string, replayID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = make(map[string]int)
	}
	s.ids[channel] = replayID
}

// Get implements the IDStorer interface
func (s *MapStorage) Get(channel string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	replayID, ok := s.ids[channel]
	return replayID, ok
}

// Delete implements the IDStorer interface
func (s *MapStorage) Delete(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, channel)
}

// AsMap returns a copy of the stored ids
func (s *MapStorage) AsMap() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.ids)
}
