package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rgrange/roomcast/internal/protocol"
)

// sender is satisfied by the Manager; channels publish through it.
type sender interface {
	Send(f protocol.Frame) error
}

// Handler receives the payload of one published event.
type Handler func(data json.RawMessage)

// Channels is the registry of named channels multiplexed over one
// connection. Channel instances are singletons per name and outlive
// connection replacements.
type Channels struct {
	sender sender
	logger *slog.Logger

	mu     sync.RWMutex
	byName map[string]*Channel
}

func newChannels(s sender, logger *slog.Logger) *Channels {
	return &Channels{
		sender: s,
		logger: logger,
		byName: make(map[string]*Channel),
	}
}

// Get returns the channel with the given name, creating it on first
// request. Creation sends a subscribe frame immediately when connected;
// either way the subscription is re-issued on every successful open.
func (cs *Channels) Get(name string) *Channel {
	cs.mu.Lock()
	ch, ok := cs.byName[name]
	if !ok {
		ch = &Channel{
			name:     name,
			sender:   cs.sender,
			logger:   cs.logger.With("channel", name),
			handlers: make(map[string]map[int]Handler),
		}
		cs.byName[name] = ch
	}
	cs.mu.Unlock()

	if !ok {
		if err := cs.sender.Send(protocol.Subscribe(name)); err != nil {
			// Not connected yet; the open path resubscribes.
			cs.logger.Debug("subscribe deferred", "channel", name, "error", err)
		}
	}

	return ch
}

// Names returns all registered channel names, sorted.
func (cs *Channels) Names() []string {
	cs.mu.RLock()
	names := make([]string, 0, len(cs.byName))
	for name := range cs.byName {
		names = append(names, name)
	}
	cs.mu.RUnlock()

	sort.Strings(names)
	return names
}

// dispatch routes an inbound publish frame to the named channel. Frames
// for unknown channels are dropped; the topic may no longer be of
// interest locally.
func (cs *Channels) dispatch(f protocol.Frame) {
	cs.mu.RLock()
	ch, ok := cs.byName[f.Channel]
	cs.mu.RUnlock()

	if !ok {
		cs.logger.Debug("dropping frame for unknown channel", "channel", f.Channel, "event", f.Event)
		return
	}

	ch.dispatch(f.Event, f.Data)
}

// Channel is a named logical topic. Subscriptions are keyed by event
// name; each subscribed callback is isolated from its siblings.
type Channel struct {
	name   string
	sender sender
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Subscription identifies one registered callback. Go functions are not
// comparable, so unsubscribing a single callback goes through its
// handle.
type Subscription struct {
	ch    *Channel
	event string
	id    int
}

// Cancel removes this subscription. Canceling twice is a no-op.
func (s *Subscription) Cancel() {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()

	hs, ok := s.ch.handlers[s.event]
	if !ok {
		return
	}
	delete(hs, s.id)
	if len(hs) == 0 {
		delete(s.ch.handlers, s.event)
	}
}

// Subscribe registers a callback for an event name.
func (c *Channel) Subscribe(event string, fn Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	hs, ok := c.handlers[event]
	if !ok {
		hs = make(map[int]Handler)
		c.handlers[event] = hs
	}
	hs[id] = fn

	return &Subscription{ch: c, event: event, id: id}
}

// Unsubscribe removes every callback registered for an event name.
func (c *Channel) Unsubscribe(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// Publish sends an event on this channel. Failure to send (typically
// not connected) surfaces as an error; nothing is queued.
func (c *Channel) Publish(event string, v any) error {
	f, err := protocol.Publish(c.name, event, v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := c.sender.Send(f); err != nil {
		return fmt.Errorf("publish %s/%s: %w", c.name, event, err)
	}
	return nil
}

// dispatch invokes every callback registered for the event. Each
// callback runs isolated: a panic is logged and does not prevent the
// remaining callbacks from running.
func (c *Channel) dispatch(event string, data json.RawMessage) {
	c.mu.RLock()
	hs := c.handlers[event]
	fns := make([]Handler, 0, len(hs))
	for _, fn := range hs {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		c.invoke(event, fn, data)
	}
}

func (c *Channel) invoke(event string, fn Handler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("subscriber panicked", "event", event, "panic", r)
		}
	}()
	fn(data)
}
