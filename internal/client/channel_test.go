package client

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/rgrange/roomcast/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSender records frames and optionally fails every send.
type fakeSender struct {
	mu     sync.Mutex
	frames []protocol.Frame
	err    error
}

func (s *fakeSender) Send(f protocol.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSender) sent() []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func TestChannels_GetIdempotent(t *testing.T) {
	fs := &fakeSender{}
	cs := newChannels(fs, testLogger())

	ch1 := cs.Get("room-a")
	ch2 := cs.Get("room-a")

	if ch1 != ch2 {
		t.Error("Get returned different instances for the same name")
	}

	frames := fs.sent()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1 subscribe", len(frames))
	}
	if frames[0].Kind != protocol.KindSubscribe || frames[0].Channel != "room-a" {
		t.Errorf("frame = %+v, want subscribe for room-a", frames[0])
	}
}

func TestChannels_Names(t *testing.T) {
	fs := &fakeSender{}
	cs := newChannels(fs, testLogger())

	cs.Get("zebra")
	cs.Get("alpha")
	cs.Get("mango")

	names := cs.Names()
	want := []string{"alpha", "mango", "zebra"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestChannels_DispatchUnknownChannel(t *testing.T) {
	fs := &fakeSender{}
	cs := newChannels(fs, testLogger())

	// Must not panic; frames for channels nobody asked for are dropped.
	cs.dispatch(protocol.Frame{Kind: protocol.KindPublish, Channel: "ghost", Event: "boo"})
}

func TestChannel_Publish(t *testing.T) {
	fs := &fakeSender{}
	cs := newChannels(fs, testLogger())
	ch := cs.Get("room-a")

	if err := ch.Publish("update", map[string]any{"x": 1}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	frames := fs.sent()
	if len(frames) != 2 { // subscribe + publish
		t.Fatalf("sent %d frames, want 2", len(frames))
	}

	f := frames[1]
	if f.Kind != protocol.KindPublish {
		t.Errorf("Kind = %q, want %q", f.Kind, protocol.KindPublish)
	}
	if f.Channel != "room-a" || f.Event != "update" {
		t.Errorf("frame = %s/%s, want room-a/update", f.Channel, f.Event)
	}

	var payload map[string]any
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["x"] != float64(1) {
		t.Errorf("payload x = %v, want 1", payload["x"])
	}
}

func TestChannel_PublishNotConnected(t *testing.T) {
	fs := &fakeSender{err: ErrNotConnected}
	cs := newChannels(fs, testLogger())
	ch := cs.Get("room-a")

	err := ch.Publish("update", nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish error = %v, want ErrNotConnected", err)
	}
}

func TestChannel_SubscribeDispatch(t *testing.T) {
	fs := &fakeSender{}
	cs := newChannels(fs, testLogger())
	ch := cs.Get("room-a")

	var got []string
	ch.Subscribe("update", func(data json.RawMessage) {
		got = append(got, string(data))
	})

	cs.dispatch(protocol.Frame{
		Kind:    protocol.KindPublish,
		Channel: "room-a",
		Event:   "update",
		Data:    json.RawMessage(`{"x":1}`),
	})

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if got[0] != `{"x":1}` {
		t.Errorf("payload = %q, want %q", got[0], `{"x":1}`)
	}

	// Events the channel has no handler for are dropped silently.
	cs.dispatch(protocol.Frame{Kind: protocol.KindPublish, Channel: "room-a", Event: "other"})
	if len(got) != 1 {
		t.Errorf("handler called %d times after unrelated event, want 1", len(got))
	}
}

func TestChannel_MultipleHandlers(t *testing.T) {
	fs := &fakeSender{}
	cs := newChannels(fs, testLogger())
	ch := cs.Get("room-a")

	var a, b int
	ch.Subscribe("update", func(json.RawMessage) { a++ })
	ch.Subscribe("update", func(json.RawMessage) { b++ })

	ch.dispatch("update", nil)

	if a != 1 || b != 1 {
		t.Errorf("handlers called (%d, %d), want (1, 1)", a, b)
	}
}

func TestSubscription_Cancel(t *testing.T) {
	fs := &fakeSender{}
	cs := newChannels(fs, testLogger())
	ch := cs.Get("room-a")

	var a, b int
	sub := ch.Subscribe("update", func(json.RawMessage) { a++ })
	ch.Subscribe("update", func(json.RawMessage) { b++ })

	sub.Cancel()
	sub.Cancel() // idempotent

	ch.dispatch("update", nil)

	if a != 0 {
		t.Errorf("canceled handler called %d times, want 0", a)
	}
	if b != 1 {
		t.Errorf("surviving handler called %d times, want 1", b)
	}
}

func TestChannel_Unsubscribe(t *testing.T) {
	fs := &fakeSender{}
	cs := newChannels(fs, testLogger())
	ch := cs.Get("room-a")

	var calls int
	ch.Subscribe("update", func(json.RawMessage) { calls++ })
	ch.Subscribe("update", func(json.RawMessage) { calls++ })

	ch.Unsubscribe("update")
	ch.dispatch("update", nil)

	if calls != 0 {
		t.Errorf("handlers called %d times after Unsubscribe, want 0", calls)
	}
}

func TestChannel_HandlerPanicIsolation(t *testing.T) {
	fs := &fakeSender{}
	cs := newChannels(fs, testLogger())
	ch := cs.Get("room-a")

	var survived bool
	ch.Subscribe("update", func(json.RawMessage) { panic("boom") })
	ch.Subscribe("update", func(json.RawMessage) { survived = true })

	ch.dispatch("update", nil)

	if !survived {
		t.Error("panic in one handler prevented the other from running")
	}
}
