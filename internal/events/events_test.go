package events

import (
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

func TestHub_PublishToListeners(t *testing.T) {
	hub := NewHub()
	a := hub.AddListener()
	b := hub.AddListener()

	if hub.ListenerCount() != 2 {
		t.Fatalf("expected 2 listeners, got %d", hub.ListenerCount())
	}

	ev := Event{Type: TypeCheckIn, UserID: "u1", At: time.Now()}
	if err := hub.Publish(ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, ch := range []chan Event{a, b} {
		select {
		case got := <-ch:
			if got.UserID != "u1" || got.Type != TypeCheckIn {
				t.Errorf("unexpected event %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestHub_RemoveListenerClosesChannel(t *testing.T) {
	hub := NewHub()
	ch := hub.AddListener()
	hub.RemoveListener(ch)

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after RemoveListener")
	}
	if hub.ListenerCount() != 0 {
		t.Errorf("expected no listeners, got %d", hub.ListenerCount())
	}

	// Removing twice is a no-op.
	hub.RemoveListener(ch)
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ch := hub.AddListener()
	defer hub.RemoveListener(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < constants.EventChannelBuffer+10; i++ {
			_ = hub.Publish(Event{Type: TypeCheckOut})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full listener")
	}
	if len(ch) != constants.EventChannelBuffer {
		t.Errorf("expected full buffer of %d, got %d", constants.EventChannelBuffer, len(ch))
	}
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestFanout_ContinuesAfterFailure(t *testing.T) {
	failing := &failingPublisher{}
	hub := NewHub()
	ch := hub.AddListener()
	defer hub.RemoveListener(ch)

	fan := Fanout{failing, nil, hub}
	if err := fan.Publish(Event{Type: TypeOverride, UserID: "u2"}); err != nil {
		t.Fatalf("fanout should swallow errors, got %v", err)
	}
	if failing.calls != 1 {
		t.Errorf("expected failing publisher to be called once, got %d", failing.calls)
	}
	if len(ch) != 1 {
		t.Errorf("expected hub to receive the event, got %d", len(ch))
	}
}

func TestMQTTPublisher_NotConnected(t *testing.T) {
	p := NewMQTTPublisher(config.EventsConfig{MQTTBroker: "localhost:1883", MQTTTopic: "office/attendance"})

	if got := p.Topic(TypeCheckIn); got != "office/attendance/check_in" {
		t.Errorf("unexpected topic %q", got)
	}

	if err := p.Publish(Event{Type: TypeCheckIn}); err == nil {
		t.Error("expected error when not connected")
	}
	stats := p.Stats()
	if stats.Connected || stats.Errors != 1 || stats.Published != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	// Disconnect without a client is safe.
	p.Disconnect()
}
