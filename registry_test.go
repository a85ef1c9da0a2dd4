package gobayeux

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	client, err := NewClient("https://example.com/cometd", opts...)
	if err != nil {
		t.Fatalf("unexpected error creating client: %q", err)
	}
	return client
}

func TestGetChannelReturnsSameChannel(t *testing.T) {
	client := newTestClient(t)
	first := client.GetChannel("/foo/bar")
	if second := client.GetChannel("/foo/bar"); first != second {
		t.Fatal("expected GetChannel to return the same ClientChannel for the same name")
	}
	if first.ID() != "/foo/bar" {
		t.Errorf("expected ID /foo/bar, got %s", first.ID())
	}
}

func TestDispatchMatchesEveryPatternOnce(t *testing.T) {
	client := newTestClient(t)
	received := make(map[Channel]int)
	for _, c := range []Channel{"/a/b/c", "/a/b/*", "/a/b/**", "/a/**", "/**", "/a/*", "/a/b/c/d"} {
		c := c
		client.GetChannel(c).AddListener(func(Message) {
			received[c]++
		})
	}

	client.channels.dispatch(Message{Channel: "/a/b/c", Data: json.RawMessage(`"x"`)})

	want := map[Channel]int{
		"/a/b/c":  1,
		"/a/b/*":  1,
		"/a/b/**": 1,
		"/a/**":   1,
		"/**":     1,
	}
	if diff := cmp.Diff(want, received); diff != "" {
		t.Fatalf("unexpected deliveries (-want +got):\n%s", diff)
	}
}

func TestDispatchOrder(t *testing.T) {
	client := newTestClient(t)
	ch := client.GetChannel("/foo")
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		ch.AddListener(func(Message) { order = append(order, i) })
	}

	client.channels.dispatch(Message{Channel: "/foo"})

	if diff := cmp.Diff([]int{0, 1, 2}, order); diff != "" {
		t.Fatalf("expected listeners in registration order (-want +got):\n%s", diff)
	}
}

func TestDispatchSubscribersOnlySeeData(t *testing.T) {
	client := newTestClient(t)
	ch := client.GetChannel("/foo")
	var listened, subscribed int
	ch.AddListener(func(Message) { listened++ })
	if _, err := ch.Subscribe(func(Message) { subscribed++ }); err != nil {
		t.Fatalf("unexpected error subscribing: %q", err)
	}

	client.channels.dispatch(Message{Channel: "/foo", Successful: true})
	client.channels.dispatch(Message{Channel: "/foo", Data: json.RawMessage(`{"a":1}`)})

	if listened != 2 {
		t.Errorf("expected the listener to see 2 messages, got %d", listened)
	}
	if subscribed != 1 {
		t.Errorf("expected the subscriber to see 1 message, got %d", subscribed)
	}
}

func TestDispatchRecoversFromPanics(t *testing.T) {
	metrics, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %q", err)
	}
	client := newTestClient(t, WithMetrics(metrics))
	ch := client.GetChannel("/foo")
	ch.AddListener(func(Message) { panic("boom") })
	var delivered bool
	ch.AddListener(func(Message) { delivered = true })

	client.channels.dispatch(Message{Channel: "/foo"})

	if !delivered {
		t.Error("expected the second listener to run after the first panicked")
	}
	if got := testutil.ToFloat64(metrics.listenerPanics); got != 1 {
		t.Errorf("expected 1 recorded panic, got %v", got)
	}
}

func TestRemoveListener(t *testing.T) {
	client := newTestClient(t)
	ch := client.GetChannel("/foo")
	var calls int
	id := ch.AddListener(func(Message) { calls++ })

	if !ch.RemoveListener(id) {
		t.Fatal("expected RemoveListener to report the listener as removed")
	}
	if ch.RemoveListener(id) {
		t.Fatal("expected a second RemoveListener to report nothing removed")
	}
	client.channels.dispatch(Message{Channel: "/foo"})
	if calls != 0 {
		t.Errorf("expected a removed listener not to be called, got %d calls", calls)
	}
}

func TestSubscriptionStatusWhileDisconnected(t *testing.T) {
	client := newTestClient(t)
	ch := client.GetChannel("/foo")
	if ch.SubscriptionStatus() != Unsubscribed {
		t.Fatalf("expected a new channel to be %s, got %s", Unsubscribed, ch.SubscriptionStatus())
	}

	id, err := ch.Subscribe(func(Message) {})
	if err != nil {
		t.Fatalf("unexpected error subscribing: %q", err)
	}
	if ch.SubscriptionStatus() != SubscriptionPending {
		t.Fatalf("expected %s until the server confirms, got %s", SubscriptionPending, ch.SubscriptionStatus())
	}
	if got := client.channels.subscribed(); len(got) != 1 || got[0] != ch {
		t.Fatalf("expected /foo to be the only subscribed channel, got %v", got)
	}

	if err := ch.Unsubscribe(id); err != nil {
		t.Fatalf("unexpected error unsubscribing: %q", err)
	}
	if ch.SubscriptionStatus() != Unsubscribed {
		t.Fatalf("expected %s after the last subscriber left, got %s", Unsubscribed, ch.SubscriptionStatus())
	}
	if got := client.channels.subscribed(); len(got) != 0 {
		t.Fatalf("expected no subscribed channels, got %d", len(got))
	}
}

func TestSubscribeRejectsMetaAndInvalidChannels(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.GetChannel(MetaConnect).Subscribe(func(Message) {}); err != ErrCannotSubscribeMeta {
		t.Errorf("expected ErrCannotSubscribeMeta, got %v", err)
	}
	if _, err := client.GetChannel("/foo/**/bar").Subscribe(func(Message) {}); err == nil {
		t.Error("expected an invalid channel to be rejected")
	}
}

func TestMarkPending(t *testing.T) {
	client := newTestClient(t)
	subscribed := client.GetChannel("/foo")
	if _, err := subscribed.Subscribe(func(Message) {}); err != nil {
		t.Fatalf("unexpected error subscribing: %q", err)
	}
	subscribed.setStatus(Subscribed)
	listened := client.GetChannel("/bar")
	listened.AddListener(func(Message) {})

	client.channels.markPending()

	if subscribed.SubscriptionStatus() != SubscriptionPending {
		t.Errorf("expected /foo to be %s, got %s", SubscriptionPending, subscribed.SubscriptionStatus())
	}
	if listened.SubscriptionStatus() != Unsubscribed {
		t.Errorf("expected /bar to stay %s, got %s", Unsubscribed, listened.SubscriptionStatus())
	}
}
