package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wavemint/wavemint/internal/domain"
)

// fakeBus hands out one channel per subscribe call so tests can inject
// signals directly.
type fakeBus struct {
	chans map[string]chan domain.Signal
}

func newFakeBus() *fakeBus {
	return &fakeBus{chans: make(map[string]chan domain.Signal)}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, pattern string) (<-chan domain.Signal, error) {
	ch := make(chan domain.Signal, 8)
	b.chans[pattern] = ch
	return ch, nil
}

func TestPatternMatch(t *testing.T) {
	require.True(t, patternMatch("mint:*", "mint:abc"))
	require.True(t, patternMatch("wallet:*", "wallet:w-1"))
	require.False(t, patternMatch("mint:*", "wallet:w-1"))
	require.False(t, patternMatch("mint:abc", "mint:abc"))
	require.False(t, patternMatch("", "mint:abc"))
}

func TestClientIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{
		"mint:abc": true,
		"wallet:*": true,
	}}

	require.True(t, c.isSubscribed("mint:abc"))
	require.False(t, c.isSubscribed("mint:other"))
	require.True(t, c.isSubscribed("wallet:anyone"))
}

func TestHub_RoutesByConcreteChannel(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus, slog.New(slog.DiscardHandler), Config{Mode: "server"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Wait for the bridge goroutines to subscribe.
	require.Eventually(t, func() bool {
		return bus.chans["mint:*"] != nil && bus.chans["wallet:*"] != nil
	}, time.Second, 5*time.Millisecond)

	abcClient := &client{hub: hub, send: make(chan []byte, 8), subs: map[string]bool{"mint:abc": true}}
	otherClient := &client{hub: hub, send: make(chan []byte, 8), subs: map[string]bool{"mint:other": true}}
	hub.register <- abcClient
	hub.register <- otherClient

	bus.chans["mint:*"] <- domain.Signal{
		Channel: "mint:abc",
		Payload: []byte(`{"type":"trade"}`),
	}

	select {
	case raw := <-abcClient.send:
		var envelope struct {
			Topic   string          `json:"topic"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &envelope))
		require.Equal(t, "mint:abc", envelope.Topic)
		require.JSONEq(t, `{"type":"trade"}`, string(envelope.Payload))
	case <-time.After(time.Second):
		t.Fatal("subscribed client received nothing")
	}

	select {
	case <-otherClient.send:
		t.Fatal("client got an event for a mint it never subscribed to")
	case <-time.After(50 * time.Millisecond):
	}
}
