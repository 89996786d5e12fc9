package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFiltersByUser(t *testing.T) {
	h := NewHub()
	alice := h.Subscribe("alice", 4)
	all := h.Subscribe("", 4)
	defer h.Unsubscribe(all)

	h.Publish(NewEvent(TypeSessionRevoked, "bob", nil))
	h.Publish(NewEvent(TypeSessionActivated, "alice", map[string]string{"sessionId": "s1"}))

	require.Len(t, alice, 1)
	evt := <-alice
	assert.Equal(t, TypeSessionActivated, evt.Type)
	assert.JSONEq(t, `{"sessionId":"s1"}`, string(evt.Data))
	assert.Len(t, all, 2)

	h.Unsubscribe(alice)
	_, open := <-alice
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers())
	h.Unsubscribe(alice)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("", 1)
	defer h.Unsubscribe(ch)

	h.Publish(NewEvent(TypeEcho, "", nil))
	h.Publish(NewEvent(TypeEcho, "", nil))
	assert.Len(t, ch, 1)
}
