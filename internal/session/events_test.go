package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDelivers(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	ch, unsubscribe := bus.SubscribeChannel(4)

	bus.Publish(Event{Kind: EventCount, Count: 1})
	bus.Publish(Event{Kind: EventCount, Count: 2})
	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Kind: EventCount, Count: 3})

	var got []int
	for ev := range ch {
		got = append(got, ev.Count)
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestEventBusChannelDropsWhenFull(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	ch, unsubscribe := bus.SubscribeChannel(2)

	for i := 1; i <= 5; i++ {
		bus.Publish(Event{Kind: EventCount, Count: i})
	}
	require.Len(t, ch, 2)
	assert.Equal(t, 1, (<-ch).Count)
	assert.Equal(t, 2, (<-ch).Count)

	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestEventBusClose(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	a, unsubscribe := bus.SubscribeChannel(0)
	b, _ := bus.SubscribeChannel(1)

	bus.Close()
	_, open := <-a
	assert.False(t, open)
	_, open = <-b
	assert.False(t, open)

	// Publishing and unsubscribing after Close are no-ops.
	bus.Publish(Event{Kind: EventStopped})
	unsubscribe()
}
