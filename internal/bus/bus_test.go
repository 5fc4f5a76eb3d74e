package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesMatchingKind(t *testing.T) {
	b := New(10)
	var got []Event
	b.Subscribe(KindEpisodeStored, func(e Event) { got = append(got, e) })

	b.Publish(Event{Kind: KindEpisodeStored, Subject: "ep-1"})
	b.Publish(Event{Kind: KindTierTransitioned, Subject: "vec-1"})

	require.Len(t, got, 1)
	require.Equal(t, "ep-1", got[0].Subject)
}

func TestSubscribeAllKindsWithEmptyFilter(t *testing.T) {
	b := New(10)
	var got []Event
	b.Subscribe("", func(e Event) { got = append(got, e) })

	b.Publish(Event{Kind: KindEpisodeStored})
	b.Publish(Event{Kind: KindEvictionRan})
	require.Len(t, got, 2)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(10)
	count := 0
	token := b.Subscribe(KindEpisodeStored, func(Event) { count++ })
	b.Publish(Event{Kind: KindEpisodeStored})
	b.Unsubscribe(token)
	b.Publish(Event{Kind: KindEpisodeStored})
	require.Equal(t, 1, count)
}

func TestRecentReturnsRingBufferInOrder(t *testing.T) {
	b := New(3)
	b.Publish(Event{Kind: KindEpisodeStored, Subject: "1"})
	b.Publish(Event{Kind: KindEpisodeStored, Subject: "2"})
	b.Publish(Event{Kind: KindEpisodeStored, Subject: "3"})
	b.Publish(Event{Kind: KindEpisodeStored, Subject: "4"})

	recent := b.Recent(10)
	require.Len(t, recent, 3)
	require.Equal(t, "2", recent[0].Subject)
	require.Equal(t, "4", recent[2].Subject)
}
