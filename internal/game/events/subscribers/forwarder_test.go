package subscribers_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events/subscribers"
)

func TestForwarderPublishesRecords(t *testing.T) {
	pubsub := subscribers.NewInMemoryPubSub(zerolog.Nop(), true)
	defer pubsub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubsub.Subscribe(ctx, subscribers.DefaultTopic)
	require.NoError(t, err)

	fwd := subscribers.NewForwarder("forwarder", "", pubsub, zerolog.Nop())
	assert.Equal(t, subscribers.DefaultTopic, fwd.Topic())
	assert.True(t, fwd.InterestedIn(events.TypePilotHit))

	bus := events.NewEventBusWithLogger(zerolog.Nop())
	bus.Subscribe(fwd)

	sent := []events.GameEvent{
		newEvent(3, events.InitiativeRolled{PlayerRoll: 9, OpponentRoll: 4, Winner: core.SidePlayer, FirstMover: core.SideOpponent}),
		newEvent(4, events.PhaseChanged{From: core.PhaseInitiative, To: core.PhaseMovement}),
	}
	for _, evt := range sent {
		bus.Publish(evt)
	}

	// gochannel does not order deliveries, so match on sequence
	received := make(map[int]events.GameEvent)
	for len(received) < len(sent) {
		select {
		case msg := <-messages:
			msg.Ack()
			assert.Equal(t, "test-game-1", msg.Metadata.Get(subscribers.MetaGameID))
			assert.Equal(t, "tx", msg.Metadata.Get(subscribers.MetaTxID))

			got, err := subscribers.DecodeMessage(msg)
			require.NoError(t, err)
			assert.Equal(t, string(got.Type), msg.Metadata.Get(subscribers.MetaEventType))
			received[got.Sequence] = got
		case <-ctx.Done():
			t.Fatal("timed out waiting for forwarded event")
		}
	}

	for _, want := range sent {
		got, ok := received[want.Sequence]
		require.True(t, ok)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Payload, got.Payload)
		assert.Equal(t, want.Phase, got.Phase)
	}
}

func TestForwarderCustomTopic(t *testing.T) {
	pubsub := subscribers.NewInMemoryPubSub(zerolog.Nop(), true)
	defer pubsub.Close()

	fwd := subscribers.NewForwarder("forwarder", "games.duel", pubsub, zerolog.Nop())
	fwd.HandleEvent(newEvent(1, events.TurnStarted{Turn: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Persistent pub/sub replays messages published before subscribing
	messages, err := pubsub.Subscribe(ctx, "games.duel")
	require.NoError(t, err)

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, "1", msg.Metadata.Get(subscribers.MetaSequence))
	case <-ctx.Done():
		t.Fatal("timed out waiting for forwarded event")
	}
}
