package progress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToBatchSubscribers(t *testing.T) {
	broker := NewBroker(nil, nil, "papergrade", zerolog.Nop())

	stream, cleanup := broker.Subscribe("batch-1")
	defer cleanup()

	otherStream, otherCleanup := broker.Subscribe("batch-2")
	defer otherCleanup()

	broker.Publish(context.Background(), StageEvent{
		BatchID:   "batch-1",
		ImagePath: "alice.png",
		Stage:     "OCR",
		Message:   "Processing image with OCR...",
	})

	select {
	case event := <-stream:
		require.Equal(t, "batch-1", event.BatchID)
		require.Equal(t, "OCR", event.Stage)
		require.False(t, event.SentAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected a stage event")
	}

	select {
	case event := <-otherStream:
		t.Fatalf("unexpected event for other batch: %+v", event)
	default:
	}
}

func TestBrokerCleanupClosesChannel(t *testing.T) {
	broker := NewBroker(nil, nil, "papergrade", zerolog.Nop())

	stream, cleanup := broker.Subscribe("batch-1")
	cleanup()

	_, open := <-stream
	require.False(t, open)

	// Publishing after cleanup must not panic or block.
	broker.Publish(context.Background(), StageEvent{BatchID: "batch-1", Stage: "COMPLETE"})
}

func TestBrokerDropsEventsForSlowSubscribers(t *testing.T) {
	broker := NewBroker(nil, nil, "papergrade", zerolog.Nop())

	stream, cleanup := broker.Subscribe("batch-1")
	defer cleanup()

	for i := 0; i < eventBufferSize+8; i++ {
		broker.Publish(context.Background(), StageEvent{BatchID: "batch-1", Stage: "GRADING"})
	}

	received := 0
	for {
		select {
		case <-stream:
			received++
		default:
			require.Equal(t, eventBufferSize, received, "overflow events should be dropped, not queued")
			return
		}
	}
}

func TestBrokerIgnoresItsOwnRemoteEvents(t *testing.T) {
	broker := NewBroker(nil, nil, "papergrade", zerolog.Nop())

	stream, cleanup := broker.Subscribe("batch-1")
	defer cleanup()

	own, err := json.Marshal(brokerEvent{Source: broker.nodeID, Event: StageEvent{BatchID: "batch-1", Stage: "UPLOAD"}})
	require.NoError(t, err)
	broker.handleRemote(own)

	select {
	case event := <-stream:
		t.Fatalf("own event should be filtered: %+v", event)
	default:
	}

	foreign, err := json.Marshal(brokerEvent{Source: "other-node", Event: StageEvent{BatchID: "batch-1", Stage: "UPLOAD"}})
	require.NoError(t, err)
	broker.handleRemote(foreign)

	select {
	case event := <-stream:
		require.Equal(t, "UPLOAD", event.Stage)
	case <-time.After(time.Second):
		t.Fatal("expected the foreign event to be delivered")
	}
}
