package progress

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const eventBufferSize = 16

// StageEvent is one pipeline stage transition, keyed by the batch it belongs
// to and the file being processed.
type StageEvent struct {
	BatchID   string    `json:"batch_id"`
	ImagePath string    `json:"image_path"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sent_at"`
}

type brokerEvent struct {
	Source string     `json:"source"`
	Event  StageEvent `json:"event"`
}

// Broker fans pipeline stage events out to in-process subscribers and,
// when configured, across nodes via redis pub/sub and NATS so any API
// instance can serve the progress stream.
type Broker struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	nodeID       string

	mu          sync.RWMutex
	subscribers map[string]map[chan StageEvent]struct{}
}

// NewBroker constructs a progress broker. Both the redis client and the NATS
// connection are optional; a nil client keeps fan-out in-process only.
func NewBroker(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Broker {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":progress"
		subject = channelBase + ".progress"
	}

	return &Broker{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "progress_broker").Logger(),
		nodeID:       uuid.NewString(),
		subscribers:  make(map[string]map[chan StageEvent]struct{}),
	}
}

// Start begins consuming cross-node events until ctx is cancelled.
func (b *Broker) Start(ctx context.Context) {
	if b.redis != nil && b.redisChannel != "" {
		go b.consumeRedis(ctx)
	}
	if b.nats != nil && b.natsSubject != "" {
		go b.consumeNATS(ctx)
	}
}

// Publish delivers the event to local subscribers and forwards it to the
// configured cross-node transports. Slow subscribers drop events rather
// than blocking the pipeline.
func (b *Broker) Publish(ctx context.Context, event StageEvent) {
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	b.broadcast(event)

	payload, err := json.Marshal(brokerEvent{Source: b.nodeID, Event: event})
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to encode progress event")
		return
	}

	if b.redis != nil && b.redisChannel != "" {
		if err := b.redis.Publish(ctx, b.redisChannel, payload).Err(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to publish progress event to redis")
		}
	}

	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			b.logger.Warn().Err(err).Msg("failed to publish progress event to nats")
		}
	}
}

// Subscribe registers a listener for one batch's events. The returned cancel
// func must be called to release the channel.
func (b *Broker) Subscribe(batchID string) (<-chan StageEvent, func()) {
	channel := make(chan StageEvent, eventBufferSize)

	b.mu.Lock()
	if _, exists := b.subscribers[batchID]; !exists {
		b.subscribers[batchID] = make(map[chan StageEvent]struct{})
	}
	b.subscribers[batchID][channel] = struct{}{}
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if subscribers, ok := b.subscribers[batchID]; ok {
			delete(subscribers, channel)
			close(channel)
			if len(subscribers) == 0 {
				delete(b.subscribers, batchID)
			}
		}
	}

	return channel, cleanup
}

func (b *Broker) broadcast(event StageEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.BatchID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Broker) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			b.logger.Error().Err(err).Msg("progress redis subscription closed")
			return
		}
		b.handleRemote([]byte(msg.Payload))
	}
}

func (b *Broker) consumeNATS(ctx context.Context) {
	sub, err := b.nats.QueueSubscribe(b.natsSubject, "papergrade-progress", func(msg *nats.Msg) {
		b.handleRemote(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats progress subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain progress nats subscription")
		}
	}()
}

func (b *Broker) handleRemote(payload []byte) {
	var event brokerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.Warn().Err(err).Msg("invalid progress event payload")
		return
	}

	if event.Source == b.nodeID {
		return
	}

	b.broadcast(event.Event)
}
