package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// errMalformedMessage marks entries that can never be handled; they are
// acknowledged and dropped instead of being retried.
var errMalformedMessage = errors.New("malformed message")

type Handler func(ctx context.Context, event Event) error

type Subscriber struct {
	client          *redis.Client
	group           string
	consumer        string
	stream          string
	handler         Handler
	batchSize       int64
	blockDuration   time.Duration
	minIdle         time.Duration
	reclaimInterval time.Duration

	ack   func(ctx context.Context, id string) error
	claim func(ctx context.Context, start string) ([]redis.XMessage, string, error)
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	// MinIdle is how long an unacknowledged entry stays pending before any
	// consumer of the group may claim and retry it.
	MinIdle time.Duration
	// ReclaimInterval is how often pending entries are scanned.
	ReclaimInterval time.Duration
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.MinIdle == 0 {
		config.MinIdle = 30 * time.Second
	}
	if config.ReclaimInterval == 0 {
		config.ReclaimInterval = config.MinIdle
	}

	s := &Subscriber{
		client:          client,
		group:           config.Group,
		consumer:        config.Consumer,
		stream:          config.Stream,
		handler:         config.Handler,
		batchSize:       config.BatchSize,
		blockDuration:   config.BlockDuration,
		minIdle:         config.MinIdle,
		reclaimInterval: config.ReclaimInterval,
	}
	s.ack = func(ctx context.Context, id string) error {
		return client.XAck(ctx, s.stream, s.group, id).Err()
	}
	s.claim = func(ctx context.Context, start string) ([]redis.XMessage, string, error) {
		return client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.stream,
			Group:    s.group,
			Consumer: s.consumer,
			MinIdle:  s.minIdle,
			Start:    start,
			Count:    s.batchSize,
		}).Result()
	}
	return s
}

func (s *Subscriber) Start(ctx context.Context) error {
	// Create consumer group if it doesn't exist
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Info().Str("stream", s.stream).Str("group", s.group).Str("consumer", s.consumer).Msg("Subscriber started")

	var nextReclaim time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("stream", s.stream).Msg("Subscriber stopping")
			return ctx.Err()
		default:
		}

		if !time.Now().Before(nextReclaim) {
			if err := s.reclaimPending(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Error reclaiming pending messages")
			}
			nextReclaim = time.Now().Add(s.reclaimInterval)
		}

		if err := s.readMessages(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("Error reading messages")
			time.Sleep(time.Second)
		}
	}
}

func (s *Subscriber) readMessages(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil // No messages
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		s.handleMessages(ctx, stream.Messages)
	}
	return nil
}

// reclaimPending takes over entries that stayed unacknowledged for at least
// minIdle, whichever consumer read them, and handles them again.
func (s *Subscriber) reclaimPending(ctx context.Context) error {
	start := "0-0"
	for {
		messages, next, err := s.claim(ctx, start)
		if err != nil {
			return fmt.Errorf("failed to claim pending messages: %w", err)
		}
		if len(messages) > 0 {
			log.Info().Int("count", len(messages)).Str("stream", s.stream).Msg("Retrying pending messages")
		}
		s.handleMessages(ctx, messages)

		if next == "" || next == "0-0" || next == start {
			return nil
		}
		start = next
	}
}

// handleMessages acknowledges every entry that was handled or can never be.
// Failed entries stay pending until reclaimPending retries them.
func (s *Subscriber) handleMessages(ctx context.Context, messages []redis.XMessage) {
	for _, message := range messages {
		err := s.processMessage(ctx, message)
		switch {
		case errors.Is(err, errMalformedMessage):
			log.Warn().Err(err).Str("message", message.ID).Msg("Dropping malformed message")
		case err != nil:
			log.Error().Err(err).Str("message", message.ID).Msg("Failed to process message")
			continue
		}

		if err := s.ack(ctx, message.ID); err != nil {
			log.Error().Err(err).Str("message", message.ID).Msg("Failed to ACK message")
		}
	}
}

func (s *Subscriber) processMessage(ctx context.Context, message redis.XMessage) error {
	eventData, ok := message.Values["event"].(string)
	if !ok {
		return fmt.Errorf("%w: no event field", errMalformedMessage)
	}

	var event Event
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformedMessage, err)
	}

	return s.handler(ctx, event)
}
