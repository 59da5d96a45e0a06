package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/internal/watch"
)

// Consumer replays watch events from JetStream into a local notifier.
type Consumer struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	target   watch.Notifier
	config   JetStreamConfig
}

func NewConsumer(ctx context.Context, cfg JetStreamConfig, target watch.Notifier) (*Consumer, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	c := &Consumer{nc: nc, js: js, target: target, config: cfg}
	if err := c.ensureConsumer(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return c, nil
}

func (c *Consumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          c.config.ConsumerName,
		Durable:       c.config.ConsumerName,
		Description:   "Watch gateway consumer",
		FilterSubject: c.config.SubjectPrefix + ".>",
		// A restarted gateway starts from the latest event of every watch.
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.config.MaxDeliver,
		AckWait:       c.config.AckWait,
		MaxAckPending: c.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("JetStream consumer ready")
	c.consumer = consumer
	return nil
}

// Start consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := c.processMessage(ctx, msg.Data()); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
				// A message that cannot be decoded will never succeed.
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to terminate message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, data []byte) error {
	ev, err := DecodeEvent(data)
	if err != nil {
		return err
	}
	if err := c.target.Notify(ctx, ev); err != nil {
		log.Warn().Err(err).Str("watch", ev.Watch.String()).Msg("notifier rejected replayed event")
	}
	return nil
}

// DecodeEvent parses a published watch event.
func DecodeEvent(data []byte) (watch.Event, error) {
	var ev watch.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return watch.Event{}, fmt.Errorf("unmarshal watch event: %w", err)
	}
	if !ev.Watch.Kind.Valid() {
		return watch.Event{}, fmt.Errorf("watch event %s has no watch key", ev.ID)
	}
	return ev, nil
}

func (c *Consumer) Stop() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
