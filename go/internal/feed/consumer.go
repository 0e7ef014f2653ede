package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/yschen25/collectden/go/internal/events"
)

const (
	streamName   = "AUCTION_EVENTS"
	consumerName = "auction-sim-feed"
	subjectRoot  = "auction.events.>"

	natsMaxReconnects = 10
	natsReconnectWait = 2 * time.Second

	consumerMaxDeliver    = 5
	consumerAckWait       = 30 * time.Second
	consumerMaxAckPending = 1000

	eventChannelBufferSize = 256
)

// Handler receives every feed event in arrival order. Implementations must be
// idempotent per delivered event; JetStream redelivers on nak.
type Handler interface {
	HandleFeedEvent(ctx context.Context, event events.DomainEvent) error
}

// Consumer subscribes to the platform's auction event stream and fans events
// into the handler. This is the one asynchronous boundary of the engine.
type Consumer struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	handler  Handler
}

// NewConsumer connects to NATS and prepares the JetStream consumer.
func NewConsumer(ctx context.Context, natsURL string, handler Handler) (*Consumer, error) {
	nc, js, err := setupNATSConnection(natsURL)
	if err != nil {
		return nil, err
	}

	c := &Consumer{nc: nc, js: js, handler: handler}
	if err := c.ensureConsumer(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func setupNATSConnection(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

func (c *Consumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		Description:   "Auction simulation feed consumer",
		FilterSubject: subjectRoot,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    consumerMaxDeliver,
		AckWait:       consumerAckWait,
		MaxAckPending: consumerMaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().Msg("created JetStream consumer for auction feed")
	} else {
		log.Info().Msg("using existing JetStream consumer for auction feed")
	}

	c.consumer = consumer
	return nil
}

// Run consumes feed events until ctx is cancelled. Handler errors nak the
// message for redelivery; everything else acks.
func (c *Consumer) Run(ctx context.Context) error {
	eventCh := make(chan jetstream.Msg, eventChannelBufferSize)

	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case eventCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start JetStream consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().Str("stream", streamName).Msg("auction feed consumer started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("auction feed consumer shutting down")
			return nil
		case msg := <-eventCh:
			if err := c.processEvent(ctx, msg); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process feed event")
				msg.Nak()
			} else {
				msg.Ack()
			}
		}
	}
}

func (c *Consumer) processEvent(ctx context.Context, msg jetstream.Msg) error {
	var event events.DomainEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject()).
		Str("auction_id", event.AuctionID).
		Str("event_type", event.EventType).
		Msg("processing feed event")

	return c.handler.HandleFeedEvent(ctx, event)
}

// Close releases the NATS connection.
func (c *Consumer) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
