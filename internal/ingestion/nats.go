package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Stream and subject layout. Inbound price updates arrive on
// paper.prices.{player_id}; processed events go out on
// paper.events.{event_type}.{player_id}.
const (
	PriceStreamName  = "PAPER_PRICES"
	PriceSubjects    = "paper.prices.>"
	PriceConsumer    = "paper-prices"
	EventStreamName  = "PAPER_EVENTS"
	EventSubjects    = "paper.events.>"
	eventSubjectBase = "paper.events"
)

// RawUpdate is a price message pulled off NATS, not yet parsed. Ack
// only after the update has been handed to the engine.
type RawUpdate struct {
	Subject string
	Data    []byte
	AckFunc func()
	NakFunc func()
}

// PriceSubscriber feeds price updates from JetStream into updateChan.
type PriceSubscriber struct {
	js         jetstream.JetStream
	updateChan chan<- RawUpdate
	log        zerolog.Logger
	consumer   jetstream.ConsumeContext
}

func NewPriceSubscriber(js jetstream.JetStream, updateChan chan<- RawUpdate, log zerolog.Logger) *PriceSubscriber {
	return &PriceSubscriber{
		js:         js,
		updateChan: updateChan,
		log:        log.With().Str("component", "price_subscriber").Logger(),
	}
}

// Subscribe creates the durable consumer and starts delivery.
// Explicit ACK, max_deliver=5, ack_wait=30s.
func (ps *PriceSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ps.js.CreateOrUpdateConsumer(ctx, PriceStreamName, jetstream.ConsumerConfig{
		Durable:       PriceConsumer,
		FilterSubject: PriceSubjects,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", PriceConsumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawUpdate{
			Subject: msg.Subject(),
			Data:    msg.Data(),
			AckFunc: func() { msg.Ack() },
			NakFunc: func() { msg.Nak() },
		}

		select {
		case ps.updateChan <- raw:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", PriceConsumer, err)
	}

	ps.consumer = cc
	ps.log.Info().Str("subject", PriceSubjects).Str("consumer", PriceConsumer).Msg("subscribed")
	return nil
}

// Stop gracefully stops delivery.
func (ps *PriceSubscriber) Stop() {
	if ps.consumer != nil {
		ps.consumer.Stop()
	}
	ps.log.Info().Msg("price subscriber stopped")
}

// EnsureStreams creates the inbound price stream if missing.
// FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      PriceStreamName,
		Subjects:  []string{PriceSubjects},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", PriceStreamName, err)
	}
	return nil
}

// EnsureOutboundStream creates the outbound events stream if missing.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      EventStreamName,
		Subjects:  []string{EventSubjects},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", EventStreamName, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
