package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Handler receives decoded ledger events.
type Handler interface {
	OnLedgerUpdated(ctx context.Context, event *LedgerUpdatedEvent)
	OnAnnotationSaved(ctx context.Context, event *AnnotationSavedEvent)
}

// HandlerFuncs adapts plain functions to Handler. Nil funcs ignore events.
type HandlerFuncs struct {
	LedgerUpdated   func(ctx context.Context, event *LedgerUpdatedEvent)
	AnnotationSaved func(ctx context.Context, event *AnnotationSavedEvent)
}

func (h HandlerFuncs) OnLedgerUpdated(ctx context.Context, event *LedgerUpdatedEvent) {
	if h.LedgerUpdated != nil {
		h.LedgerUpdated(ctx, event)
	}
}

func (h HandlerFuncs) OnAnnotationSaved(ctx context.Context, event *AnnotationSavedEvent) {
	if h.AnnotationSaved != nil {
		h.AnnotationSaved(ctx, event)
	}
}

// Subscriber consumes ledger events from JetStream.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS and ensures the stream exists.
func NewSubscriber(natsURL string, logger *slog.Logger) (*Subscriber, error) {
	nc, js, err := Connect(natsURL, "txledger-subscriber")
	if err != nil {
		return nil, err
	}
	if err := EnsureStream(js, logger); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS subscriber initialized", "url", natsURL)
	return &Subscriber{nc: nc, js: js, logger: logger}, nil
}

// Subscribe delivers events matching filter (see WalletSubjects) to h until
// ctx is cancelled. Only events published after the call are delivered.
func (s *Subscriber) Subscribe(ctx context.Context, filter string, h Handler) error {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: filter,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		Dispatch(ctx, msg.Subject(), msg.Data(), h, s.logger)
		if err := msg.Ack(); err != nil {
			s.logger.WarnContext(ctx, "failed to ack message",
				"subject", msg.Subject(),
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}
	defer cc.Stop()

	s.logger.DebugContext(ctx, "subscribed to ledger events", "filter", filter)
	<-ctx.Done()
	return nil
}

// Dispatch decodes one message and hands it to h. Undecodable messages are
// logged and dropped.
func Dispatch(ctx context.Context, subject string, data []byte, h Handler, logger *slog.Logger) {
	event, err := DecodeEvent(subject, data)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode event",
			"subject", subject,
			"error", err,
		)
		return
	}

	switch e := event.(type) {
	case *LedgerUpdatedEvent:
		h.OnLedgerUpdated(ctx, e)
	case *AnnotationSavedEvent:
		h.OnAnnotationSaved(ctx, e)
	}
}

// Close closes the connection to NATS.
func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS subscriber closed")
	}
	return nil
}
