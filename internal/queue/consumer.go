package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facebot/internal/observability"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// permanentError marks a message that redelivery cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the consumer terminates the message instead of
// asking JetStream to redeliver it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Outcome is how a handled message is settled on the stream.
type Outcome int

const (
	Ack Outcome = iota
	Nak
	Term
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Nak:
		return "nak"
	case Term:
		return "term"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// OutcomeFor maps a handler result to a settlement: success acks, permanent
// failures terminate, anything else is redelivered.
func OutcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return Ack
	case IsPermanent(err):
		return Term
	default:
		return Nak
	}
}

// ConsumerSpec describes one durable pull consumer.
type ConsumerSpec struct {
	Stream     string
	Name       string
	Subject    string
	Workers    int
	AckWait    time.Duration
	MaxDeliver int
	// HandlerTimeout bounds a single handler invocation.
	HandlerTimeout time.Duration
}

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// Consume starts a fetch loop and spec.Workers goroutines handling messages.
// It returns once the consumer is registered; processing stops when ctx ends.
func (c *Consumer) Consume(ctx context.Context, spec ConsumerSpec, handler MessageHandler) error {
	if spec.Workers <= 0 {
		spec.Workers = 1
	}
	if spec.AckWait == 0 {
		spec.AckWait = 30 * time.Second
	}
	if spec.HandlerTimeout > 0 && spec.AckWait < spec.HandlerTimeout {
		spec.AckWait = spec.HandlerTimeout + 5*time.Second
	}

	stream, err := c.js.Stream(ctx, spec.Stream)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", spec.Stream, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          spec.Name,
		Durable:       spec.Name,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       spec.AckWait,
		MaxDeliver:    spec.MaxDeliver,
		FilterSubject: spec.Subject,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", spec.Name, err)
	}

	msgCh := make(chan jetstream.Msg, spec.Workers*2)

	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(spec.Workers, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch messages error", "consumer", spec.Name, "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < spec.Workers; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				c.handle(ctx, spec, workerID, msg, handler)
			}
		}(i)
	}

	slog.Info("consumer started", "stream", spec.Stream, "consumer", spec.Name, "workers", spec.Workers)
	return nil
}

func (c *Consumer) handle(ctx context.Context, spec ConsumerSpec, workerID int, msg jetstream.Msg, handler MessageHandler) {
	hctx := ctx
	if spec.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, spec.HandlerTimeout)
		defer cancel()
	}

	err := handler(hctx, msg)
	var delivered uint64
	if meta, mErr := msg.Metadata(); mErr == nil {
		delivered = meta.NumDelivered
	}

	switch OutcomeFor(err) {
	case Ack:
		_ = msg.Ack()
	case Term:
		slog.Error("dropping message", "consumer", spec.Name, "worker", workerID, "error", err, "delivered", delivered)
		observability.TasksRejected.WithLabelValues(spec.Stream).Inc()
		_ = msg.Term()
	case Nak:
		slog.Error("process message error", "consumer", spec.Name, "worker", workerID, "error", err, "delivered", delivered)
		_ = msg.Nak()
	}
}

func (c *Consumer) Close() {
	c.nc.Close()
}
