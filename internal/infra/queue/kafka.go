package queue

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"exchange_core/internal/domain"

	"github.com/segmentio/kafka-go"
)

// Kafka is a queue on a Kafka topic. Offsets are committed on Ack, so a
// consumer that dies mid-match has its message redelivered to the group.
type Kafka struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger *slog.Logger
}

// NewKafka creates a producer and a consumer-group reader for topic.
func NewKafka(brokers []string, topic, groupID string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // same order id, same partition
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1 << 20,
			MaxWait:  500 * time.Millisecond,
		}),
		logger: slog.Default().With("module", "kafka_queue"),
	}
}

func (k *Kafka) Publish(ctx context.Context, msg Message) error {
	value, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(msg.OrderID, 10)),
		Value: value,
	})
	if err != nil {
		return networkError("publish", err)
	}
	return nil
}

// networkError marks broker errors that will not go away on retry
// (unknown topic, oversized message, auth) as fatal.
func networkError(op string, err error) *domain.NetworkError {
	var kerr kafka.Error
	if errors.As(err, &kerr) && !kerr.Temporary() {
		return domain.NewFatalNetworkError(op, err)
	}
	return domain.NewNetworkError(op, err)
}

func (k *Kafka) Receive(ctx context.Context) (Delivery, error) {
	for {
		m, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Delivery{}, ctx.Err()
			}
			return Delivery{}, networkError("fetch", err)
		}

		msg, err := decodeMessage(m.Value)
		if err != nil {
			// A message that can never be decoded is committed and dropped.
			k.logger.Error("Dropping undecodable message",
				slog.Int64("offset", m.Offset), slog.Any("error", err))
			if err := k.reader.CommitMessages(ctx, m); err != nil {
				return Delivery{}, domain.NewNetworkError("commit", err)
			}
			continue
		}

		return Delivery{
			Message: msg,
			ack: func(ctx context.Context) error {
				if err := k.reader.CommitMessages(ctx, m); err != nil {
					return domain.NewNetworkError("commit", err)
				}
				return nil
			},
		}, nil
	}
}

func (k *Kafka) Close() error {
	werr := k.writer.Close()
	rerr := k.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
