package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/josh-kwaku/banking-transfers/internal/verification"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes verification codes for the notification service
// to deliver by email.
type KafkaDispatcher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaDispatcher(brokers []string, topic string, timeout time.Duration) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		timeout: timeout,
	}
}

type codeNotification struct {
	verification.Message
	Template string `json:"template"`
}

// Send returns once the broker has acknowledged the message.
func (d *KafkaDispatcher) Send(ctx context.Context, msg verification.Message) error {
	data, err := json.Marshal(codeNotification{
		Message:  msg,
		Template: "transfer_verification_code",
	})
	if err != nil {
		return fmt.Errorf("Send: marshal: %w", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err = d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.UserID.String()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "flow", Value: []byte(msg.Flow)},
		},
	})
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
