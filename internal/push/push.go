// Package push dispatches device push messages.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/critichord/pkg/logger"
)

// Message 推送消息：设备 token、标题、正文与结构化载荷
type Message struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// LogDispatcher 仅记录日志，本地开发使用
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, msg Message) error {
	logger.Info("push dispatched", zap.String("title", msg.Title), zap.Any("data", msg.Data))
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher 把推送消息写入 kafka，由推送网关消费
type KafkaDispatcher struct {
	writer messageWriter
}

func NewKafkaDispatcher(brokers []string, topic string) (*KafkaDispatcher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka dispatcher needs brokers and topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &KafkaDispatcher{writer: w}, nil
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return d.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.Token), Value: value})
}

func (d *KafkaDispatcher) Close() error {
	if d == nil || d.writer == nil {
		return nil
	}
	return d.writer.Close()
}
