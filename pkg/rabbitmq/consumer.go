package rabbitmq

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler processes one message received on topic.
type Handler func(topic string, msg mqtt.Message) error

// IConsumer subscribes a Handler to a topic until the context is cancelled.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(h Handler)
}

// Consumer holds the client and the topic filter it subscribes to.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
	logger  *zap.Logger
}

func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{client: client, topic: topic, qos: qos, handler: handler, logger: logger}
}

func (c *Consumer) SetHandler(h Handler) {
	c.handler = h
}

// ConsumeMessage subscribes and blocks until ctx is done, then unsubscribes.
// Handler errors are logged and do not stop the stream.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("no handler set for topic %s", c.topic)
	}
	token := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := c.handler(msg.Topic(), msg); err != nil {
			c.logger.Warn("message handling failed", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, token.Error())
	}
	c.logger.Info("subscribed", zap.String("topic", c.topic), zap.Uint8("qos", c.qos))

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
	return nil
}
