package rabbitmq

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements the parts of mqtt.Client used by this package.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	subscribed   map[string]mqtt.MessageHandler
	unsubscribed []string
	published    []published
	subErr       error
	pubToken     *fakeToken
}

func newFakeClient() *fakeClient {
	return &fakeClient{subscribed: map[string]mqtt.MessageHandler{}}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return doneToken(c.subErr)
	}
	c.subscribed[topic] = cb
	return doneToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subscribed, t)
	}
	c.unsubscribed = append(c.unsubscribed, topics...)
	return doneToken(nil)
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if c.pubToken != nil {
		return c.pubToken
	}
	return doneToken(nil)
}

func (c *fakeClient) IsConnected() bool { return true }

func (c *fakeClient) deliver(filter, topic string, payload []byte) bool {
	c.mu.Lock()
	cb, ok := c.subscribed[filter]
	c.mu.Unlock()
	if !ok {
		return false
	}
	cb(c, fakeMessage{topic: topic, payload: payload})
	return true
}
