package advisor

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/cropgenius/internal/services/market"
	"github.com/LeonardoBeccarini/cropgenius/pkg/rabbitmq"
)

const maizeCatalog = `
crops:
  Maize:
    expected_yield: 3500
    price_per_unit: 0.35
    unit: kg
  cassava:
    expected_yield: 11000
    price_per_unit: 0.12
treatments:
  - name: Neem Oil Spray
    category: Organic
    effectiveness: 0.75
    cost: 15.50
    crops: [maize]
  - name: Compost Tea
    category: organic
    effectiveness: 0.65
    cost: 8.25
  - name: Mancozeb Fungicide
    category: Inorganic
    effectiveness: 0.90
    cost: 32.75
    crops: [maize]
    diseases: [Maize Leaf Blight, Gray Leaf Spot]
  - name: Copper Oxychloride
    category: inorganic
    effectiveness: 0.85
    cost: 28.50
    crops: [maize, cassava]
    diseases: [Maize Leaf Blight]
`

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := ParseCatalog([]byte(maizeCatalog))
	require.NoError(t, err)
	return c
}

type fakeRecorder struct {
	mu     sync.Mutex
	runs   []Run
	recent []RunSummary
	err    error
	age    time.Duration
}

func (r *fakeRecorder) Record(_ context.Context, run Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return r.err
}

func (r *fakeRecorder) Recent(_ context.Context, minutes, limit int) ([]RunSummary, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.recent, nil
}

func (r *fakeRecorder) LastErrorAge() time.Duration {
	if r.age == 0 {
		return time.Hour
	}
	return r.age
}

func (r *fakeRecorder) recorded() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Run(nil), r.runs...)
}

type publishedMsg struct {
	topic string
	qos   byte
	v     any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []publishedMsg
	err  error
}

func (p *fakePublisher) PublishJSON(topic string, qos byte, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, publishedMsg{topic: topic, qos: qos, v: v})
	return nil
}

func (p *fakePublisher) published() []publishedMsg {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMsg(nil), p.msgs...)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 7 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeConsumer struct {
	mu      sync.Mutex
	handler rabbitmq.Handler
	ready   chan struct{}
}

func newFakeConsumer() *fakeConsumer { return &fakeConsumer{ready: make(chan struct{})} }

func (c *fakeConsumer) SetHandler(h rabbitmq.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *fakeConsumer) ConsumeMessage(ctx context.Context) error {
	close(c.ready)
	<-ctx.Done()
	return nil
}

func (c *fakeConsumer) deliver(topic, payload string) error {
	<-c.ready
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	var msg mqtt.Message = fakeMessage{topic: topic, payload: []byte(payload)}
	return h(topic, msg)
}

type fakePrices struct {
	quote market.Quote
	err   error
	calls int
}

func (p *fakePrices) LatestPrice(_ context.Context, crop string) (market.Quote, error) {
	p.calls++
	if p.err != nil {
		return market.Quote{}, p.err
	}
	q := p.quote
	q.CropType = crop
	return q, nil
}
