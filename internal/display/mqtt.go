package display

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends a payload to a topic. Implementations must give up once
// ctx is done.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// DefaultPublishWait bounds how long a publish waits for the broker's ack.
// It is kept below the redraw interval.
const DefaultPublishWait = 200 * time.Millisecond

// SeriesMessage is the payload published for each new series.
type SeriesMessage struct {
	Version   uint64    `json:"version"`
	Headline  string    `json:"headline"`
	Readings  []float64 `json:"readings"`
	Published time.Time `json:"published"`
}

// MQTTSink publishes the series to a broker whenever it changes, so a
// remote panel can draw it.
type MQTTSink struct {
	pub    Publisher
	topic  string
	logger *slog.Logger

	lastVersion uint64
}

func NewMQTTSink(pub Publisher, topic string, logger *slog.Logger) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic, logger: logger}
}

func (s *MQTTSink) Render(ctx context.Context, f Frame) error {
	if len(f.Series) == 0 || f.SeriesVersion == s.lastVersion {
		return nil
	}

	payload, err := json.Marshal(SeriesMessage{
		Version:   f.SeriesVersion,
		Headline:  f.Headline,
		Readings:  f.Series.Float64s(),
		Published: f.RenderedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal series: %w", err)
	}

	if err := s.pub.Publish(ctx, s.topic, payload); err != nil {
		return fmt.Errorf("publish series: %w", err)
	}

	s.lastVersion = f.SeriesVersion
	s.logger.Debug("series published", "topic", s.topic, "version", f.SeriesVersion)
	return nil
}

// MQTTPublisher is a Publisher backed by a paho client.
type MQTTPublisher struct {
	client      mqtt.Client
	logger      *slog.Logger
	publishWait time.Duration
	mu          sync.RWMutex
	connected   bool
}

// NewMQTTPublisher configures a client for tcp://broker:port. Call Connect
// before publishing.
func NewMQTTPublisher(broker string, port int, clientID string, logger *slog.Logger) *MQTTPublisher {
	p := &MQTTPublisher{logger: logger, publishWait: DefaultPublishWait}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port))
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", broker, "port", port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the initial connection, respecting ctx.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			p.client.Disconnect(0)
			return ctx.Err()
		default:
		}
	}
}

// Publish sends payload with QoS 1, retained so late subscribers get the
// current series. It waits for the ack at most publishWait, or until the
// ctx deadline if that comes first.
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	wait := p.publishWait
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < wait {
			wait = left
		}
	}
	if wait <= 0 {
		return fmt.Errorf("publish to %s: %w", topic, context.DeadlineExceeded)
	}

	token := p.client.Publish(topic, 1, true, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	case <-time.After(wait):
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
}

// IsConnected returns whether the client is connected.
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect closes the connection.
func (p *MQTTPublisher) Disconnect() {
	p.client.Disconnect(250)
	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
