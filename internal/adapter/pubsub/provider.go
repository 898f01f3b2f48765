package pubsub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/webitel/im-presence-service/config"
)

// Provider builds publishers and subscribers for one broker backend.
type Provider interface {
	// Publisher returns a publisher bound to the exchange. Instances are shared.
	Publisher(exchange string) (message.Publisher, error)
	// Subscriber binds queue to exchange with the topic pattern.
	Subscriber(queue, exchange, topic string) (message.Subscriber, error)
	Close() error
}

// NewProvider uses RabbitMQ when broker.amqp_url is set and an in-process
// channel otherwise.
func NewProvider(cfg config.BrokerConfig, logger watermill.LoggerAdapter) Provider {
	if cfg.AMQPURL == "" {
		return &channelProvider{ch: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.OutputBuffer,
		}, logger)}
	}
	return &amqpProvider{
		uri:        cfg.AMQPURL,
		logger:     logger,
		publishers: make(map[string]*amqp.Publisher),
	}
}

// channelProvider serves every exchange from one GoChannel; topics are
// matched exactly.
type channelProvider struct {
	ch *gochannel.GoChannel
}

func (p *channelProvider) Publisher(string) (message.Publisher, error) { return p.ch, nil }

func (p *channelProvider) Subscriber(_, _, _ string) (message.Subscriber, error) { return p.ch, nil }

func (p *channelProvider) Close() error { return p.ch.Close() }

type amqpProvider struct {
	uri    string
	logger watermill.LoggerAdapter

	mu          sync.Mutex
	publishers  map[string]*amqp.Publisher
	subscribers []*amqp.Subscriber
}

func (p *amqpProvider) config(exchange string) amqp.Config {
	return amqp.Config{
		Connection: amqp.ConnectionConfig{AmqpURI: p.uri},
		Marshaler:  amqp.DefaultMarshaler{},
		Exchange: amqp.ExchangeConfig{
			GenerateName: func(string) string { return exchange },
			Type:         "topic",
			Durable:      true,
		},
		Publish: amqp.PublishConfig{
			GenerateRoutingKey: func(topic string) string { return topic },
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
}

func (p *amqpProvider) Publisher(exchange string) (message.Publisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pub, ok := p.publishers[exchange]; ok {
		return pub, nil
	}
	pub, err := amqp.NewPublisher(p.config(exchange), p.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: amqp publisher %s: %w", exchange, err)
	}
	p.publishers[exchange] = pub
	return pub, nil
}

// Subscriber declares an exclusive per-node queue: every instance must see
// every message to deliver to its own connections.
func (p *amqpProvider) Subscriber(queue, exchange, topic string) (message.Subscriber, error) {
	cfg := p.config(exchange)
	cfg.Queue = amqp.QueueConfig{
		GenerateName: amqp.GenerateQueueNameConstant(queue),
		AutoDelete:   true,
	}
	cfg.QueueBind = amqp.QueueBindConfig{
		GenerateRoutingKey: func(string) string { return topic },
	}
	cfg.Consume = amqp.ConsumeConfig{
		Qos: amqp.QosConfig{PrefetchCount: 32},
	}

	sub, err := amqp.NewSubscriber(cfg, p.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: amqp subscriber %s: %w", queue, err)
	}

	p.mu.Lock()
	p.subscribers = append(p.subscribers, sub)
	p.mu.Unlock()
	return sub, nil
}

func (p *amqpProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, sub := range p.subscribers {
		errs = append(errs, sub.Close())
	}
	for _, pub := range p.publishers {
		errs = append(errs, pub.Close())
	}
	return errors.Join(errs...)
}
