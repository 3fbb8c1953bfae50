package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrBrokerUnavailable is returned while a failed dial is being backed off.
var ErrBrokerUnavailable = errors.New("rabbitmq: broker unavailable")

const (
	defaultDialTimeout = 2 * time.Second
	defaultRetryDelay  = 5 * time.Second
)

// Publisher sends activity events to RabbitMQ. The connection is opened on
// first use and re-opened after a failure, so a broker outage never blocks
// startup. Every call is bounded by its context: waiting for another
// caller's dial and the dial itself both give up when ctx is done, and
// after a failed dial callers fail fast for RetryDelay.
type Publisher struct {
	url   string
	queue string
	log   *slog.Logger

	DialTimeout time.Duration
	RetryDelay  time.Duration

	// sem guards conn, ch and nextDial; a channel so waiting honours ctx
	sem      chan struct{}
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

// NewPublisher returns a publisher for the activity queue at url.
func NewPublisher(url string, log *slog.Logger) *Publisher {
	return &Publisher{
		url:         url,
		queue:       ActivityQueue,
		log:         log,
		DialTimeout: defaultDialTimeout,
		RetryDelay:  defaultRetryDelay,
		sem:         make(chan struct{}, 1),
	}
}

// Publish sends ev as a persistent JSON message. Errors are logged and
// returned; callers treat delivery as best effort.
func (p *Publisher) Publish(ctx context.Context, ev ActivityEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.lock(ctx); err != nil {
		return fmt.Errorf("rabbitmq: wait for publisher: %w", err)
	}
	defer p.unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		if !errors.Is(err, ErrBrokerUnavailable) {
			p.log.Warn("rabbitmq: channel unavailable", slog.String("error", err.Error()))
		}
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		p.log.Warn("rabbitmq: publish failed", slog.String("type", ev.Type), slog.String("error", err.Error()))
		p.reset()
		return err
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.sem <- struct{}{}
	defer p.unlock()
	p.reset()
	return nil
}

func (p *Publisher) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) unlock() { <-p.sem }

// channel returns the open channel, dialing when needed. The lock must be held.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if time.Now().Before(p.nextDial) {
		return nil, ErrBrokerUnavailable
	}

	conn, err := dial(ctx, p.url, p.DialTimeout)
	if err != nil {
		p.nextDial = time.Now().Add(p.RetryDelay)
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.nextDial = time.Now().Add(p.RetryDelay)
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// dial connects to the broker at url within timeout or ctx, whichever ends
// first. The deadline also covers the AMQP handshake; the client clears it
// once the connection is open.
func dial(ctx context.Context, url string, timeout time.Duration) (*amqp.Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if deadline, ok := ctx.Deadline(); ok {
				if err := conn.SetDeadline(deadline); err != nil {
					_ = conn.Close()
					return nil, err
				}
			}
			return conn, nil
		},
	})
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
