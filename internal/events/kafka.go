package events

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/order"
)

// DefaultTopic receives order events when none is configured.
const DefaultTopic = "bistro.orders"

var _ order.Notifier = (*KafkaNotifier)(nil)

// NewSyncProducer connects a producer that waits for all in-sync replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return p, nil
}

// KafkaNotifier publishes order events keyed by order id, so events of one
// order keep their relative order within a partition. A circuit breaker
// stops calling the brokers after repeated failures.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	cb       *gobreaker.CircuitBreaker
	now      func() time.Time
}

// NewKafkaNotifier creates a KafkaNotifier publishing to topic.
func NewKafkaNotifier(producer sarama.SyncProducer, topic string, lg *zap.Logger) *KafkaNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	settings := gobreaker.Settings{
		Name:        "kafka:" + topic,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		cb:       gobreaker.NewCircuitBreaker(settings),
		now:      time.Now,
	}
}

func (n *KafkaNotifier) OrderPlaced(ctx context.Context, o *order.Order) error {
	return n.publish(ctx, TypeOrderPlaced, o)
}

func (n *KafkaNotifier) StatusChanged(ctx context.Context, o *order.Order) error {
	return n.publish(ctx, TypeOrderStatusChanged, o)
}

func (n *KafkaNotifier) publish(ctx context.Context, typ string, o *order.Order) error {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []sarama.RecordHeader{{Key: []byte("type"), Value: []byte(typ)}}
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	msg := &sarama.ProducerMessage{
		Topic:   n.topic,
		Key:     sarama.StringEncoder(o.ID),
		Value:   sarama.ByteEncoder(Encode(typ, o, n.now())),
		Headers: headers,
	}

	type sent struct {
		partition int32
		offset    int64
	}
	res, err := executeWithBreaker(n.cb, func() (sent, error) {
		partition, offset, err := n.producer.SendMessage(msg)
		return sent{partition: partition, offset: offset}, err
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s", typ)
	}

	zctx.From(ctx).Debug("Event published",
		zap.String("type", typ),
		zap.String("order_id", o.ID),
		zap.Int32("partition", res.partition),
		zap.Int64("offset", res.offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return *new(T), err
	}
	return res.(T), nil
}
