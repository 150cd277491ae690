package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/vidcache/logger"
	"go.uber.org/zap"
)

// Message is one record handed to a Producer
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer publishes messages
type Producer interface {
	Produce(ctx context.Context, msg *Message) error
	Close() error
}

type kafkaProducer struct {
	logger       logger.Logger
	p            *kafka.Producer
	flushTimeout time.Duration

	wg     sync.WaitGroup
	done   chan struct{}
	closed atomic.Bool
}

// NewKafkaProducer verifies the brokers are reachable and creates a producer
func NewKafkaProducer(log logger.Logger, cfg *Config) (Producer, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig("config is nil")
	}
	cfg = cfg.MergeDefaults()
	cfg.Enabled = true
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := validateCluster(log, cfg.Brokers); err != nil {
		return nil, err
	}

	producer, err := kafka.NewProducer(cfg.BuildConfigMap())
	if err != nil {
		return nil, ErrConnection(err)
	}

	kp := &kafkaProducer{
		logger:       log,
		p:            producer,
		flushTimeout: cfg.FlushTimeout,
		done:         make(chan struct{}),
	}
	kp.wg.Add(1)
	go kp.handleDeliveryReports()

	log.Info("kafka producer initialized", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return kp, nil
}

func (kp *kafkaProducer) handleDeliveryReports() {
	defer kp.wg.Done()

	for {
		select {
		case <-kp.done:
			return
		case e := <-kp.p.Events():
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					kp.logger.Error("failed to deliver snapshot event",
						zap.Error(ev.TopicPartition.Error),
						zap.String("topic", *ev.TopicPartition.Topic),
					)
				} else {
					kp.logger.Debug("snapshot event delivered",
						zap.String("topic", *ev.TopicPartition.Topic),
						zap.Int32("partition", ev.TopicPartition.Partition),
						zap.Int64("offset", int64(ev.TopicPartition.Offset)),
					)
				}
			case kafka.Error:
				kp.logger.Error("kafka producer error",
					zap.Int("code", int(ev.Code())),
					zap.String("error", ev.String()),
				)
			default:
				kp.logger.Debug("received unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
			}
		}
	}
}

func (kp *kafkaProducer) Produce(ctx context.Context, msg *Message) error {
	if kp.closed.Load() {
		return ErrProducerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	topic := msg.Topic
	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            msg.Key,
		Value:          msg.Value,
	}
	for k, v := range msg.Headers {
		message.Headers = append(message.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := kp.p.Produce(message, nil); err != nil {
		return ErrProduce(topic, err)
	}
	return nil
}

func (kp *kafkaProducer) Close() error {
	if !kp.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(kp.done)
	kp.wg.Wait()

	if remaining := kp.p.Flush(int(kp.flushTimeout.Milliseconds())); remaining > 0 {
		kp.logger.Warn("snapshot events left unflushed at shutdown", zap.Int("remaining", remaining))
	}
	kp.p.Close()
	return nil
}

// validateCluster fetches cluster metadata once to fail fast on bad brokers
func validateCluster(log logger.Logger, brokers []string) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"request.timeout.ms": 10000,
	})
	if err != nil {
		return ErrConnection(err)
	}
	defer admin.Close()

	if _, err := admin.GetMetadata(nil, false, int((10 * time.Second).Milliseconds())); err != nil {
		return ErrConnection(err)
	}
	log.Info("kafka brokers connection validated", zap.Strings("brokers", brokers))
	return nil
}
