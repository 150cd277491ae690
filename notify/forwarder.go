// Package notify publishes every committed cache snapshot to Kafka.
package notify

import (
	"context"
	"strconv"
	"sync"

	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/playlist"
	"github.com/dailyyoga/vidcache/routine"
	"github.com/dailyyoga/vidcache/store"
	"go.uber.org/zap"
)

// Forwarder follows a store and publishes its snapshots in commit order
type Forwarder interface {
	Start()
	// Close stops following the store and closes the producer
	Close() error
}

type defaultForwarder struct {
	logger   logger.Logger
	cfg      *Config
	store    store.Store
	producer Producer
	runner   routine.Runner

	mu      sync.Mutex
	sub     store.Subscription
	started bool
	closed  bool
}

// New creates a forwarder from s to producer
func New(log logger.Logger, cfg *Config, s store.Store, producer Producer) (Forwarder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &defaultForwarder{
		logger:   log,
		cfg:      cfg,
		store:    s,
		producer: producer,
		runner:   routine.New(log),
	}, nil
}

func (f *defaultForwarder) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.closed {
		return
	}
	f.started = true

	var opts []store.SubscribeOption
	if f.cfg.PublishCurrent {
		opts = append(opts, store.WithCurrent())
	}
	f.sub = f.store.Subscribe(opts...)
	sub := f.sub
	f.runner.GoNamed("notify-forwarder", func() {
		for snap := range sub.C() {
			f.publish(snap)
		}
	})
	f.logger.Info("snapshot forwarder started", zap.String("topic", f.cfg.Topic))
}

func (f *defaultForwarder) publish(snap playlist.Snapshot) {
	data, err := NewEvent(snap, f.cfg.IncludeItems).Encode()
	if err != nil {
		f.logger.Error("failed to encode snapshot event", zap.Uint64("version", snap.Version), zap.Error(err))
		return
	}
	msg := &Message{
		Topic: f.cfg.Topic,
		Key:   []byte(f.cfg.Key),
		Value: data,
		Headers: map[string]string{
			"content-type": "application/json",
			"event-type":   EventTypeSnapshot,
			"version":      strconv.FormatUint(snap.Version, 10),
		},
	}
	if err := f.producer.Produce(context.Background(), msg); err != nil {
		f.logger.Error("failed to publish snapshot event",
			zap.String("topic", f.cfg.Topic),
			zap.Uint64("version", snap.Version),
			zap.Error(err),
		)
		return
	}
	f.logger.Debug("snapshot event published",
		zap.String("topic", f.cfg.Topic),
		zap.Uint64("version", snap.Version),
		zap.Int("items", snap.Len()),
	)
}

func (f *defaultForwarder) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	sub := f.sub
	f.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	f.runner.Wait()
	f.logger.Info("snapshot forwarder closed")
	return f.producer.Close()
}
