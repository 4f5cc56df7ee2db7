package changefeed

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisFeed fans change notifications out over Redis pub/sub so that every
// API replica sees writes made by the others.
type RedisFeed struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisFeed(client redis.UniversalClient, prefix string) *RedisFeed {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "wayfarer:changes"
	}
	return &RedisFeed{client: client, prefix: prefix}
}

func (f *RedisFeed) channel(topic string) string {
	return f.prefix + ":" + topic
}

func (f *RedisFeed) Publish(ctx context.Context, topic string) error {
	return f.client.Publish(ctx, f.channel(topic), "changed").Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context, topic string) (<-chan struct{}, func(), error) {
	pubsub := f.client.Subscribe(ctx, f.channel(topic))
	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				log.Printf("changefeed: closing subscription to %s: %v", topic, err)
			}
		})
	}
	return out, cancel, nil
}
