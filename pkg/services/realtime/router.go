package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/jgirmay/circle_realtime/pkg/metrics"
)

// PublishResult reports the fan-out of one Publish call
type PublishResult struct {
	Topic       string `json:"topic"`
	Subscribers int    `json:"subscribers"`
	Delivered   int    `json:"delivered"`
	Failed      int    `json:"failed"`
}

// Router maps topics to subscribed connections and fans events out to them
type Router struct {
	registry *Registry
	metrics  *metrics.Metrics
}

// NewRouter creates a router over the registry's subscription index
func NewRouter(registry *Registry, m *metrics.Metrics) *Router {
	return &Router{registry: registry, metrics: m}
}

// Subscribe adds connectionID to topic. Repeating it is a no-op.
func (rt *Router) Subscribe(connectionID string, topic Topic) error {
	if err := rt.registry.subscribe(connectionID, topic); err != nil {
		return err
	}
	log.Printf("[ROUTER] Connection %s subscribed to %s", connectionID, topic)
	return nil
}

// Unsubscribe removes connectionID from topic. Unknown pairs are ignored.
func (rt *Router) Unsubscribe(connectionID string, topic Topic) error {
	rt.registry.unsubscribe(connectionID, topic)
	return nil
}

// Publish sends payload to every subscriber of topic. The subscriber set is
// snapshotted under the lock; sends run concurrently outside it and Publish
// returns once all of them finished. Failed connections are dropped by the
// registry.
func (rt *Router) Publish(ctx context.Context, topic Topic, payload []byte) PublishResult {
	result := PublishResult{Topic: topic.String()}

	subscribers := rt.registry.Subscribers(topic)
	result.Subscribers = len(subscribers)
	if len(subscribers) == 0 {
		return result
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, id := range subscribers {
		wg.Add(1)
		go func(connectionID string) {
			defer wg.Done()
			err := rt.registry.Send(ctx, connectionID, payload)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				return
			}
			result.Delivered++
		}(id)
	}
	wg.Wait()

	rt.metrics.Delivered(string(topic.Kind), result.Delivered, result.Failed)
	if result.Failed > 0 {
		log.Printf("[ROUTER] Publish to %s: %d delivered, %d failed", topic, result.Delivered, result.Failed)
	}
	return result
}

// PublishJSON encodes v once and publishes it
func (rt *Router) PublishJSON(ctx context.Context, topic Topic, v interface{}) (PublishResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return PublishResult{Topic: topic.String()}, fmt.Errorf("failed to encode event: %w", err)
	}
	return rt.Publish(ctx, topic, payload), nil
}
