package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	block  bool
	closed int
}

func (c *fakeChannel) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	fail, block := c.fail, c.block
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errors.New("broken pipe")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeChannel) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = string(f)
	}
	return out
}

type fakeSink struct {
	mu          sync.Mutex
	connects    []string
	disconnects map[string]float64
	heartbeats  int
	err         error
}

func newFakeSink() *fakeSink {
	return &fakeSink{disconnects: make(map[string]float64)}
}

func (s *fakeSink) RecordConnect(ctx context.Context, userID, connectionID string, connectedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects = append(s.connects, connectionID)
	return s.err
}

func (s *fakeSink) RecordDisconnect(ctx context.Context, connectionID string, disconnectedAt time.Time, durationSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects[connectionID] = durationSeconds
	return s.err
}

func (s *fakeSink) RecordHeartbeat(ctx context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return s.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegisterUnregisterLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	router := NewRouter(reg, nil)

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c%d", i)
		_, err := reg.Register(ctx, id, "u1", &fakeChannel{})
		require.NoError(t, err)
		require.NoError(t, router.Subscribe(id, EventTopic("e1")))
	}
	assert.Equal(t, 10, reg.Count())
	assert.Len(t, reg.ListUserConnections("u1"), 10)

	for i := 0; i < 10; i++ {
		_, err := reg.Unregister(ctx, fmt.Sprintf("c%d", i))
		require.NoError(t, err)
	}

	assert.Equal(t, 0, reg.Count())
	assert.Empty(t, reg.ListUserConnections("u1"))
	assert.Empty(t, reg.ActiveUsers())
	assert.False(t, reg.HasTopic(EventTopic("e1")))
	assert.Equal(t, Stats{}, reg.Stats())
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register(context.Background(), "c1", "u1", &fakeChannel{})
	require.NoError(t, err)

	_, err = reg.Register(context.Background(), "c1", "u2", &fakeChannel{})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, []string{"c1"}, reg.ListUserConnections("u1"))
	assert.Empty(t, reg.ListUserConnections("u2"))
}

func TestUnregisterTwice(t *testing.T) {
	sink := newFakeSink()
	ch := &fakeChannel{}
	reg := NewRegistry(WithPresenceSink(sink))
	_, err := reg.Register(context.Background(), "c1", "u1", ch)
	require.NoError(t, err)

	_, err = reg.Unregister(context.Background(), "c1")
	require.NoError(t, err)
	_, err = reg.Unregister(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, ch.closed)
	assert.Len(t, sink.disconnects, 1)
}

func TestHeartbeatAndDuration(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)}
	sink := newFakeSink()
	reg := NewRegistry(WithClock(clock.Now), WithPresenceSink(sink))
	ctx := context.Background()

	connectedAt, err := reg.Register(ctx, "c1", "u1", &fakeChannel{})
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), connectedAt)

	clock.Advance(90 * time.Second)
	duration, err := reg.Heartbeat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 90.0, duration)
	assert.Equal(t, 1, sink.heartbeats)

	info, ok := reg.Get("c1")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), info.LastHeartbeat)

	clock.Advance(30 * time.Second)
	duration, err = reg.Unregister(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 120.0, duration)
	assert.Equal(t, 120.0, sink.disconnects["c1"])

	_, err = reg.Heartbeat(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSinkErrorsDoNotFailRegistration(t *testing.T) {
	sink := newFakeSink()
	sink.err = errors.New("db down")
	reg := NewRegistry(WithPresenceSink(sink))

	_, err := reg.Register(context.Background(), "c1", "u1", &fakeChannel{})
	require.NoError(t, err)
	_, err = reg.Unregister(context.Background(), "c1")
	require.NoError(t, err)
}

func TestSubscribeUnsubscribeLeavesNoResidue(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg, nil)
	_, err := reg.Register(context.Background(), "c1", "u1", &fakeChannel{})
	require.NoError(t, err)

	topic := UserTopic("u2")
	require.NoError(t, router.Subscribe("c1", topic))
	require.NoError(t, router.Subscribe("c1", topic))
	assert.Equal(t, []string{"c1"}, reg.Subscribers(topic))

	require.NoError(t, router.Unsubscribe("c1", topic))
	require.NoError(t, router.Unsubscribe("c1", topic))

	assert.False(t, reg.HasTopic(topic))
	assert.Empty(t, reg.Subscriptions("c1"))
	assert.Equal(t, 0, reg.Stats().UserSubscriptions)
}

func TestSubscribeUnknownConnection(t *testing.T) {
	router := NewRouter(NewRegistry(), nil)
	assert.ErrorIs(t, router.Subscribe("ghost", EventTopic("e1")), ErrNotFound)
	assert.NoError(t, router.Unsubscribe("ghost", EventTopic("e1")))
}

func TestPublishWithFailingSubscriber(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	router := NewRouter(reg, nil)
	topic := EventTopic("launch")

	good1, good2, bad := &fakeChannel{}, &fakeChannel{}, &fakeChannel{fail: true}
	for id, ch := range map[string]*fakeChannel{"a": good1, "b": good2, "c": bad} {
		_, err := reg.Register(ctx, id, "user-"+id, ch)
		require.NoError(t, err)
		require.NoError(t, router.Subscribe(id, topic))
	}

	result := router.Publish(ctx, topic, []byte(`{"type":"event_update"}`))
	assert.Equal(t, 3, result.Subscribers)
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, 1, result.Failed)

	assert.Equal(t, []string{`{"type":"event_update"}`}, good1.received())
	assert.Equal(t, []string{`{"type":"event_update"}`}, good2.received())

	_, ok := reg.Get("c")
	assert.False(t, ok, "failed connection is unregistered")
	assert.Equal(t, []string{"a", "b"}, reg.Subscribers(topic))

	// the transport's own cleanup path now finds nothing to do
	_, err := reg.Unregister(ctx, "c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendTimeoutDropsConnection(t *testing.T) {
	reg := NewRegistry(WithSendTimeout(20 * time.Millisecond))
	_, err := reg.Register(context.Background(), "slow", "u1", &fakeChannel{block: true})
	require.NoError(t, err)

	err = reg.Send(context.Background(), "slow", []byte("x"))
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.Equal(t, 0, reg.Count())
}

func TestCancelledCallerKeepsConnection(t *testing.T) {
	reg := NewRegistry(WithSendTimeout(time.Second))
	router := NewRouter(reg, nil)
	ch := &fakeChannel{}
	_, err := reg.Register(context.Background(), "c1", "u1", ch)
	require.NoError(t, err)
	require.NoError(t, router.Subscribe("c1", UserTopic("u9")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = reg.Send(ctx, "c1", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrChannelClosed)

	result := router.Publish(ctx, UserTopic("u9"), []byte("y"))
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, reg.Count())
	assert.Zero(t, ch.closed)

	result = router.Publish(context.Background(), UserTopic("u9"), []byte("z"))
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, []string{"z"}, ch.received())
}

func TestSendOutlivesCallerCancellation(t *testing.T) {
	reg := NewRegistry(WithSendTimeout(300 * time.Millisecond))
	ch := &fakeChannel{block: true}
	_, err := reg.Register(context.Background(), "c1", "u1", ch)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Send(ctx, "c1", []byte("x")) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
		t.Fatal("send returned on caller cancellation")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, reg.Count())
	assert.ErrorIs(t, <-done, ErrChannelClosed)
	assert.Equal(t, 0, reg.Count())
}

func TestSendUnknownConnection(t *testing.T) {
	err := NewRegistry().Send(context.Background(), "ghost", []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	router := NewRouter(NewRegistry(), nil)
	result := router.Publish(context.Background(), EventTopic("empty"), []byte("x"))
	assert.Equal(t, PublishResult{Topic: "event:empty"}, result)
}

func TestPublishPreservesOrderPerConnection(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	router := NewRouter(reg, nil)
	ch := &fakeChannel{}
	_, err := reg.Register(ctx, "c1", "u1", ch)
	require.NoError(t, err)
	require.NoError(t, router.Subscribe("c1", UserTopic("u9")))

	var want []string
	for i := 0; i < 20; i++ {
		msg := fmt.Sprintf("m%d", i)
		want = append(want, msg)
		router.Publish(ctx, UserTopic("u9"), []byte(msg))
	}
	assert.Equal(t, want, ch.received())
}

func TestPublishJSON(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	router := NewRouter(reg, nil)
	ch := &fakeChannel{}
	_, err := reg.Register(ctx, "c1", "u1", ch)
	require.NoError(t, err)
	require.NoError(t, router.Subscribe("c1", UserTopic("u1")))

	result, err := router.PublishJSON(ctx, UserTopic("u1"), map[string]string{"type": "notification"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, []string{`{"type":"notification"}`}, ch.received())

	_, err = router.PublishJSON(ctx, UserTopic("u1"), make(chan int))
	assert.Error(t, err)
}

func TestConcurrentRegistryAccess(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	router := NewRouter(reg, nil)
	topic := EventTopic("busy")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			if _, err := reg.Register(ctx, id, fmt.Sprintf("u%d", i%5), &fakeChannel{}); err != nil {
				t.Error(err)
				return
			}
			_ = router.Subscribe(id, topic)
			router.Publish(ctx, topic, []byte("ping"))
			_, _ = reg.Heartbeat(ctx, id)
			_, _ = reg.Unregister(ctx, id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Count())
	assert.False(t, reg.HasTopic(topic))
}

func TestUserConnectionsAndStats(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)}
	ctx := context.Background()
	reg := NewRegistry(WithClock(clock.Now))
	router := NewRouter(reg, nil)

	_, err := reg.Register(ctx, "c1", "u1", &fakeChannel{})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = reg.Register(ctx, "c2", "u1", &fakeChannel{})
	require.NoError(t, err)
	_, err = reg.Register(ctx, "c3", "u2", &fakeChannel{})
	require.NoError(t, err)
	require.NoError(t, router.Subscribe("c1", UserTopic("u2")))
	require.NoError(t, router.Subscribe("c3", EventTopic("e1")))
	clock.Advance(time.Minute)

	infos := reg.UserConnections("u1")
	require.Len(t, infos, 2)
	assert.Equal(t, "c1", infos[0].ConnectionID)
	assert.Equal(t, 120.0, infos[0].DurationSeconds)
	assert.Equal(t, 60.0, infos[1].DurationSeconds)

	assert.Equal(t, Stats{TotalConnections: 3, UniqueUsers: 2, UserSubscriptions: 1, EventSubscriptions: 1}, reg.Stats())
	assert.Equal(t, []string{"u1", "u2"}, reg.ActiveUsers())
}

func TestSendToUser(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	a, b := &fakeChannel{}, &fakeChannel{}
	_, _ = reg.Register(ctx, "a", "u1", a)
	_, _ = reg.Register(ctx, "b", "u1", b)

	assert.Equal(t, 2, reg.SendToUser(ctx, "u1", []byte("hi")))
	assert.Equal(t, 0, reg.SendToUser(ctx, "nobody", []byte("hi")))
}

func TestTopicParsing(t *testing.T) {
	topic, err := ParseTopic("user:42")
	require.NoError(t, err)
	assert.Equal(t, UserTopic("42"), topic)
	assert.Equal(t, "user:42", topic.String())

	_, err = ParseTopic("channel:1")
	assert.ErrorIs(t, err, ErrInvalidTopic)
	_, err = NewTopic("event", "  ")
	assert.ErrorIs(t, err, ErrInvalidTopic)
	_, err = ParseTopic("nocolon")
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

func TestCloseAllRecordsEveryDisconnect(t *testing.T) {
	ctx := context.Background()
	sink := newFakeSink()
	reg := NewRegistry(WithPresenceSink(sink))

	for i := 0; i < 3; i++ {
		_, err := reg.Register(ctx, fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i), &fakeChannel{})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, reg.CloseAll(ctx))
	assert.Equal(t, 0, reg.Count())
	assert.Len(t, sink.disconnects, 3)
	assert.Equal(t, 0, reg.CloseAll(ctx))
}
