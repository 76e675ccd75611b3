package eventqueue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/log"
)

func TestQueuePublishFansOutInRegistrationOrder(t *testing.T) {
	q := eventqueue.New(log.DefaultLogger())
	topic := eventqueue.TopicNewBlock(1)

	var order []string
	q.Subscribe(topic, "a", func(payload interface{}) { order = append(order, "a") })
	q.Subscribe(topic, "b", func(payload interface{}) { order = append(order, "b") })

	q.Publish(topic, 42)
	require.Equal(t, []string{"a", "b"}, order)
}

func TestQueueSubscribeSameIDReplacesHandler(t *testing.T) {
	q := eventqueue.New(log.DefaultLogger())
	topic := eventqueue.TopicNewBlock(1)

	calls := 0
	q.Subscribe(topic, "a", func(payload interface{}) { calls = 1 })
	q.Subscribe(topic, "a", func(payload interface{}) { calls = 2 })

	q.Publish(topic, nil)
	require.Equal(t, 2, calls)
}

func TestQueueUnsubscribeRemovesHandler(t *testing.T) {
	q := eventqueue.New(log.DefaultLogger())
	topic := eventqueue.TopicNewBlock(1)

	called := false
	q.Subscribe(topic, "a", func(payload interface{}) { called = true })
	q.Unsubscribe(topic, "a")

	q.Publish(topic, nil)
	require.False(t, called)
}

func TestQueueSubscribeByNameMatchesAnyScopedKey(t *testing.T) {
	q := eventqueue.New(log.DefaultLogger())

	var seen []string
	q.SubscribeByName(eventqueue.NameReadyToAggregate, "agg", func(payload interface{}) {
		seen = append(seen, payload.(string))
	})

	q.Publish(eventqueue.TopicReadyToAggregate(1, "req-a"), "first")
	q.Publish(eventqueue.TopicReadyToAggregate(1, "req-b"), "second")

	require.Equal(t, []string{"first", "second"}, seen)
}

func TestQueuePublishRecoversFromPanickingSubscriber(t *testing.T) {
	q := eventqueue.New(log.DefaultLogger())
	topic := eventqueue.TopicDkgReady()

	secondCalled := false
	q.Subscribe(topic, "panics", func(payload interface{}) { panic("boom") })
	q.Subscribe(topic, "second", func(payload interface{}) { secondCalled = true })

	require.NotPanics(t, func() { q.Publish(topic, nil) })
	require.True(t, secondCalled)
}

func TestQueuePublishNoSubscribersIsNoop(t *testing.T) {
	q := eventqueue.New(log.DefaultLogger())
	require.NotPanics(t, func() { q.Publish(eventqueue.TopicNewBlock(99), nil) })
}

func TestTopicStringIncludesKeyWhenPresent(t *testing.T) {
	require.Equal(t, "DkgReady", eventqueue.TopicDkgReady().String())
	require.Equal(t, "NewBlock(1)", eventqueue.TopicNewBlock(1).String())
}
