package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kedevs/blogapi/config"
	"github.com/kedevs/blogapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type recordingBackend struct {
	messages []published
	err      error
	closed   bool
}

func (b *recordingBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.messages = append(b.messages, published{channel: channel, data: data, attrs: attrs})
	return "id-1", nil
}

func (b *recordingBackend) Close() error {
	b.closed = true
	return nil
}

func TestPostEventPublisher(t *testing.T) {
	backend := &recordingBackend{}
	queue := New(backend)
	publisher := NewPostEventPublisher(queue, "blog.post-events")

	event := types.PostEvent{
		Type:       types.PostUpdated,
		PostID:     4,
		AuthorID:   1,
		ActorID:    2,
		Title:      "Hello",
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishPostEvent(context.Background(), event))

	require.Len(t, backend.messages, 1)
	msg := backend.messages[0]
	assert.Equal(t, "blog.post-events", msg.channel)
	assert.Equal(t, map[string]string{"event_type": "post.updated"}, msg.attrs)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.data, &decoded))
	assert.Equal(t, "post.updated", decoded["type"])
	assert.Equal(t, float64(4), decoded["post_id"])
	assert.Equal(t, float64(2), decoded["actor_id"])
	assert.Equal(t, "2026-03-01T10:00:00Z", decoded["occurred_at"])

	require.NoError(t, queue.Close())
	assert.True(t, backend.closed)
}

func TestPostEventPublisherPropagatesErrors(t *testing.T) {
	backend := &recordingBackend{err: errors.New("broker down")}
	publisher := NewPostEventPublisher(New(backend), "events")

	err := publisher.PublishPostEvent(context.Background(), types.PostEvent{Type: types.PostCreated})
	assert.EqualError(t, err, "broker down")
}

func TestOpen(t *testing.T) {
	queue, err := Open(context.Background(), config.MQConfig{Backend: config.MQBackendNone})
	require.NoError(t, err)
	assert.Nil(t, queue)

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.ErrorContains(t, err, "unsupported mq backend")

	_, err = Open(context.Background(), config.MQConfig{Backend: config.MQBackendRabbitMQ})
	assert.ErrorContains(t, err, "rabbitmq url is required")

	_, err = Open(context.Background(), config.MQConfig{Backend: config.MQBackendPubSub})
	assert.ErrorContains(t, err, "pubsub project id is required")
}
