package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type payload struct {
	AppGroupName string
	Kind         string
}

func TestQueue_PublishConsume(t *testing.T) {
	queue := NewQueue[payload](DefaultConfig())
	ctx := context.Background()

	err := queue.Publish(ctx, &payload{AppGroupName: "/apps/demo", Kind: "process.spawned"})
	assert.NoError(t, err)
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "/apps/demo", message.T().AppGroupName)
	assert.Equal(t, 0, queue.Size())

	assert.NoError(t, message.Ack())
	assert.Error(t, message.Ack(), "double ack")
}

func TestQueue_NackRequeues(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 1
	config.RetryDelay = 5 * time.Millisecond
	queue := NewQueue[payload](config)
	ctx := context.Background()

	assert.NoError(t, queue.Publish(ctx, &payload{Kind: "spawn.failed"}))

	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.NoError(t, message.Nack(nil))

	redelivered, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "spawn.failed", redelivered.T().Kind)

	// retry budget exhausted, nack drops the message
	assert.NoError(t, redelivered.Nack(nil))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, queue.Size())
}

func TestQueue_ContextCancellation(t *testing.T) {
	queue := NewQueue[payload](DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := queue.Consume(ctx)
	assert.Error(t, err)
}
