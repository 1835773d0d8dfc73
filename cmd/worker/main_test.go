package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"roomlog/internal/queue"
	"roomlog/internal/syncsvc"
)

func TestNewQueueMemoryBackendWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	q := newQueue("memory", nil, zap.New(core))
	_, ok := q.(*queue.InMemory)
	assert.True(t, ok)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "single-process")
}

func TestNewQueueDefaultsToRedis(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	client := syncsvc.NewClient("localhost:6379")

	q := newQueue("redis", client, zap.New(core))
	_, ok := q.(*queue.RedisQueue)
	assert.True(t, ok)
	assert.Empty(t, logs.All())
}
