// Package queue decouples log mutations from counter replication: the API
// publishes a nudge after every append, tally change, or clear, and the
// worker consumes nudges to recompute and push room counts.
package queue

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kinds of nudge the API publishes.
const (
	KindCounts = "counts"  // room counts may have changed
	KindClear  = "cleared" // log was wiped, push zeros immediately
)

// Message is a replication nudge. It carries no payload beyond its kind and
// publish time; the worker always recomputes counts from the local files.
type Message struct {
	Kind string
	At   time.Time
}

// Queue is the abstraction over backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a bounded channel-backed queue for single-process and test
// use.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates an in-memory queue holding up to size messages.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message, blocking if the buffer is full.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel the worker ranges over.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list-backed queue for the split api/worker
// deployment.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP on key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "roomlog:nudges"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key, encode(msg)).Err()
}

// Consume streams messages with a blocking pop loop.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue // redis.Nil on timeout, or transient failure
			}
			if len(res) != 2 {
				continue
			}
			select {
			case out <- decode(res[1]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Wire form is "kind|unixSeconds".

func encode(msg Message) string {
	return msg.Kind + "|" + strconv.FormatInt(msg.At.Unix(), 10)
}

func decode(s string) Message {
	kind, rest, found := strings.Cut(s, "|")
	if !found {
		return Message{Kind: s}
	}
	sec, _ := strconv.ParseInt(rest, 10, 64)
	return Message{Kind: kind, At: time.Unix(sec, 0)}
}
