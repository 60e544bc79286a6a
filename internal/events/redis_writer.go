package events

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient abstracts the Redis operations used by RedisWriter.
// In production this is satisfied by Client; in tests by a mock.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) error
}

// Client adapts a go-redis client to the RedisClient interface.
type Client struct {
	rdb *redis.Client
}

// NewClient connects a Redis event store.
func NewClient(addr, password string, db int) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// HSet writes a hash to Redis.
func (c *Client) HSet(ctx context.Context, key string, values ...any) error {
	return c.rdb.HSet(ctx, key, values...).Err()
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// RedisWriter subscribes to a Broadcaster's unified stream and persists
// every AttestationUsed record into Redis using the schema:
//
//	Key:    mint:{destination_domain}:{transfer_spec_hash}
//	Fields: source_domain, token, recipient, nonce, value, ts
//
// Writes are non-blocking: records are buffered in an internal channel
// and flushed by a dedicated goroutine. A hash already written this
// session is suppressed; replay protection upstream makes duplicates an
// anomaly worth skipping, not re-writing.
type RedisWriter struct {
	client RedisClient
	feed   <-chan Event
	buf    chan AttestationUsed

	mu      sync.Mutex
	written map[string]struct{} // keyed by Redis key
}

// NewRedisWriter creates a RedisWriter that reads from the Broadcaster's
// SubscribeAll channel and writes to the given Redis client.
func NewRedisWriter(client RedisClient, feed <-chan Event) *RedisWriter {
	return &RedisWriter{
		client:  client,
		feed:    feed,
		buf:     make(chan AttestationUsed, 1024),
		written: make(map[string]struct{}),
	}
}

// Run starts two goroutines: one to drain the Broadcaster feed into an
// internal buffer, and one to flush buffered records to Redis. It blocks
// until ctx is cancelled.
func (rw *RedisWriter) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	// Ingestion: drain the feed into the internal buffer so we never
	// block the Broadcaster.
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-rw.feed:
				if !ok {
					return
				}
				used, isUsed := ev.(AttestationUsed)
				if !isUsed {
					continue
				}
				select {
				case rw.buf <- used:
				default:
					log.Printf("redis writer: buffer full, dropping %s", used.TransferSpecHash)
				}
			}
		}
	}()

	// Flush: write buffered records.
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case used := <-rw.buf:
				rw.write(ctx, used)
			}
		}
	}()

	wg.Wait()
}

func (rw *RedisWriter) write(ctx context.Context, used AttestationUsed) {
	key := fmt.Sprintf("mint:%d:%s", used.DestinationDomain, used.TransferSpecHash)

	rw.mu.Lock()
	if _, done := rw.written[key]; done {
		rw.mu.Unlock()
		return
	}
	rw.written[key] = struct{}{}
	rw.mu.Unlock()

	err := rw.client.HSet(ctx, key,
		"source_domain", used.SourceDomain,
		"token", used.DestinationToken.String(),
		"recipient", used.DestinationRecipient.String(),
		"nonce", used.Nonce,
		"value", used.Value.Dec(),
		"ts", time.Now().UnixMilli(),
	)
	if err != nil {
		// The record is not retried; drop the dedup entry so a later
		// copy of the same record is written instead of suppressed.
		rw.mu.Lock()
		delete(rw.written, key)
		rw.mu.Unlock()
		log.Printf("redis writer: hset %s: %v", key, err)
	}
}
