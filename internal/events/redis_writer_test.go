package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/stablebridge/gateway-minter/internal/wire"
)

// mockRedis records every HSet call for assertion.
type mockRedis struct {
	mu    sync.Mutex
	calls []hsetCall
	fail  bool
}

type hsetCall struct {
	Key    string
	Fields map[string]string
}

func (m *mockRedis) HSet(_ context.Context, key string, values ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("connection refused")
	}
	fields := make(map[string]string)
	for i := 0; i+1 < len(values); i += 2 {
		k, _ := values[i].(string)
		fields[k] = fmt.Sprint(values[i+1])
	}
	m.calls = append(m.calls, hsetCall{Key: key, Fields: fields})
	return nil
}

func (m *mockRedis) getCalls() []hsetCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]hsetCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func usedEvent(tag byte, value uint64) AttestationUsed {
	var hash wire.Hash
	hash[0] = tag
	var token, recipient wire.Identity
	token[31] = 0x44
	recipient[31] = 0x66
	return AttestationUsed{
		SourceDomain:         1,
		DestinationDomain:    5,
		DestinationToken:     token,
		DestinationRecipient: recipient,
		Nonce:                uint64(tag),
		Value:                uint256.NewInt(value),
		TransferSpecHash:     hash,
	}
}

func waitForCalls(t *testing.T, mock *mockRedis, n int) []hsetCall {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		calls := mock.getCalls()
		if len(calls) >= n {
			return calls
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d redis writes, have %d", n, len(calls))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRedisWriter_WritesAttestationUsed(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan Event, 8)

	rw := NewRedisWriter(mock, feed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rw.Run(ctx)

	used := usedEvent(0xA1, 100_000_000)
	feed <- used

	calls := waitForCalls(t, mock, 1)
	c := calls[0]
	wantKey := fmt.Sprintf("mint:5:%s", used.TransferSpecHash)
	if c.Key != wantKey {
		t.Fatalf("wrong key: %s, want %s", c.Key, wantKey)
	}
	if c.Fields["value"] != "100000000" {
		t.Fatalf("expected value '100000000', got %q", c.Fields["value"])
	}
	if c.Fields["source_domain"] != "1" {
		t.Fatalf("expected source_domain '1', got %q", c.Fields["source_domain"])
	}
}

func TestRedisWriter_SkipsOtherEvents(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan Event, 8)

	rw := NewRedisWriter(mock, feed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rw.Run(ctx)

	feed <- Paused{}
	feed <- usedEvent(0xB2, 500)

	calls := waitForCalls(t, mock, 1)
	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 write, got %d", len(calls))
	}
}

func TestRedisWriter_SuppressesDuplicates(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan Event, 8)

	rw := NewRedisWriter(mock, feed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rw.Run(ctx)

	feed <- usedEvent(0xC3, 500)
	feed <- usedEvent(0xC3, 500)
	feed <- usedEvent(0xC4, 600)

	waitForCalls(t, mock, 2)
	time.Sleep(50 * time.Millisecond)
	if got := len(mock.getCalls()); got != 2 {
		t.Fatalf("expected 2 writes after dedup, got %d", got)
	}
}
