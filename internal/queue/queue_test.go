package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

type recordingSink struct {
	mu      sync.Mutex
	records []DeadLetter
	done    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{done: make(chan struct{}, 16)}
}

func (s *recordingSink) Record(ctx context.Context, dl DeadLetter) error {
	s.mu.Lock()
	s.records = append(s.records, dl)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestNewMessageGeneratesCorrelationID(t *testing.T) {
	msg := NewMessage("k", []byte("{}"), "", nil)
	if msg.CorrelationID == "" || msg.ID == "" {
		t.Fatalf("expected generated ids, got %+v", msg)
	}
	msg = NewMessage("k", nil, "corr-1", nil)
	if msg.CorrelationID != "corr-1" {
		t.Fatalf("explicit correlation id should be kept")
	}
}

func TestMemoryQueueDeadLettersAfterMaxDeliveries(t *testing.T) {
	sink := newRecordingSink()
	q := NewMemoryQueue(MemoryConfig{Partitions: 2}, RetryPolicy{MaxDeliveries: 3, BaseDelay: time.Second}, sink, nil)

	var mu sync.Mutex
	var delays []time.Duration
	q.sleep = func(ctx context.Context, d time.Duration) bool {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return true
	}

	var attempts []int
	handler := func(ctx context.Context, msg Message) error {
		mu.Lock()
		attempts = append(attempts, msg.DeliveryCount)
		mu.Unlock()
		return errors.New("store unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, handler)

	if err := q.Publish(ctx, NewMessage("sig", []byte("payload"), "corr", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("message was not dead-lettered")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 || attempts[2] != 3 {
		t.Fatalf("unexpected attempts: %v", attempts)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected delays: %v", delays)
	}
	if sink.records[0].Reason != ReasonMaxDeliveryExceeded || sink.records[0].Message.DeliveryCount != 3 {
		t.Fatalf("unexpected dead letter: %+v", sink.records[0])
	}
}

func TestMemoryQueueKeepsPerKeyOrder(t *testing.T) {
	q := NewMemoryQueue(MemoryConfig{Partitions: 4}, DefaultRetryPolicy, nil, nil)

	var mu sync.Mutex
	seen := map[string][]string{}
	var wg sync.WaitGroup
	handler := func(ctx context.Context, msg Message) error {
		mu.Lock()
		seen[msg.Key] = append(seen[msg.Key], string(msg.Body))
		mu.Unlock()
		wg.Done()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, handler)

	keys := []string{"a", "b", "c"}
	for i := 0; i < 10; i++ {
		for _, k := range keys {
			wg.Add(1)
			if err := q.Publish(ctx, NewMessage(k, []byte{byte('0' + i)}, "", nil)); err != nil {
				t.Fatalf("publish: %v", err)
			}
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, k := range keys {
		got := seen[k]
		if len(got) != 10 {
			t.Fatalf("key %s: got %d messages", k, len(got))
		}
		for i, body := range got {
			if body != string([]byte{byte('0' + i)}) {
				t.Fatalf("key %s out of order: %v", k, got)
			}
		}
	}
}

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	q := NewMemoryQueue(MemoryConfig{}, DefaultRetryPolicy, nil, nil)
	_ = q.Close()
	if err := q.Publish(context.Background(), NewMessage("k", nil, "", nil)); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestMemoryQueueCloseReleasesBlockedPublish(t *testing.T) {
	q := NewMemoryQueue(MemoryConfig{Partitions: 1, BufferSize: 1}, DefaultRetryPolicy, nil, nil)
	if err := q.Publish(context.Background(), NewMessage("k", nil, "", nil)); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- q.Publish(context.Background(), NewMessage("k", nil, "", nil)) }()

	select {
	case err := <-errCh:
		t.Fatalf("publish to a full partition should block, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	closed := make(chan struct{})
	go func() {
		_ = q.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("Close stalled behind a blocked publish")
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("blocked publish: expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked publish was not released by Close")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestKafkaMessageHeaders(t *testing.T) {
	msg := NewMessage("sig", []byte("body"), "corr-1", map[string]string{AttrTenantID: "t1"})
	pm := toProducerMessage("logs", msg, nil)

	cm := &sarama.ConsumerMessage{Topic: "logs", Key: []byte("sig"), Value: []byte("body")}
	for i := range pm.Headers {
		cm.Headers = append(cm.Headers, &pm.Headers[i])
	}

	got := fromConsumerMessage(cm)
	if got.ID != msg.ID || got.CorrelationID != "corr-1" || got.Attributes[AttrTenantID] != "t1" || got.Key != "sig" {
		t.Fatalf("headers not carried over: %+v", got)
	}
}

func TestKafkaConsumerDeadLettersToTopic(t *testing.T) {
	dlq := mocks.NewSyncProducer(t, nil)
	dlq.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "payload" {
			return errors.New("unexpected dead-letter body")
		}
		return nil
	})

	sink := newRecordingSink()
	c := &KafkaConsumer{
		cfg:    KafkaConfig{Topic: "logs"},
		dlq:    dlq,
		policy: RetryPolicy{MaxDeliveries: 2, BaseDelay: time.Millisecond},
		sink:   sink,
		logger: discardLogger(),
		sleep:  func(context.Context, time.Duration) bool { return true },
	}

	calls := 0
	c.process(context.Background(), func(ctx context.Context, msg Message) error {
		calls++
		return errors.New("boom")
	}, NewMessage("sig", []byte("payload"), "", nil))

	if calls != 2 {
		t.Fatalf("expected 2 deliveries, got %d", calls)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected dead letter to be recorded")
	}
	if err := dlq.Close(); err != nil {
		t.Fatalf("dlq expectations: %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
