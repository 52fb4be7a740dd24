package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

var ErrQueueClosed = errors.New("queue closed")

// MemoryQueue - 프로세스 내부 큐
//
// Key의 FNV 해시로 파티션을 고르므로 같은 시그니처는 항상 같은 worker가 처리한다.
type MemoryQueue struct {
	partitions []chan Message
	policy     RetryPolicy
	sink       DeadLetterSink
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) bool

	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

type MemoryConfig struct {
	Partitions int `yaml:"partitions"`
	BufferSize int `yaml:"buffer_size"`
}

func NewMemoryQueue(cfg MemoryConfig, policy RetryPolicy, sink DeadLetterSink, logger *slog.Logger) *MemoryQueue {
	if cfg.Partitions <= 0 {
		cfg.Partitions = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	parts := make([]chan Message, cfg.Partitions)
	for i := range parts {
		parts[i] = make(chan Message, cfg.BufferSize)
	}
	return &MemoryQueue{
		partitions: parts,
		done:       make(chan struct{}),
		policy:     policy.normalized(),
		sink:       sink,
		logger:     logger.With("component", "memory_queue"),
		sleep:      sleepCtx,
	}
}

// Publish - 파티션이 가득 차면 자리가 나거나 ctx가 끝나거나 Close될 때까지 기다린다.
// 파티션 채널은 닫지 않으므로 잠금 밖에서 보내도 된다.
func (q *MemoryQueue) Publish(ctx context.Context, msg Message) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}
	select {
	case q.partitions[q.partitionFor(msg.Key)] <- msg:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) partitionFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(q.partitions)))
}

// Run - 파티션마다 worker 1개를 띄우고 ctx가 끝날 때까지 처리
//
// ctx 취소 후에는 처리 중인 메시지만 끝내고 반환한다.
func (q *MemoryQueue) Run(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for _, ch := range q.partitions {
		wg.Add(1)
		go func(ch <-chan Message) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-ch:
					q.deliver(ctx, h, msg)
				}
			}
		}(ch)
	}
	wg.Wait()
	return nil
}

// Close - 이후 Publish는 ErrQueueClosed
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func (q *MemoryQueue) deliver(ctx context.Context, h Handler, msg Message) {
	// 한번 꺼낸 메시지는 취소와 무관하게 끝까지 처리한다
	workCtx := context.WithoutCancel(ctx)

	for attempt := 1; ; attempt++ {
		msg.DeliveryCount = attempt
		err := h(workCtx, msg)
		if err == nil {
			return
		}

		if attempt >= q.policy.MaxDeliveries {
			q.logger.Error("message dead-lettered",
				"message_id", msg.ID, "correlation_id", msg.CorrelationID, "attempts", attempt, "error", err)
			if q.sink != nil {
				dl := DeadLetter{Message: msg, Err: err, Reason: ReasonMaxDeliveryExceeded}
				if recErr := q.sink.Record(workCtx, dl); recErr != nil {
					q.logger.Error("failed to record dead letter", "message_id", msg.ID, "error", recErr)
				}
			}
			return
		}

		delay := q.policy.Backoff(attempt)
		q.logger.Warn("message processing failed, redelivering",
			"message_id", msg.ID, "attempt", attempt, "delay", delay, "error", err)
		q.sleep(workCtx, delay)
	}
}
