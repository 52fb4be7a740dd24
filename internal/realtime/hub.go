// Package realtime fans incident events out to subscribers grouped by tenant.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
)

type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

type subscriber struct {
	ch chan Event
}

// Hub - 그룹별 구독자 관리. 느린 구독자는 이벤트를 놓칠 수 있다.
type Hub struct {
	mu      sync.RWMutex
	groups  map[string]map[*subscriber]struct{}
	buffer  int
	dropped atomic.Int64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{groups: make(map[string]map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe - 반환된 cancel을 호출하면 채널이 닫힌다
func (h *Hub) Subscribe(group string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	members, ok := h.groups[group]
	if !ok {
		members = make(map[*subscriber]struct{})
		h.groups[group] = members
	}
	members[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.groups[group], sub)
			if len(h.groups[group]) == 0 {
				delete(h.groups, group)
			}
			close(sub.ch)
			h.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// NotifyGroup - 블로킹하지 않는다. 버퍼가 찬 구독자에게는 전달을 건너뛴다.
func (h *Hub) NotifyGroup(ctx context.Context, group, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.groups[group] {
		select {
		case sub.ch <- Event{Name: event, Payload: payload}:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub) Subscribers(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
