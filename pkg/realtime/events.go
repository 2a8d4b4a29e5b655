package realtime

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// EventStateChanged 连接状态变化
	EventStateChanged EventType = "state.changed"
	// EventConnectFailed 连接尝试失败
	EventConnectFailed EventType = "connect.failed"
	// EventConnectionLost 已建立的连接意外断开
	EventConnectionLost EventType = "connection.lost"
)

// Event 事件
type Event struct {
	Type   EventType
	From   ConnectionState
	To     ConnectionState
	UserID string
	Err    error
	Time   time.Time
}

// EventHandler 事件处理器
type EventHandler func(Event)

// EventBus 事件总线
//
// 单个 worker 按发布顺序投递；队列满时丢弃并计数。
type EventBus struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
	queue    chan func()
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
	dropped  atomic.Int64
}

// NewEventBus 创建事件总线
func NewEventBus(queueSize int) *EventBus {
	if queueSize <= 0 {
		queueSize = 256
	}
	eb := &EventBus{
		handlers: make(map[EventType][]EventHandler),
		queue:    make(chan func(), queueSize),
		stopCh:   make(chan struct{}),
	}
	eb.wg.Add(1)
	go eb.worker()
	return eb
}

func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case task := <-eb.queue:
			eb.run(task)
		case <-eb.stopCh:
			// 投递剩余事件
			for {
				select {
				case task := <-eb.queue:
					eb.run(task)
				default:
					return
				}
			}
		}
	}
}

func (eb *EventBus) run(task func()) {
	defer func() { _ = recover() }()
	task()
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish 发布事件（异步）
func (eb *EventBus) Publish(event Event) {
	if eb.closed.Load() {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	eb.mu.RUnlock()

	for _, h := range handlers {
		h := h
		select {
		case eb.queue <- func() { h(event) }:
		default:
			eb.dropped.Add(1)
		}
	}
}

// Close 停止 worker，已入队的事件会投递完
func (eb *EventBus) Close() {
	if !eb.closed.CompareAndSwap(false, true) {
		return
	}
	close(eb.stopCh)
	eb.wg.Wait()
}

// Dropped 丢弃的事件数量
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}
