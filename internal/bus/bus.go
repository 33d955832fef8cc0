package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"z-novel-pipeline/pkg/metrics"
)

// DefaultBuffer 每个订阅者的队列长度
const DefaultBuffer = 256

// Bus 事件总线，Publish 永不阻塞发布方
// 订阅者队列满时丢弃事件并计数
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    atomic.Uint64
	buffer int
	now    func() time.Time
}

// New 创建事件总线，buffer <= 0 时使用默认值
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		now:    time.Now,
	}
}

// Subscription 一个订阅者
type Subscription struct {
	id      uint64
	name    string
	ch      chan Event
	dropped atomic.Uint64
	bus     *Bus
	once    sync.Once
}

// C 事件通道，订阅关闭后被关闭
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Name 订阅者名称
func (s *Subscription) Name() string {
	return s.name
}

// Dropped 因队列满被丢弃的事件数
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close 取消订阅
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe 注册订阅者
func (b *Bus) Subscribe(name string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{
		id:   b.nextID,
		name: name,
		ch:   make(chan Event, b.buffer),
		bus:  b,
	}
	b.subs[s.id] = s
	return s
}

// Publish 分发事件并返回补全 ID、序号与时间后的事件
func (b *Bus) Publish(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Seq = b.seq.Add(1)
	if e.Time.IsZero() {
		e.Time = b.now()
	}
	metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
			metrics.EventsDropped.WithLabelValues(s.name).Inc()
		}
	}
	return e
}

// Subscribers 当前订阅者数量
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
