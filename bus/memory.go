package bus

import (
	"strings"
	"sync"
	"sync/atomic"
)

// MemoryBus implements MessageBus using in-memory channels.
// Useful for testing and single-process scenarios.
type MemoryBus struct {
	config Config

	mu          sync.RWMutex
	subs        []*memorySub
	queueGroups map[string]map[string][]*memorySub // pattern -> queue -> subs
	closed      atomic.Bool
}

type memorySub struct {
	pattern string
	queue   string
	ch      chan *Message
	closed  atomic.Bool
	bus     *MemoryBus
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &MemoryBus{
		config:      cfg,
		queueGroups: make(map[string]map[string][]*memorySub),
	}
}

// subjectMatches reports whether a subject matches a subscription pattern.
// Supports the NATS-style '*' token wildcard so "tasks.resolved.*" matches
// "tasks.resolved.t-1".
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")
	if len(pTokens) != len(sTokens) {
		return false
	}
	for i, p := range pTokens {
		if p == "*" {
			continue
		}
		if p != sTokens[i] {
			return false
		}
	}
	return true
}

// Publish sends a message to all subscribers.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	msg := &Message{
		Subject: subject,
		Data:    data,
	}

	b.deliverToSubscribers(subject, msg)
	b.deliverToQueueGroups(subject, msg)

	return nil
}

// deliverToSubscribers sends to all regular subscribers with a matching pattern.
func (b *MemoryBus) deliverToSubscribers(subject string, msg *Message) {
	b.mu.RLock()
	subs := make([]*memorySub, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed.Load() || !subjectMatches(sub.pattern, subject) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Buffer full, drop message
		}
	}
}

// deliverToQueueGroups sends to one subscriber per queue group.
func (b *MemoryBus) deliverToQueueGroups(subject string, msg *Message) {
	b.mu.RLock()
	var matched [][]*memorySub
	for pattern, queues := range b.queueGroups {
		if !subjectMatches(pattern, subject) {
			continue
		}
		for _, qsubs := range queues {
			matched = append(matched, qsubs)
		}
	}
	b.mu.RUnlock()

	for _, qsubs := range matched {
		b.deliverToOneInQueue(qsubs, msg)
	}
}

// deliverToOneInQueue picks one subscriber from the queue.
func (b *MemoryBus) deliverToOneInQueue(subs []*memorySub, msg *Message) {
	// Try each until one accepts
	for _, sub := range subs {
		if !sub.closed.Load() {
			select {
			case sub.ch <- msg:
				return
			default:
				continue
			}
		}
	}
}

// Subscribe creates a subscription to a subject pattern.
func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySub{
		pattern: subject,
		ch:      make(chan *Message, b.config.BufferSize),
		bus:     b,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub, nil
}

// QueueSubscribe creates a queue subscription.
func (b *MemoryBus) QueueSubscribe(subject, queue string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if queue == "" {
		return nil, ErrInvalidSubject
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySub{
		pattern: subject,
		queue:   queue,
		ch:      make(chan *Message, b.config.BufferSize),
		bus:     b,
	}

	b.mu.Lock()
	if b.queueGroups[subject] == nil {
		b.queueGroups[subject] = make(map[string][]*memorySub)
	}
	b.queueGroups[subject][queue] = append(b.queueGroups[subject][queue], sub)
	b.mu.Unlock()

	return sub, nil
}

// Close shuts down the bus.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Close all subscriptions
	for _, sub := range b.subs {
		if !sub.closed.Swap(true) {
			close(sub.ch)
		}
	}

	for _, queues := range b.queueGroups {
		for _, subs := range queues {
			for _, sub := range subs {
				if !sub.closed.Swap(true) {
					close(sub.ch)
				}
			}
		}
	}

	b.subs = nil
	b.queueGroups = nil

	return nil
}

// Messages returns the message channel.
func (s *memorySub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe cancels the subscription.
func (s *memorySub) Unsubscribe() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.queue == "" {
		s.bus.removeSub(s)
	} else {
		s.bus.removeQueueSub(s)
	}

	close(s.ch)
	return nil
}

// removeSub removes a regular subscription.
func (b *MemoryBus) removeSub(target *memorySub) {
	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
}

// removeQueueSub removes a queue subscription.
func (b *MemoryBus) removeQueueSub(target *memorySub) {
	if b.queueGroups[target.pattern] == nil {
		return
	}
	subs := b.queueGroups[target.pattern][target.queue]
	for i, sub := range subs {
		if sub == target {
			b.queueGroups[target.pattern][target.queue] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
