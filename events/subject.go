package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Subject notifies an ordered set of callbacks whenever Publish is called.
// The zero value is not usable; construct with NewSubject.
type Subject[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []entry[T]
	log    *logrus.Logger
}

type entry[T any] struct {
	id int
	fn func(T)
}

// NewSubject returns an empty subject. Callbacks publish through log when
// they panic; a nil log falls back to the logrus standard logger.
func NewSubject[T any](log *logrus.Logger) *Subject[T] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Subject[T]{log: log}
}

// Subscribe registers fn and returns a closure that removes it again.
// Calling the closure more than once is harmless.
func (s *Subject[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, entry[T]{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.subs {
			if e.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every registered callback with v, in registration order.
// Callbacks run synchronously on the caller's goroutine.
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	snapshot := make([]entry[T], len(s.subs))
	copy(snapshot, s.subs)
	s.mu.Unlock()

	for _, e := range snapshot {
		s.invoke(e.fn, v)
	}
}

// Len reports the number of active subscriptions.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subject[T]) invoke(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("Event subscriber panicked")
		}
	}()
	fn(v)
}

// Keyed is a Subject partitioned by string key: subscribers only receive
// values published under the key they registered for.
type Keyed[T any] struct {
	mu   sync.Mutex
	log  *logrus.Logger
	subs map[string]*Subject[T]
}

// NewKeyed returns an empty keyed subject.
func NewKeyed[T any](log *logrus.Logger) *Keyed[T] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Keyed[T]{log: log, subs: make(map[string]*Subject[T])}
}

// Subscribe registers fn for values published under key and returns the
// unsubscribe closure.
func (k *Keyed[T]) Subscribe(key string, fn func(T)) func() {
	k.mu.Lock()
	subj, ok := k.subs[key]
	if !ok {
		subj = NewSubject[T](k.log)
		k.subs[key] = subj
	}
	k.mu.Unlock()

	unsub := subj.Subscribe(fn)
	return func() {
		unsub()
		k.mu.Lock()
		if s, ok := k.subs[key]; ok && s.Len() == 0 {
			delete(k.subs, key)
		}
		k.mu.Unlock()
	}
}

// Publish delivers v to the subscribers registered under key, if any.
func (k *Keyed[T]) Publish(key string, v T) {
	k.mu.Lock()
	subj, ok := k.subs[key]
	k.mu.Unlock()
	if ok {
		subj.Publish(v)
	}
}

// Keys reports the keys that currently have at least one subscriber.
func (k *Keyed[T]) Keys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	keys := make([]string, 0, len(k.subs))
	for key := range k.subs {
		keys = append(keys, key)
	}
	return keys
}
