package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject_PublishOrder(t *testing.T) {
	s := NewSubject[int](nil)

	var order []string
	s.Subscribe(func(int) { order = append(order, "first") })
	s.Subscribe(func(int) { order = append(order, "second") })
	s.Subscribe(func(int) { order = append(order, "third") })

	s.Publish(1)

	assert.Equal(t, []string{"first", "second", "third"}, order,
		"callbacks should fire in registration order")
}

func TestSubject_Unsubscribe(t *testing.T) {
	s := NewSubject[string](nil)

	var got []string
	unsubA := s.Subscribe(func(v string) { got = append(got, "a:"+v) })
	s.Subscribe(func(v string) { got = append(got, "b:"+v) })

	s.Publish("one")
	unsubA()
	s.Publish("two")

	assert.Equal(t, []string{"a:one", "b:one", "b:two"}, got)
	assert.Equal(t, 1, s.Len())
}

func TestSubject_UnsubscribeTwice(t *testing.T) {
	s := NewSubject[int](nil)
	unsub := s.Subscribe(func(int) {})
	unsub()
	unsub()
	assert.Equal(t, 0, s.Len())
}

func TestSubject_PanickingSubscriberIsolated(t *testing.T) {
	s := NewSubject[int](nil)

	var after bool
	s.Subscribe(func(int) { panic("bad subscriber") })
	s.Subscribe(func(int) { after = true })

	assert.NotPanics(t, func() { s.Publish(1) })
	assert.True(t, after, "subscribers after a panicking one should still run")
}

func TestKeyed_ScopedDelivery(t *testing.T) {
	k := NewKeyed[int](nil)

	var routeHits, stopHits []int
	k.Subscribe("routes", func(v int) { routeHits = append(routeHits, v) })
	k.Subscribe("stops", func(v int) { stopHits = append(stopHits, v) })

	k.Publish("routes", 1)
	k.Publish("stops", 2)
	k.Publish("vehicles", 3)

	assert.Equal(t, []int{1}, routeHits)
	assert.Equal(t, []int{2}, stopHits)
}

func TestKeyed_UnsubscribeCleansUpKey(t *testing.T) {
	k := NewKeyed[int](nil)

	unsub := k.Subscribe("routes", func(int) {})
	assert.Equal(t, []string{"routes"}, k.Keys())

	unsub()
	assert.Empty(t, k.Keys(), "key with no subscribers should be dropped")
}

func TestKeyed_MultipleSubscribersSameKey(t *testing.T) {
	k := NewKeyed[string](nil)

	var a, b int
	k.Subscribe("vehicles", func(string) { a++ })
	unsubB := k.Subscribe("vehicles", func(string) { b++ })

	k.Publish("vehicles", "x")
	unsubB()
	k.Publish("vehicles", "y")

	assert.Equal(t, 2, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, []string{"vehicles"}, k.Keys())
}
