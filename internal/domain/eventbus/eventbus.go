// Package eventbus provides the process-wide event bus used for loose
// coupling between the pipeline, the flare monitor and the status surface.
package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

var (
	instance evbus.Bus
	once     sync.Once
)

// Get returns the shared bus instance.
func Get() evbus.Bus {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New creates a fresh bus, used by tests that need isolation.
func New() evbus.Bus {
	return evbus.New()
}

// Publish publishes an event on the shared bus.
func Publish(topic string, args ...interface{}) {
	Get().Publish(topic, args...)
}

// Subscribe registers a handler on the shared bus.
func Subscribe(topic string, fn interface{}) error {
	return Get().Subscribe(topic, fn)
}

// SubscribeAsync registers a handler that runs on its own goroutine.
func SubscribeAsync(topic string, fn interface{}) error {
	return Get().SubscribeAsync(topic, fn, false)
}

// Unsubscribe removes a handler from the shared bus.
func Unsubscribe(topic string, fn interface{}) error {
	return Get().Unsubscribe(topic, fn)
}
