package eventbus

import (
	"context"
	"sync"
)

type envelope struct {
	event   Event
	payload any
}

// EventBus delivers events to subscribers on a single goroutine. Publishing
// never blocks: when the buffer is full the event is dropped and the OnDrop
// hooks fire.
type EventBus struct {
	ch    chan envelope
	hooks hooks

	mu          sync.RWMutex
	subscribers map[Event][]func(any)
}

// New returns a bus with the given buffer size. Call Start to begin delivery.
func New(buffer int) *EventBus {
	return &EventBus{
		ch:          make(chan envelope, buffer),
		subscribers: make(map[Event][]func(any)),
	}
}

// Start delivers events until ctx is cancelled.
func (bus *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-bus.ch:
			bus.dispatch(env)
		}
	}
}

func (bus *EventBus) dispatch(env envelope) {
	bus.mu.RLock()
	subs := make([]func(any), len(bus.subscribers[env.event]))
	copy(subs, bus.subscribers[env.event])
	bus.mu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					bus.runOnPanic(env.event, env.payload, r)
				}
			}()
			fn(env.payload)
		}()
	}
}

func subscribe[T any](bus *EventBus, event Event, fn func(T)) {
	bus.mu.Lock()
	bus.subscribers[event] = append(bus.subscribers[event], func(p any) {
		fn(p.(T))
	})
	bus.mu.Unlock()

	bus.runOnSubscribe(event)
}

func (bus *EventBus) PublishAlarmFired(p AlarmFiredPayload) { bus.send(EventAlarmFired, p) }

func (bus *EventBus) SubscribeAlarmFired(fn func(AlarmFiredPayload)) {
	subscribe(bus, EventAlarmFired, fn)
}

func (bus *EventBus) PublishAlarmSnoozed(p AlarmSnoozedPayload) { bus.send(EventAlarmSnoozed, p) }

func (bus *EventBus) SubscribeAlarmSnoozed(fn func(AlarmSnoozedPayload)) {
	subscribe(bus, EventAlarmSnoozed, fn)
}

func (bus *EventBus) PublishAlarmDismissed(p AlarmDismissedPayload) {
	bus.send(EventAlarmDismissed, p)
}

func (bus *EventBus) SubscribeAlarmDismissed(fn func(AlarmDismissedPayload)) {
	subscribe(bus, EventAlarmDismissed, fn)
}

func (bus *EventBus) PublishTimerArmed(p TimerArmedPayload) { bus.send(EventTimerArmed, p) }

func (bus *EventBus) SubscribeTimerArmed(fn func(TimerArmedPayload)) {
	subscribe(bus, EventTimerArmed, fn)
}

func (bus *EventBus) PublishTimerCancelled(p TimerCancelledPayload) {
	bus.send(EventTimerCancelled, p)
}

func (bus *EventBus) SubscribeTimerCancelled(fn func(TimerCancelledPayload)) {
	subscribe(bus, EventTimerCancelled, fn)
}

func (bus *EventBus) PublishJobStateChanged(p JobStateChangedPayload) {
	bus.send(EventJobStateChanged, p)
}

func (bus *EventBus) SubscribeJobStateChanged(fn func(JobStateChangedPayload)) {
	subscribe(bus, EventJobStateChanged, fn)
}

func (bus *EventBus) PublishNotificationPosted(p NotificationPostedPayload) {
	bus.send(EventNotificationPosted, p)
}

func (bus *EventBus) SubscribeNotificationPosted(fn func(NotificationPostedPayload)) {
	subscribe(bus, EventNotificationPosted, fn)
}

func (bus *EventBus) PublishConfigReloaded(p ConfigReloadedPayload) {
	bus.send(EventConfigReloaded, p)
}

func (bus *EventBus) SubscribeConfigReloaded(fn func(ConfigReloadedPayload)) {
	subscribe(bus, EventConfigReloaded, fn)
}
