package engine

import (
	"log"
	"sync"
	"time"
)

type EventType int

type SubscriberID int

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

type handler struct {
	id SubscriberID
	fn func(Event)
}

// EventBus delivers dashboard events synchronously, in subscription order.
// Emit must not be called while holding the engine lock. A panicking
// handler is logged and skipped; the remaining handlers still run.
type EventBus struct {
	mu       sync.RWMutex
	nextID   SubscriberID
	any      []handler
	byType   map[EventType][]handler
	panicLog func(format string, args ...any)
}

func NewEventBus() *EventBus {
	return &EventBus{byType: make(map[EventType][]handler), panicLog: log.Printf}
}

// Subscribe registers fn for the given event types, or for every event
// when none are given.
func (eb *EventBus) Subscribe(fn func(Event), types ...EventType) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	h := handler{id: eb.nextID, fn: fn}
	if len(types) == 0 {
		eb.any = append(eb.any, h)
		return h.id
	}
	for _, t := range types {
		eb.byType[t] = append(eb.byType[t], h)
	}
	return h.id
}

// SubscribeTypes is Subscribe with the types spelled out at the call site.
func (eb *EventBus) SubscribeTypes(fn func(Event), types ...EventType) SubscriberID {
	return eb.Subscribe(fn, types...)
}

func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.any = without(eb.any, id)
	for t, hs := range eb.byType {
		if hs = without(hs, id); len(hs) == 0 {
			delete(eb.byType, t)
		} else {
			eb.byType[t] = hs
		}
	}
}

func without(hs []handler, id SubscriberID) []handler {
	out := hs[:0:0]
	for _, h := range hs {
		if h.id != id {
			out = append(out, h)
		}
	}
	return out
}

func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	targets := make([]handler, 0, len(eb.any)+len(eb.byType[evt.Type]))
	targets = append(targets, eb.any...)
	targets = append(targets, eb.byType[evt.Type]...)
	eb.mu.RUnlock()

	// Restore subscription order across the two lists.
	for i := 1; i < len(targets); i++ {
		for j := i; j > 0 && targets[j].id < targets[j-1].id; j-- {
			targets[j], targets[j-1] = targets[j-1], targets[j]
		}
	}
	for _, h := range targets {
		eb.call(h, evt)
	}
}

func (eb *EventBus) call(h handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.panicLog("eventbus: subscriber %d panicked on %s: %v", h.id, evt.Type, r)
		}
	}()
	h.fn(evt)
}

func (t EventType) String() string {
	switch t {
	case EventRobotSelected:
		return "robot.selected"
	case EventRobotDeselected:
		return "robot.deselected"
	case EventRobotMoved:
		return "robot.moved"
	case EventMapLoaded:
		return "map.loaded"
	case EventTargetSet:
		return "target.set"
	case EventTrajectoryUpdated:
		return "trajectory.updated"
	case EventAcquisitionChanged:
		return "acquisition.changed"
	case EventRequestAction:
		return "request.action"
	case EventNotice:
		return "notice"
	case EventFrameRendered:
		return "frame.rendered"
	case EventMessagingConnected:
		return "messaging.connected"
	case EventMessagingDisconnected:
		return "messaging.disconnected"
	}
	return "unknown"
}
