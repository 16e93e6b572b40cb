package engine

import (
	"deliverydash/messaging"
)

func (e *Engine) wireEventHandlers() {
	// Anything visible on the map schedules a re-render.
	e.Events.SubscribeTypes(func(evt Event) {
		e.markDirty()
	}, visualEvents...)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(NoticeEvent)
		if ev.Kind == "terminal" || ev.Kind == "timeout" {
			e.logFn("engine: request %d: %s", ev.RequestID, ev.Message)
		}
	}, EventNotice)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RequestActionEvent)
		e.enqueue(e.cfg.Messaging.EventsTopic, messaging.MsgRequestAction, messaging.RequestAction{
			RequestID: ev.RequestID, Action: ev.Action, Username: ev.Username, Status: ev.Status,
		})
	}, EventRequestAction)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.logFn("engine: %s", ev.Detail)
	}, EventMessagingConnected, EventMessagingDisconnected)
}
