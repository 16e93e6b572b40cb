package www

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"deliverydash/engine"
)

const (
	clientBuffer      = 64
	keepaliveInterval = 30 * time.Second
)

type SSEEvent struct {
	Event string
	Data  string
}

// sseClient is one connected browser. Events that do not fit in its
// buffer are dropped and counted.
type sseClient struct {
	events  chan SSEEvent
	dropped int
}

type EventHub struct {
	mu        sync.Mutex
	clients   map[*sseClient]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
	stopOnce  sync.Once
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[*sseClient]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.fanOut(evt)
		case <-keepalive.C:
			h.fanOut(SSEEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

func (h *EventHub) fanOut(evt SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.events <- evt:
		default:
			c.dropped++
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
		log.Printf("sse: broadcast queue full, dropping %s", event)
	}
}

func (h *EventHub) BroadcastJSON(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("sse: marshal %s: %v", event, err)
		return
	}
	h.Broadcast(event, string(data))
}

func (h *EventHub) addClient() *sseClient {
	c := &sseClient{events: make(chan SSEEvent, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// removeClient unregisters c and reports how many events it missed.
func (h *EventHub) removeClient(c *sseClient) int {
	h.mu.Lock()
	delete(h.clients, c)
	dropped := c.dropped
	h.mu.Unlock()
	close(c.events)
	return dropped
}

func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// sseRoutes names the browser-side event for each engine event and picks
// the data sent with it.
var sseRoutes = map[engine.EventType]struct {
	name string
	data func(any) any
}{
	engine.EventRobotSelected:     {"robot", tagged("selected")},
	engine.EventRobotDeselected:   {"robot", tagged("deselected")},
	engine.EventRobotMoved:        {"robot", tagged("moved")},
	engine.EventMapLoaded:         {"map", asIs},
	engine.EventTargetSet:         {"target", asIs},
	engine.EventTrajectoryUpdated: {"trajectory", asIs},
	engine.EventAcquisitionChanged: {"acquisition", func(p any) any {
		return p.(engine.AcquisitionChangedEvent).Snapshot
	}},
	engine.EventRequestAction:         {"request", asIs},
	engine.EventNotice:                {"notice", asIs},
	engine.EventFrameRendered:         {"frame", asIs},
	engine.EventMessagingConnected:    {"system-status", connection("connected")},
	engine.EventMessagingDisconnected: {"system-status", connection("disconnected")},
}

func asIs(p any) any { return p }

func tagged(kind string) func(any) any {
	return func(p any) any { return map[string]any{"type": kind, "robot": p} }
}

func connection(state string) func(any) any {
	return func(any) any { return map[string]string{"messaging": state} }
}

// SetupEngineListeners forwards engine events to browsers.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	types := make([]engine.EventType, 0, len(sseRoutes))
	for t := range sseRoutes {
		types = append(types, t)
	}
	eng.Events.Subscribe(func(evt engine.Event) {
		route := sseRoutes[evt.Type]
		h.BroadcastJSON(route.name, route.data(evt.Payload))
	}, types...)
}

// handleEvents streams hub events, starting with a snapshot of the
// dashboard so a fresh page does not wait for the next change.
func (h *Handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	c := h.eventHub.addClient()
	defer func() {
		if dropped := h.eventHub.removeClient(c); dropped > 0 {
			log.Printf("sse: client %s missed %d events", r.RemoteAddr, dropped)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	state, err := json.Marshal(h.engine.State())
	if err == nil {
		err = writeEvent(w, SSEEvent{Event: "state", Data: string(state)})
	}
	if err != nil {
		log.Printf("sse: initial state: %v", err)
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-c.events:
			if err := writeEvent(w, evt); err != nil {
				log.Printf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, evt SSEEvent) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
	return err
}
