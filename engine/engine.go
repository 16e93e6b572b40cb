// Package engine holds the operator's dashboard session and wires the
// backend client, trajectory acquisition, live positions, rendering and
// persistence together.
package engine

import (
	"errors"
	"log"
	"sync"
	"time"

	"deliverydash/acquire"
	"deliverydash/backend"
	"deliverydash/config"
	"deliverydash/live"
	"deliverydash/messaging"
	"deliverydash/render"
	"deliverydash/statecache"
	"deliverydash/store"
	"deliverydash/timeutil"
)

var (
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrNoRobot       = errors.New("no robot selected")
	ErrNoRequest     = errors.New("no active delivery request")
	ErrNoTrajectory  = errors.New("no trajectory available")
	ErrNoMap         = errors.New("no map loaded")
	ErrInvalidTarget = errors.New("invalid target")
)

type LogFunc func(format string, args ...any)

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Backend    *backend.Client
	Cache      *statecache.RedisStore // may be nil
	MsgClient  *messaging.Client      // may be nil
	Clock      timeutil.Clock
	LogFunc    LogFunc
}

type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	client     *backend.Client
	cache      *statecache.RedisStore
	msgClient  *messaging.Client
	runner     *acquire.Runner
	updater    *live.Updater
	Events     *EventBus
	logFn      LogFunc
	renderOpts render.Options

	stopOnce sync.Once
	stopChan chan struct{}
	renderCh chan struct{}
	wg       sync.WaitGroup

	opMu sync.Mutex // serializes operator actions that restart the runner

	mu           sync.RWMutex
	sess         session
	version      uint64 // bumped on every session change that affects the frame
	frame        []byte
	frameFor     uint64 // version the cached frame was rendered from
	frameVersion uint64 // monotonically increasing frame counter
	msgConnected bool
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	cfg := c.AppConfig
	if cfg == nil {
		cfg = config.Defaults()
	}
	e := &Engine{
		cfg:        cfg,
		configPath: c.ConfigPath,
		db:         c.DB,
		client:     c.Backend,
		cache:      c.Cache,
		msgClient:  c.MsgClient,
		Events:     NewEventBus(),
		logFn:      logFn,
		renderOpts: render.DefaultOptions(),
		stopChan:   make(chan struct{}),
		renderCh:   make(chan struct{}, 1),
	}
	e.runner = acquire.NewRunner(acquire.Config{
		Source:         acquire.ClientSource{Client: c.Backend},
		Listener:       acquisitionListener{e},
		Clock:          c.Clock,
		StatusInterval: cfg.Acquisition.StatusInterval,
		RetryInterval:  cfg.Acquisition.RetryInterval,
		MaxAttempts:    cfg.Acquisition.MaxAttempts,
		LogFunc:        acquire.LogFunc(logFn),
	})
	e.updater = live.New(live.Config{
		Source:   live.ClientSource{Client: c.Backend},
		Sink:     positionSink{e},
		Clock:    c.Clock,
		Interval: cfg.Live.Interval,
		LogFunc:  logFn,
	})
	return e
}

func (e *Engine) Start() {
	e.wireEventHandlers()

	e.wg.Add(2)
	go e.renderLoop()
	go e.connectionHealthLoop()

	e.checkConnectionStatus()
	e.logFn("engine: started (backend %s)", e.client.BaseURL())
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.updater.Stop()
	e.runner.Stop()
	e.wg.Wait()
	e.logFn("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                 { return e.db }
func (e *Engine) AppConfig() *config.Config     { return e.cfg }
func (e *Engine) ConfigPath() string            { return e.configPath }
func (e *Engine) Backend() *backend.Client      { return e.client }
func (e *Engine) Cache() *statecache.RedisStore { return e.cache }
func (e *Engine) MsgClient() *messaging.Client  { return e.msgClient }
func (e *Engine) Acquisition() acquire.Snapshot { return e.runner.Snapshot() }

func (e *Engine) messagingEnabled() bool {
	return e.msgClient != nil && e.msgClient.Enabled()
}

func (e *Engine) checkConnectionStatus() {
	if !e.messagingEnabled() {
		return
	}
	connected := e.msgClient.IsConnected()
	e.mu.Lock()
	changed := connected != e.msgConnected
	e.msgConnected = connected
	e.mu.Unlock()
	if !changed {
		return
	}
	if connected {
		e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
	} else {
		e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
	}
}

func (e *Engine) connectionHealthLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}

// Health summarizes the dashboard's collaborators.
type Health struct {
	Backend   string `json:"backend"`
	Database  string `json:"database"`
	Cache     bool   `json:"cache"`
	Messaging string `json:"messaging"`
}

func (e *Engine) Health() Health {
	h := Health{Backend: e.client.BaseURL(), Cache: e.cache != nil, Messaging: "disabled"}
	if e.db != nil {
		h.Database = e.db.Driver()
	}
	if e.messagingEnabled() {
		h.Messaging = "disconnected"
		if e.msgClient.IsConnected() {
			h.Messaging = "connected"
		}
	}
	return h
}
