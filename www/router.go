// Package www serves the operator dashboard: a JSON API, the rendered map
// surface as PNG and a server-sent event stream.
package www

import (
	"html/template"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"deliverydash/engine"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	index    *template.Template
	eventHub *EventHub
}

func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		index:    template.Must(template.New("index").Parse(indexHTML)),
		eventHub: hub,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json", "text/plain", "text/html"))

	r.Get("/", h.handleIndex)
	r.Get("/events", h.handleEvents)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.apiLogin)
		r.Post("/logout", h.apiLogout)
		r.Get("/health", h.apiHealth)
		r.Get("/state", h.apiState)
		r.Get("/robots", h.apiListRobots)
		r.Get("/map.png", h.apiMapPNG)
		r.Get("/map/locate", h.apiLocate)
		r.Get("/map/commands", h.apiDrawCommands)
		r.Get("/trajectory/export", h.apiExportTrajectory)
		r.Get("/cache/robots", h.apiCachedRobotIDs)
		r.Get("/cache/robots/{id}", h.apiCachedRobot)
		r.Get("/cache/requests/{id}/trajectory", h.apiCachedTrajectory)
		r.Get("/acquisition/log", h.apiAcquisitionLog)

		// Operator actions
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/robots/{id}/select", h.apiSelectRobot)
			r.Post("/robots/deselect", h.apiDeselectRobot)
			r.Post("/requests", h.apiCreateRequest)
			r.Post("/requests/accept", h.apiAcceptRequest)
			r.Post("/requests/reject", h.apiRejectRequest)
			r.Get("/requests/history", h.apiRequestHistory)
			r.Post("/trajectory/retry", h.apiRetryTrajectory)
			r.Get("/actions", h.apiOperatorActions)
		})
	})

	stopFn := func() {
		hub.Stop()
	}

	return r, stopFn
}

func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Authenticated": h.isAuthenticated(r),
		"Username":      h.getUsername(r),
		"Surface":       h.engine.AppConfig().Surface,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.index.Execute(w, data); err != nil {
		log.Printf("render index: %v", err)
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Delivery Dashboard</title></head>
<body>
<h1>Delivery Dashboard</h1>
{{if .Authenticated}}<p>Operator: {{.Username}}</p>{{else}}<p>Not logged in</p>{{end}}
<img id="surface" src="/api/map.png" width="{{.Surface.Width}}" height="{{.Surface.Height}}" alt="map">
<pre id="notice"></pre>
<script>
const es = new EventSource("/events");
es.addEventListener("frame", e => {
  document.getElementById("surface").src = "/api/map.png?v=" + JSON.parse(e.data).version;
});
es.addEventListener("notice", e => {
  document.getElementById("notice").textContent = JSON.parse(e.data).message;
});
document.getElementById("surface").addEventListener("click", async ev => {
  const p = await (await fetch("/api/map/locate?px=" + ev.offsetX + "&py=" + ev.offsetY)).json();
  if (!p.inside) return;
  await fetch("/api/requests", {method: "POST", headers: {"Content-Type": "application/json"},
    body: JSON.stringify({target_x: p.x, target_y: p.y})});
});
</script>
</body>
</html>
`
