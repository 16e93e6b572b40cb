package www

import (
	"net/http"
	"strconv"

	"deliverydash/pathdata"
	"deliverydash/statecache"
)

func (h *Handlers) apiMapPNG(w http.ResponseWriter, r *http.Request) {
	data, version, err := h.engine.Frame()
	if err != nil {
		h.engineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Frame-Version", strconv.FormatUint(version, 10))
	w.Write(data)
}

// apiLocate converts a surface pixel into map coordinates.
func (h *Handlers) apiLocate(w http.ResponseWriter, r *http.Request) {
	px, errX := parseFloatQuery(r, "px")
	py, errY := parseFloatQuery(r, "py")
	if errX != nil || errY != nil {
		h.jsonError(w, "px and py are required", http.StatusBadRequest)
		return
	}
	p, inside, err := h.engine.Locate(px, py)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, struct {
		pathdata.Point
		Inside bool `json:"inside"`
	}{p, inside})
}

// apiDrawCommands returns the draw list behind the current frame.
func (h *Handlers) apiDrawCommands(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.Commands())
}

func (h *Handlers) cache(w http.ResponseWriter) *statecache.RedisStore {
	c := h.engine.Cache()
	if c == nil {
		h.jsonError(w, "cache disabled", http.StatusServiceUnavailable)
	}
	return c
}

func (h *Handlers) apiCachedRobotIDs(w http.ResponseWriter, r *http.Request) {
	cache := h.cache(w)
	if cache == nil {
		return
	}
	ids, err := cache.GetAllRobotIDs(r.Context())
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	h.jsonOK(w, ids)
}

func (h *Handlers) apiCachedRobot(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		h.jsonError(w, "invalid robot id", http.StatusBadRequest)
		return
	}
	cache := h.cache(w)
	if cache == nil {
		return
	}
	pos, err := cache.GetRobotPosition(r.Context(), id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	if pos == nil {
		h.jsonError(w, "not cached", http.StatusNotFound)
		return
	}
	h.jsonOK(w, pos)
}

func (h *Handlers) apiCachedTrajectory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		h.jsonError(w, "invalid request id", http.StatusBadRequest)
		return
	}
	cache := h.cache(w)
	if cache == nil {
		return
	}
	snap, err := cache.GetTrajectory(r.Context(), id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	if snap == nil {
		h.jsonError(w, "not cached", http.StatusNotFound)
		return
	}
	h.jsonOK(w, snap)
}
