package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"deliverydash/engine"
)

func (h *Handlers) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	user, err := h.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.engineError(w, err)
		return
	}

	if err := h.startSession(w, r, user); err != nil {
		h.jsonError(w, "session error", http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, user)
}

func (h *Handlers) apiLogout(w http.ResponseWriter, r *http.Request) {
	if h.isAuthenticated(r) {
		h.engine.Logout()
	}
	h.endSession(w, r)
	h.jsonOK(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, map[string]any{
		"status":      "ok",
		"engine":      h.engine.Health(),
		"sse_clients": h.eventHub.ClientCount(),
	})
}

func (h *Handlers) apiState(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.State())
}

func (h *Handlers) apiListRobots(w http.ResponseWriter, r *http.Request) {
	robots, err := h.engine.Robots(r.Context())
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, robots)
}

func (h *Handlers) apiSelectRobot(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		h.jsonError(w, "invalid robot id", http.StatusBadRequest)
		return
	}
	robot, err := h.engine.SelectRobot(r.Context(), id)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, robot)
}

func (h *Handlers) apiDeselectRobot(w http.ResponseWriter, r *http.Request) {
	h.engine.DeselectRobot()
	h.jsonOK(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetX *float64 `json:"target_x"`
		TargetY *float64 `json:"target_y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetX == nil || req.TargetY == nil {
		h.jsonError(w, "target_x and target_y are required", http.StatusBadRequest)
		return
	}
	dr, err := h.engine.SubmitRequest(r.Context(), *req.TargetX, *req.TargetY)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonCreated(w, dr)
}

func (h *Handlers) apiAcceptRequest(w http.ResponseWriter, r *http.Request) {
	dr, err := h.engine.AcceptRequest(r.Context())
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, dr)
}

func (h *Handlers) apiRejectRequest(w http.ResponseWriter, r *http.Request) {
	dr, err := h.engine.RejectRequest(r.Context())
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, dr)
}

func (h *Handlers) apiRequestHistory(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.engine.UserRequests(r.Context())
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, reqs)
}

func (h *Handlers) apiRetryTrajectory(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RetryTrajectory(); err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, h.engine.Acquisition())
}

func (h *Handlers) apiExportTrajectory(w http.ResponseWriter, r *http.Request) {
	id, data, err := h.engine.ExportTrajectory()
	if err != nil {
		h.engineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=trajectory_%d.txt", id))
	w.Write([]byte(data))
}

func (h *Handlers) apiAcquisitionLog(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(r.URL.Query().Get("request_id"), 10, 64)
	if err != nil {
		snap := h.engine.Acquisition()
		if snap.RequestID == 0 {
			h.engineError(w, engine.ErrNoRequest)
			return
		}
		requestID = snap.RequestID
	}
	entries, err := h.engine.DB().ListAcquisitionLog(requestID)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, entries)
}

func (h *Handlers) apiOperatorActions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	actions, err := h.engine.DB().ListOperatorActions(limit)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.jsonOK(w, actions)
}
