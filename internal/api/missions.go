package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"skysurvey/pkg/mission"
	"skysurvey/pkg/model"
	"skysurvey/pkg/store"
)

// MissionHandler exposes mission CRUD and control endpoints.
type MissionHandler struct {
	svc *mission.Service
}

// NewMissionHandler creates a mission handler.
func NewMissionHandler(svc *mission.Service) *MissionHandler {
	return &MissionHandler{svc: svc}
}

// HandleCreate handles POST /api/missions.
func (h *MissionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var m model.Mission
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}

	created, err := h.svc.CreateMission(r.Context(), &m)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// HandleList handles GET /api/missions. Optional query params: status,
// site, drone.
func (h *MissionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	f := store.MissionFilter{
		Status:   model.MissionStatus(r.URL.Query().Get("status")),
		SiteName: r.URL.Query().Get("site"),
		DroneID:  r.URL.Query().Get("drone"),
	}
	missions, err := h.svc.ListMissions(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if missions == nil {
		missions = []*model.Mission{}
	}
	respondJSON(w, http.StatusOK, missions)
}

// HandleGet handles GET /api/missions/{id}.
func (h *MissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// HandleUpdate handles PUT /api/missions/{id}.
func (h *MissionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var m model.Mission
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	m.MissionID = r.PathValue("id")

	updated, err := h.svc.UpdateMission(r.Context(), &m)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /api/missions/{id}.
func (h *MissionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteMission(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGeneratePath handles POST /api/missions/{id}/generate-path.
func (h *MissionHandler) HandleGeneratePath(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GeneratePath(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// HandleStart handles POST /api/missions/{id}/start.
func (h *MissionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.StartMission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// HandlePause handles POST /api/missions/{id}/pause.
func (h *MissionHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.PauseMission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// HandleResume handles POST /api/missions/{id}/resume.
func (h *MissionHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.ResumeMission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// HandleAbort handles POST /api/missions/{id}/abort. Body: {"reason": "..."},
// optional.
func (h *MissionHandler) HandleAbort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// An empty body is fine; the service fills in a default reason.
	_ = json.NewDecoder(r.Body).Decode(&req)

	m, err := h.svc.AbortMission(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// HandleTelemetry handles GET /api/missions/{id}/telemetry?limit=N.
func (h *MissionHandler) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			limit = v
		}
	}

	points, err := h.svc.QueryTelemetry(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if points == nil {
		points = []*model.TelemetryPoint{}
	}
	respondJSON(w, http.StatusOK, points)
}

// HandleHandoffs handles GET /api/missions/{id}/handoffs.
func (h *MissionHandler) HandleHandoffs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.QueryHandoffHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*model.HandoffLog{}
	}
	respondJSON(w, http.StatusOK, entries)
}
