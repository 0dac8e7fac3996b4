package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"skysurvey/pkg/model"
	"skysurvey/pkg/store"
)

// FleetHandler exposes drone and base registration and listing.
type FleetHandler struct {
	store store.Store
}

// NewFleetHandler creates a fleet handler.
func NewFleetHandler(st store.Store) *FleetHandler {
	return &FleetHandler{store: st}
}

// HandleRegisterDrone handles POST /api/drones. New drones start available
// with a full battery unless the request says otherwise; a drone posted
// with a base id but no location is placed at that base.
func (h *FleetHandler) HandleRegisterDrone(w http.ResponseWriter, r *http.Request) {
	var d model.Drone
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if d.Name == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "drone name required"})
		return
	}

	if d.DroneID == "" {
		d.DroneID = model.NewDroneID()
	}
	if d.Status == "" {
		d.Status = model.DroneAvailable
	}
	if d.BatteryLevel == 0 {
		d.BatteryLevel = 100
	}
	if d.MaxSpeed == 0 {
		d.MaxSpeed = 15
	}

	if d.BaseID != "" {
		base, err := h.store.GetBase(r.Context(), d.BaseID)
		if err != nil {
			writeError(w, err)
			return
		}
		if d.HomeBase == (model.Position{}) {
			d.HomeBase = base.Location
		}
		if d.Location == (model.Position{}) {
			d.Location = base.Location
		}
	}

	if err := h.store.SaveDrone(r.Context(), &d); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("drone registered", "drone", d.DroneID, "name", d.Name, "base", d.BaseID)
	respondJSON(w, http.StatusCreated, &d)
}

// HandleListDrones handles GET /api/drones.
func (h *FleetHandler) HandleListDrones(w http.ResponseWriter, r *http.Request) {
	drones, err := h.store.QueryDrones(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if drones == nil {
		drones = []*model.Drone{}
	}
	respondJSON(w, http.StatusOK, drones)
}

// HandleGetDrone handles GET /api/drones/{id}.
func (h *FleetHandler) HandleGetDrone(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.GetDrone(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// HandleRegisterBase handles POST /api/bases.
func (h *FleetHandler) HandleRegisterBase(w http.ResponseWriter, r *http.Request) {
	var b model.Base
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if b.Name == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "base name required"})
		return
	}

	if b.BaseID == "" {
		b.BaseID = model.NewBaseID()
	}
	if b.Status == "" {
		b.Status = model.BaseActive
	}
	if b.MaxDrones == 0 {
		b.MaxDrones = 10
	}
	if b.OperationalRadiusKm == 0 {
		b.OperationalRadiusKm = 50
	}

	if err := h.store.SaveBase(r.Context(), &b); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("base registered", "base", b.BaseID, "name", b.Name)
	respondJSON(w, http.StatusCreated, &b)
}

// HandleListBases handles GET /api/bases. ?active=true narrows to active
// bases only.
func (h *FleetHandler) HandleListBases(w http.ResponseWriter, r *http.Request) {
	var bases []*model.Base
	var err error
	if r.URL.Query().Get("active") == "true" {
		bases, err = h.store.QueryActiveBases(r.Context())
	} else {
		bases, err = h.store.QueryBases(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if bases == nil {
		bases = []*model.Base{}
	}
	respondJSON(w, http.StatusOK, bases)
}

// HandleGetBase handles GET /api/bases/{id}.
func (h *FleetHandler) HandleGetBase(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.GetBase(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}
