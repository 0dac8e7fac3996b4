// Package api is the HTTP and WebSocket surface of the survey server.
// Handlers are thin: decode, delegate to the domain services, map error
// kinds to status codes.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"skysurvey/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, missions *MissionHandler, fleetH *FleetHandler, stream *StreamHandler, shutdown func()) *http.Server {
	mux := NewMux(missions, fleetH, stream, shutdown)

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux registers all routes. Split from NewServer so tests can mount
// the mux on httptest servers.
func NewMux(missions *MissionHandler, fleetH *FleetHandler, stream *StreamHandler, shutdown func()) *http.ServeMux {
	mux := http.NewServeMux()

	// 1. Health + Version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Mission CRUD
	mux.HandleFunc("POST /api/missions", missions.HandleCreate)
	mux.HandleFunc("GET /api/missions", missions.HandleList)
	mux.HandleFunc("GET /api/missions/{id}", missions.HandleGet)
	mux.HandleFunc("PUT /api/missions/{id}", missions.HandleUpdate)
	mux.HandleFunc("DELETE /api/missions/{id}", missions.HandleDelete)

	// 3. Mission control
	mux.HandleFunc("POST /api/missions/{id}/generate-path", missions.HandleGeneratePath)
	mux.HandleFunc("POST /api/missions/{id}/start", missions.HandleStart)
	mux.HandleFunc("POST /api/missions/{id}/pause", missions.HandlePause)
	mux.HandleFunc("POST /api/missions/{id}/resume", missions.HandleResume)
	mux.HandleFunc("POST /api/missions/{id}/abort", missions.HandleAbort)

	// 4. Mission history
	mux.HandleFunc("GET /api/missions/{id}/telemetry", missions.HandleTelemetry)
	mux.HandleFunc("GET /api/missions/{id}/handoffs", missions.HandleHandoffs)

	// 5. Live event stream
	if stream != nil {
		mux.HandleFunc("GET /api/missions/{id}/stream", stream.HandleStream)
	}

	// 6. Fleet
	mux.HandleFunc("POST /api/drones", fleetH.HandleRegisterDrone)
	mux.HandleFunc("GET /api/drones", fleetH.HandleListDrones)
	mux.HandleFunc("GET /api/drones/{id}", fleetH.HandleGetDrone)
	mux.HandleFunc("POST /api/bases", fleetH.HandleRegisterBase)
	mux.HandleFunc("GET /api/bases", fleetH.HandleListBases)
	mux.HandleFunc("GET /api/bases/{id}", fleetH.HandleGetBase)

	// 7. Shutdown Endpoint
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Call shutdown in a goroutine to allow response to flush
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
