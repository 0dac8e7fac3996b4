package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"skysurvey/pkg/bus"
	"skysurvey/pkg/model"
)

func TestStreamForwardsEvents(t *testing.T) {
	mux, _, b := newTestMux(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var created model.Mission
	w := doJSON(t, mux, "POST", "/api/missions", missionPayload("stream target"), &created)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got %d", w.Code)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/missions/" + created.MissionID + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	// The subscription is live once the handshake completed, but the
	// handler registers it after Upgrade returns; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	var ev bus.Event
	for {
		b.Publish(bus.TelemetryEvent(&model.TelemetryPoint{
			MissionID: created.MissionID,
			DroneID:   "DRN-1",
			Timestamp: time.Now().UTC(),
			Battery:   88,
			Phase:     model.PhaseSurveying,
		}))

		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if err := conn.ReadJSON(&ev); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no event received over websocket")
		}
	}

	if ev.Kind != bus.KindTelemetry || ev.Telemetry == nil || ev.Telemetry.Battery != 88 {
		t.Fatalf("unexpected event %+v", ev)
	}

	// Closing the topic ends the stream with a normal close.
	b.CloseTopic(created.MissionID)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Logf("stream ended with %v", err)
			}
			return
		}
	}
}

func TestStreamUnknownMission(t *testing.T) {
	mux, _, _ := newTestMux(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/missions/MSN-NOPE/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil) //nolint:bodyclose // handshake failure
	if err == nil {
		t.Fatal("expected handshake failure for unknown mission")
	}
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("got %d, want 404", resp.StatusCode)
		}
	}
}
