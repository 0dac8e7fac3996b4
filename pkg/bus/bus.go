// Package bus provides per-mission fan-out of mission events. Publishing
// is fire-and-forget: a slow subscriber never blocks the publisher, it
// just loses events once its buffer fills.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"skysurvey/pkg/model"
)

// EventKind tags the concrete payload carried by an Event.
type EventKind string

const (
	KindTelemetry             EventKind = "telemetry"
	KindPhaseChange           EventKind = "phaseChange"
	KindReplacementDispatched EventKind = "replacementDispatched"
	KindHandoffComplete       EventKind = "handoffComplete"
	KindMissionAborted        EventKind = "missionAborted"
	KindMissionComplete       EventKind = "missionComplete"
)

// Event is a tagged union: exactly one payload field matching Kind is set.
type Event struct {
	Kind      EventKind `json:"kind"`
	MissionID string    `json:"missionId"`
	Timestamp time.Time `json:"ts"`

	Telemetry             *model.TelemetryPoint  `json:"telemetry,omitempty"`
	PhaseChange           *PhaseChange           `json:"phaseChange,omitempty"`
	ReplacementDispatched *ReplacementDispatched `json:"replacementDispatched,omitempty"`
	HandoffComplete       *HandoffComplete       `json:"handoffComplete,omitempty"`
	MissionAborted        *MissionAborted        `json:"missionAborted,omitempty"`
}

// PhaseChange announces a flight phase transition.
type PhaseChange struct {
	OldPhase model.MissionPhase `json:"oldPhase"`
	NewPhase model.MissionPhase `json:"newPhase"`
}

// ReplacementDispatched announces a replacement drone launching toward a
// low-battery mission drone.
type ReplacementDispatched struct {
	OutgoingDroneID string  `json:"outgoingDroneId"`
	OutgoingBattery float64 `json:"outgoingBattery"`
	IncomingDroneID string  `json:"incomingDroneId"`
	IncomingBattery float64 `json:"incomingBattery"`
	WaypointIndex   int     `json:"waypointIndex"`
	BaseID          string  `json:"baseId,omitempty"`
}

// HandoffComplete announces ownership transfer at the rendezvous point.
type HandoffComplete struct {
	OutgoingDroneID string `json:"outgoingDroneId"`
	IncomingDroneID string `json:"incomingDroneId"`
	WaypointIndex   int    `json:"waypointIndex"`
}

// MissionAborted announces a terminal abort.
type MissionAborted struct {
	DroneID string  `json:"droneId"`
	Battery float64 `json:"battery"`
	Reason  string  `json:"reason"`
}

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 64

// Subscription is one subscriber's view of a mission topic.
type Subscription struct {
	ch      chan Event
	topic   *topic
	dropped int64
	once    sync.Once
}

// Events is the receive channel. It is closed when the subscription is
// cancelled.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped reports how many events were discarded because the buffer was
// full.
func (s *Subscription) Dropped() int64 {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	return s.dropped
}

// Cancel removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.topic.remove(s) })
}

type topic struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func (t *topic) remove(s *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[s]; ok {
		delete(t.subs, s)
		close(s.ch)
	}
}

// Bus routes events to subscribers of per-mission topics.
type Bus struct {
	mu      sync.Mutex
	topics  map[string]*topic
	bufSize int
}

// New creates a bus with the given per-subscriber buffer size. Sizes
// below 1 fall back to DefaultBufferSize.
func New(bufSize int) *Bus {
	if bufSize < 1 {
		bufSize = DefaultBufferSize
	}
	return &Bus{
		topics:  make(map[string]*topic),
		bufSize: bufSize,
	}
}

// Subscribe registers a subscriber on a mission's topic.
func (b *Bus) Subscribe(missionID string) *Subscription {
	b.mu.Lock()
	t, ok := b.topics[missionID]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		b.topics[missionID] = t
	}
	b.mu.Unlock()

	s := &Subscription{ch: make(chan Event, b.bufSize), topic: t}
	t.mu.Lock()
	t.subs[s] = struct{}{}
	t.mu.Unlock()
	return s
}

// Publish delivers an event to every subscriber of its mission topic
// without blocking. Events to full subscribers are dropped and counted.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	t, ok := b.topics[ev.MissionID]
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped++
			if s.dropped == 1 || s.dropped%100 == 0 {
				slog.Warn("bus: subscriber lagging, dropping events",
					"mission", ev.MissionID, "dropped", s.dropped)
			}
		}
	}
}

// CloseTopic cancels every subscription on a mission's topic. Called when
// the mission reaches a terminal state and no further events will come.
func (b *Bus) CloseTopic(missionID string) {
	b.mu.Lock()
	t, ok := b.topics[missionID]
	if ok {
		delete(b.topics, missionID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.subs {
		delete(t.subs, s)
		close(s.ch)
	}
}

// --- event constructors ---

func TelemetryEvent(p *model.TelemetryPoint) Event {
	return Event{Kind: KindTelemetry, MissionID: p.MissionID, Timestamp: p.Timestamp, Telemetry: p}
}

func PhaseChangeEvent(missionID string, from, to model.MissionPhase, ts time.Time) Event {
	return Event{Kind: KindPhaseChange, MissionID: missionID, Timestamp: ts,
		PhaseChange: &PhaseChange{OldPhase: from, NewPhase: to}}
}

func ReplacementDispatchedEvent(missionID string, d ReplacementDispatched, ts time.Time) Event {
	return Event{Kind: KindReplacementDispatched, MissionID: missionID, Timestamp: ts,
		ReplacementDispatched: &d}
}

func HandoffCompleteEvent(missionID string, h HandoffComplete, ts time.Time) Event {
	return Event{Kind: KindHandoffComplete, MissionID: missionID, Timestamp: ts,
		HandoffComplete: &h}
}

func MissionAbortedEvent(missionID string, a MissionAborted, ts time.Time) Event {
	return Event{Kind: KindMissionAborted, MissionID: missionID, Timestamp: ts,
		MissionAborted: &a}
}

func MissionCompleteEvent(missionID string, ts time.Time) Event {
	return Event{Kind: KindMissionComplete, MissionID: missionID, Timestamp: ts}
}
