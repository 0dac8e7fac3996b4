package mission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"skysurvey/pkg/bus"
	"skysurvey/pkg/fleet"
	"skysurvey/pkg/model"
	"skysurvey/pkg/store"
)

// Options tunes the supervisor's timing. The zero value gives production
// defaults: one-second ticks advancing one simulated second each.
type Options struct {
	TickInterval time.Duration // wall-clock tick period
	TickSeconds  float64       // simulated seconds per tick
	RetryBackoff time.Duration // telemetry retry backoff
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.TickSeconds <= 0 {
		o.TickSeconds = 1.0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	return o
}

// Supervisor owns the executor registry: one executor per running
// mission, started on demand and recovered at process start.
type Supervisor struct {
	store       store.Store
	bus         *bus.Bus
	selector    *fleet.Selector
	charger     *fleet.Charger
	coordinator *Coordinator
	logger      *slog.Logger

	interval     time.Duration
	dt           float64
	retryBackoff time.Duration

	baseCtx context.Context
	mu      sync.Mutex
	running map[string]*execHandle
	wg      sync.WaitGroup
}

// execHandle identifies one launched (or reserved) executor slot, so a
// finished executor can only release its own registry entry.
type execHandle struct {
	cancel context.CancelFunc
}

// NewSupervisor wires the mission runtime. baseCtx bounds every executor
// and child flight; cancel it to stop the whole runtime.
func NewSupervisor(baseCtx context.Context, st store.Store, b *bus.Bus,
	sel *fleet.Selector, ch *fleet.Charger, logger *slog.Logger, opts Options) *Supervisor {
	opts = opts.withDefaults()
	s := &Supervisor{
		store:        st,
		bus:          b,
		selector:     sel,
		charger:      ch,
		logger:       logger,
		interval:     opts.TickInterval,
		dt:           opts.TickSeconds,
		retryBackoff: opts.RetryBackoff,
		baseCtx:      baseCtx,
		running:      make(map[string]*execHandle),
	}
	s.coordinator = NewCoordinator(baseCtx, st, b, sel, ch, logger, opts.TickInterval)
	return s
}

// Start launches an executor for a draft or scheduled mission. The
// preparation phase runs synchronously so validation and assignment
// errors reach the caller.
func (s *Supervisor) Start(ctx context.Context, missionID string) error {
	runCtx, h, err := s.reserve(missionID)
	if err != nil {
		return err
	}

	e := newExecutor(missionID, s)
	if err := e.prepare(ctx); err != nil {
		s.release(missionID, h)
		return err
	}
	s.launch(missionID, e, runCtx, h)
	return nil
}

// Recover restarts executors for missions that were in_progress when the
// process stopped. Paused missions get an executor too; it idles until
// resumed.
func (s *Supervisor) Recover(ctx context.Context) error {
	var recovered int
	for _, status := range []model.MissionStatus{model.MissionInProgress, model.MissionPaused} {
		missions, err := s.store.QueryMissions(ctx, store.MissionFilter{Status: status})
		if err != nil {
			return fmt.Errorf("query %s missions: %w", status, err)
		}
		for _, m := range missions {
			runCtx, h, err := s.reserve(m.MissionID)
			if err != nil {
				continue
			}
			e := newExecutor(m.MissionID, s)
			if err := e.prepareResume(ctx); err != nil {
				s.logger.Error("mission recovery failed", "mission", m.MissionID, "error", err)
				s.release(m.MissionID, h)
				continue
			}
			s.launch(m.MissionID, e, runCtx, h)
			recovered++
		}
	}
	if recovered > 0 {
		s.logger.Info("recovered running missions", "count", recovered)
	}
	return nil
}

// reserve claims the executor slot for a mission. The slot is taken
// before the preparation round-trips run, so two concurrent Start calls
// cannot both reach launch.
func (s *Supervisor) reserve(missionID string) (context.Context, *execHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[missionID]; ok {
		return nil, nil, fmt.Errorf("mission %s already has an executor: %w", missionID, ErrIllegalState)
	}
	runCtx, cancel := context.WithCancel(s.baseCtx)
	h := &execHandle{cancel: cancel}
	s.running[missionID] = h
	return runCtx, h, nil
}

// release frees a reserved slot, but only while it still belongs to h.
func (s *Supervisor) release(missionID string, h *execHandle) {
	s.mu.Lock()
	if s.running[missionID] == h {
		delete(s.running, missionID)
	}
	s.mu.Unlock()
	h.cancel()
}

func (s *Supervisor) launch(missionID string, e *Executor, runCtx context.Context, h *execHandle) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(missionID, h)
		e.run(runCtx)
	}()
}

// Running reports whether a mission currently has an executor.
func (s *Supervisor) Running(missionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[missionID]
	return ok
}

// StopAll cancels every executor and waits for them and all child
// flights to exit.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	for _, h := range s.running {
		h.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.coordinator.Wait()
}

// Coordinator exposes the handoff coordinator, mainly for the service's
// operator-abort path.
func (s *Supervisor) Coordinator() *Coordinator { return s.coordinator }
