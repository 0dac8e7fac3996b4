package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skysurvey/pkg/model"
)

func telemetry(missionID string, i int) Event {
	return TelemetryEvent(&model.TelemetryPoint{
		MissionID: missionID,
		Timestamp: time.Date(2026, 3, 1, 10, 0, i, 0, time.UTC),
		Battery:   100 - float64(i),
	})
}

func TestPublishSubscribe(t *testing.T) {
	b := New(8)
	sub := b.Subscribe("MSN-A")
	defer sub.Cancel()

	b.Publish(telemetry("MSN-A", 0))
	b.Publish(PhaseChangeEvent("MSN-A", model.PhaseTraveling, model.PhaseSurveying, time.Now()))

	ev := <-sub.Events()
	assert.Equal(t, KindTelemetry, ev.Kind)
	require.NotNil(t, ev.Telemetry)
	assert.Equal(t, 100.0, ev.Telemetry.Battery)

	ev = <-sub.Events()
	assert.Equal(t, KindPhaseChange, ev.Kind)
	require.NotNil(t, ev.PhaseChange)
	assert.Equal(t, model.PhaseSurveying, ev.PhaseChange.NewPhase)
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New(8)
	subA := b.Subscribe("MSN-A")
	subB := b.Subscribe("MSN-B")
	defer subA.Cancel()
	defer subB.Cancel()

	b.Publish(telemetry("MSN-A", 0))

	ev := <-subA.Events()
	assert.Equal(t, "MSN-A", ev.MissionID)
	select {
	case ev := <-subB.Events():
		t.Fatalf("unexpected event on MSN-B topic: %v", ev.Kind)
	default:
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	b := New(1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(telemetry("MSN-NOSUB", i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestSlowSubscriberDropsNewest(t *testing.T) {
	b := New(2)
	sub := b.Subscribe("MSN-A")
	defer sub.Cancel()

	for i := 0; i < 5; i++ {
		b.Publish(telemetry("MSN-A", i))
	}

	// Buffer holds the two oldest events; the rest were dropped.
	assert.Equal(t, int64(3), sub.Dropped())
	ev := <-sub.Events()
	assert.Equal(t, 100.0, ev.Telemetry.Battery)
	ev = <-sub.Events()
	assert.Equal(t, 99.0, ev.Telemetry.Battery)
}

func TestCancelClosesChannel(t *testing.T) {
	b := New(8)
	sub := b.Subscribe("MSN-A")
	sub.Cancel()
	sub.Cancel() // idempotent

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Publishing after cancel must not panic.
	b.Publish(telemetry("MSN-A", 0))
}

func TestCloseTopic(t *testing.T) {
	b := New(8)
	sub1 := b.Subscribe("MSN-A")
	sub2 := b.Subscribe("MSN-A")

	b.Publish(telemetry("MSN-A", 0))
	b.CloseTopic("MSN-A")

	// Buffered event still readable, then closed.
	ev, ok := <-sub1.Events()
	require.True(t, ok)
	assert.Equal(t, KindTelemetry, ev.Kind)
	_, ok = <-sub1.Events()
	assert.False(t, ok)

	<-sub2.Events()
	_, ok = <-sub2.Events()
	assert.False(t, ok)

	// Cancel after CloseTopic is a no-op.
	sub1.Cancel()
}
