/*
 * Copyright (c) 2023. Anton Starikov -- All Rights Reserved
 *
 * This file is part of OPTSTART project.
 *
 * OPTSTART is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/antst/optstart/internal/history"
	"github.com/antst/optstart/internal/logger"
	"github.com/antst/optstart/internal/predictor"
)

const (
	zoneSensor    = "zone/office/temp"
	outdoorSensor = "outdoor/temp"
)

var occupancy = time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC)

type fakeSchedule struct {
	start  time.Time
	offset time.Duration
	extra  time.Duration
	err    error
}

func (f *fakeSchedule) NextOccupancy(now time.Time) (Event, error) {
	if f.err != nil {
		return Event{}, f.err
	}
	s := f.start
	for !now.Before(s) {
		s = s.Add(24 * time.Hour)
	}
	return Event{Start: s, EarliestOffset: f.offset, ExtraLead: f.extra}, nil
}

type fakeFeed struct {
	values map[string]float64
	errs   map[string]error
}

func (f *fakeFeed) Read(id string) (float64, error) {
	if err := f.errs[id]; err != nil {
		return 0, err
	}
	v, ok := f.values[id]
	if !ok {
		return 0, errors.Errorf("no reading for %s", id)
	}
	return v, nil
}

type fakeOutput struct {
	starts   []time.Time
	stops    []time.Time
	startErr error
}

func (f *fakeOutput) StartEquipment(_ string, ts time.Time) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, ts)
	return nil
}

func (f *fakeOutput) StopEquipment(_ string, ts time.Time) error {
	f.stops = append(f.stops, ts)
	return nil
}

type fakePredictor struct {
	pr    predictor.Prediction
	err   error
	calls int
}

func (f *fakePredictor) Predict(_ predictor.Request, s predictor.Strategy) (predictor.Prediction, error) {
	f.calls++
	pr := f.pr
	pr.Strategy = s
	return pr, f.err
}

type fakeSink struct {
	saved []history.Observation
}

func (f *fakeSink) SaveObservation(_ string, o history.Observation) error {
	f.saved = append(f.saved, o)
	return nil
}

type fixture struct {
	schedule  *fakeSchedule
	feed      *fakeFeed
	out       *fakeOutput
	predictor *fakePredictor
	store     *history.Store
	sink      *fakeSink
	s         *Scheduler
}

func newFixture(leadMinutes float64) *fixture {
	f := &fixture{
		schedule: &fakeSchedule{start: occupancy, offset: 180 * time.Minute},
		feed: &fakeFeed{
			values: map[string]float64{zoneSensor: 60, outdoorSensor: 20},
			errs:   map[string]error{},
		},
		out:       &fakeOutput{},
		predictor: &fakePredictor{pr: predictor.Prediction{Value: leadMinutes, Unit: predictor.UnitMinutes}},
		store:     history.NewStore(10),
		sink:      &fakeSink{},
	}
	f.s = New(Config{
		ZoneID:           "office",
		ZoneSensor:       zoneSensor,
		OutdoorSensor:    outdoorSensor,
		OccupiedSetpoint: 70,
		Comfort:          predictor.ComfortLimits{Lower: 68, Upper: 77},
		Strategy:         predictor.StrategyPhysicalModel,
		MaxWarmup:        240 * time.Minute,
	}, f.schedule, f.feed, f.out, f.predictor, f.store).WithSink(f.sink)
	return f
}

func at(minutesBefore float64) time.Time {
	return occupancy.Add(-time.Duration(minutesBefore * float64(time.Minute)))
}

func TestTick_IdleBeforeEarliest(t *testing.T) {
	f := newFixture(60)
	assert.Equal(t, Idle, f.s.Tick(at(181)))
	assert.Zero(t, f.predictor.calls)
	assert.Empty(t, f.out.starts)
}

func TestTick_StartsAtLeadTime(t *testing.T) {
	f := newFixture(60)

	assert.Equal(t, Evaluating, f.s.Tick(at(180)))
	assert.Equal(t, Evaluating, f.s.Tick(at(61)))
	assert.Empty(t, f.out.starts)

	assert.Equal(t, Running, f.s.Tick(at(60)))
	require.Len(t, f.out.starts, 1)
	assert.Equal(t, at(60), f.out.starts[0])

	st := f.s.Status()
	assert.Equal(t, Running, st.State)
	assert.Equal(t, occupancy, st.CycleStart)
	assert.Equal(t, 60.0, st.LeadMinutes)
	assert.False(t, st.Degraded)
}

func TestTick_StartIssuedOncePerCycle(t *testing.T) {
	f := newFixture(60)
	for now := at(70); now.Before(at(10)); now = now.Add(time.Second) {
		f.s.Tick(now)
	}
	assert.Len(t, f.out.starts, 1)
	assert.Equal(t, Running, f.s.State())
}

func TestTick_CompletionRecordsObservation(t *testing.T) {
	f := newFixture(60)
	f.s.Tick(at(60))
	require.Equal(t, Running, f.s.State())

	f.feed.values[zoneSensor] = 67.9
	assert.Equal(t, Running, f.s.Tick(at(40)))

	f.feed.values[zoneSensor] = 68
	assert.Equal(t, Completed, f.s.Tick(at(15)))

	all := f.store.All()
	require.Len(t, all, 1)
	o := all[0]
	assert.Equal(t, 20.0, o.OutdoorTemp)
	assert.Equal(t, 60.0, o.ZoneTemp)
	assert.InDelta(t, 45.0, o.WarmupMinutes, 1e-9)
	assert.Equal(t, at(15), o.RecordedAt)
	assert.NotEmpty(t, o.CycleID)
	assert.Equal(t, all, f.sink.saved)

	// the handled cycle is not restarted before occupancy
	assert.Equal(t, Idle, f.s.Tick(at(10)))
	assert.Equal(t, Idle, f.s.Tick(at(1)))
	assert.Len(t, f.out.starts, 1)
}

func TestTick_NextCycleAfterCompletion(t *testing.T) {
	f := newFixture(60)
	f.s.Tick(at(60))
	f.feed.values[zoneSensor] = 70
	f.s.Tick(at(50))
	require.Equal(t, Completed, f.s.State())

	f.feed.values[zoneSensor] = 60
	next := occupancy.Add(24 * time.Hour)
	assert.Equal(t, Idle, f.s.Tick(occupancy.Add(time.Minute)))
	assert.Equal(t, Running, f.s.Tick(next.Add(-60*time.Minute)))
	assert.Len(t, f.out.starts, 2)
}

func TestTick_CoolingCompletesBelowUpper(t *testing.T) {
	f := newFixture(30)
	f.feed.values[zoneSensor] = 82
	f.s.Tick(at(30))
	require.Equal(t, Running, f.s.State())

	f.feed.values[zoneSensor] = 77.5
	assert.Equal(t, Running, f.s.Tick(at(20)))
	f.feed.values[zoneSensor] = 77
	assert.Equal(t, Completed, f.s.Tick(at(10)))
	require.Equal(t, 1, f.store.Len())
	assert.Equal(t, 82.0, f.store.All()[0].ZoneTemp)
}

func TestTick_NoStartWithinComfort(t *testing.T) {
	f := newFixture(30)
	f.feed.values[zoneSensor] = 72

	assert.Equal(t, Evaluating, f.s.Tick(at(31)))
	assert.Equal(t, Idle, f.s.Tick(at(30)))
	assert.Equal(t, Idle, f.s.Tick(at(29)))
	assert.Empty(t, f.out.starts)
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.sink.saved)

	// a cooler zone later in the same cycle does not start it again
	f.feed.values[zoneSensor] = 60
	assert.Equal(t, Idle, f.s.Tick(at(20)))
	assert.Empty(t, f.out.starts)

	next := occupancy.Add(24 * time.Hour)
	assert.Equal(t, Running, f.s.Tick(next.Add(-30*time.Minute)))
	assert.Len(t, f.out.starts, 1)
}

func TestTick_DegradedFallsBackToEarliest(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	f := newFixture(60)
	f.predictor.err = predictor.ErrUnknownStrategy

	assert.Equal(t, Running, f.s.Tick(at(180)))
	require.Len(t, f.out.starts, 1)
	assert.Equal(t, at(180), f.out.starts[0])
	assert.True(t, f.s.Status().Degraded)
	assert.Equal(t, 1, logs.FilterMessageSnippet("Degraded mode").Len())
}

func TestTick_SetpointPredictionIsDegraded(t *testing.T) {
	f := newFixture(60)
	f.predictor.pr = predictor.Prediction{Value: 62, Unit: predictor.UnitSetpoint}
	assert.Equal(t, Running, f.s.Tick(at(170)))
	assert.True(t, f.s.Status().Degraded)
}

func TestTick_MissingZoneReadingIsDegraded(t *testing.T) {
	f := newFixture(60)
	f.feed.errs[zoneSensor] = errors.New("stale")

	assert.Equal(t, Running, f.s.Tick(at(175)))
	assert.Zero(t, f.predictor.calls)

	delete(f.feed.errs, zoneSensor)
	f.feed.values[zoneSensor] = 69
	assert.Equal(t, Completed, f.s.Tick(at(100)))
	assert.Zero(t, f.store.Len(), "start conditions unknown, nothing to learn from")
	assert.Empty(t, f.sink.saved)
}

func TestTick_ExtraLeadAfterIdle(t *testing.T) {
	f := newFixture(60)
	f.schedule.extra = 30 * time.Minute

	assert.Equal(t, Evaluating, f.s.Tick(at(91)))
	assert.Equal(t, Running, f.s.Tick(at(90)))
}

func TestTick_NeverStartsBeforeEarliest(t *testing.T) {
	f := newFixture(180)
	f.schedule.extra = 30 * time.Minute

	assert.Equal(t, Idle, f.s.Tick(at(200)))
	assert.Equal(t, Running, f.s.Tick(at(180)))
	assert.Equal(t, 180.0, f.s.Status().LeadMinutes)
}

func TestTick_AbandonsLongWarmup(t *testing.T) {
	f := newFixture(120)
	f.s.cfg.MaxWarmup = 60 * time.Minute

	f.s.Tick(at(120))
	assert.Equal(t, Running, f.s.Tick(at(60)))
	assert.Empty(t, f.out.stops)

	assert.Equal(t, Completed, f.s.Tick(at(59)))
	require.Len(t, f.out.stops, 1)
	assert.Zero(t, f.store.Len())
}

func TestTick_RetriesFailedStart(t *testing.T) {
	f := newFixture(60)
	f.out.startErr = errors.New("broker down")

	assert.Equal(t, Evaluating, f.s.Tick(at(60)))
	assert.Empty(t, f.out.starts)

	f.out.startErr = nil
	assert.Equal(t, Running, f.s.Tick(at(59)))
	assert.Len(t, f.out.starts, 1)
}

func TestTick_ScheduleErrorStaysIdle(t *testing.T) {
	f := newFixture(60)
	f.schedule.err = errors.New("no rule")
	assert.Equal(t, Idle, f.s.Tick(at(60)))
	assert.Empty(t, f.out.starts)
}

func TestTick_OutdoorMissingStillPredicts(t *testing.T) {
	f := newFixture(60)
	delete(f.feed.values, outdoorSensor)
	assert.Equal(t, Running, f.s.Tick(at(60)))
	assert.Equal(t, 1, f.predictor.calls)
}

func TestSetStrategy(t *testing.T) {
	f := newFixture(60)
	f.s.SetStrategy(predictor.StrategyNearestNeighbor)
	assert.Equal(t, predictor.StrategyNearestNeighbor, f.s.Strategy())
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(60)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.s.Run(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
