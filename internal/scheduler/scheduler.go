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

// Package scheduler decides, tick by tick, when to start conditioning a
// zone so it reaches comfort at scheduled occupancy, and records how long
// each warm-up actually took.
package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/antst/optstart/internal/history"
	"github.com/antst/optstart/internal/logger"
	"github.com/antst/optstart/internal/predictor"
)

type State int

const (
	Idle State = iota
	Evaluating
	Running
	Completed
)

func (s State) String() string {
	switch s {
	case Evaluating:
		return "evaluating"
	case Running:
		return "running"
	case Completed:
		return "completed"
	}
	return "idle"
}

// Event is the next occupancy transition. Commands are never issued before
// Start-EarliestOffset. ExtraLead is added to the predicted lead time.
type Event struct {
	Start          time.Time
	EarliestOffset time.Duration
	ExtraLead      time.Duration
}

func (e Event) Earliest() time.Time {
	return e.Start.Add(-e.EarliestOffset)
}

type ScheduleSource interface {
	NextOccupancy(now time.Time) (Event, error)
}

type TemperatureFeed interface {
	Read(sensorID string) (float64, error)
}

type CommandOutput interface {
	StartEquipment(zoneID string, ts time.Time) error
	StopEquipment(zoneID string, ts time.Time) error
}

// ObservationSink persists completed warm-ups. Optional.
type ObservationSink interface {
	SaveObservation(zoneID string, o history.Observation) error
}

type Predictor interface {
	Predict(req predictor.Request, s predictor.Strategy) (predictor.Prediction, error)
}

// Recorder receives cycle telemetry. Optional.
type Recorder interface {
	LeadTime(zone string, minutes float64)
	EquipmentStarted(zone string)
	CycleCompleted(zone string, minutes float64)
	CycleAbandoned(zone string)
	Degraded(zone string)
}

type Config struct {
	ZoneID           string
	ZoneSensor       string
	OutdoorSensor    string
	OccupiedSetpoint float64
	Comfort          predictor.ComfortLimits
	Strategy         predictor.Strategy
	// MaxWarmup abandons a run that has not reached comfort; 0 disables.
	MaxWarmup time.Duration
}

type run struct {
	id        string
	startedAt time.Time
	outdoor   float64
	zone      float64
	cooling   bool
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State       State
	CycleStart  time.Time
	StartAt     time.Time
	LeadMinutes float64
	Degraded    bool
	RunningFor  time.Duration
}

// Scheduler is the start state machine for one zone. Tick is safe to call
// from one goroutine while others read Status.
type Scheduler struct {
	mu        sync.Mutex
	cfg       Config
	schedule  ScheduleSource
	feed      TemperatureFeed
	out       CommandOutput
	predictor Predictor
	store     *history.Store
	sink      ObservationSink
	rec       Recorder
	log       *zap.SugaredLogger

	state   State
	handled time.Time
	status  Status
	current *run
}

func New(
	cfg Config, schedule ScheduleSource, feed TemperatureFeed, out CommandOutput, p Predictor,
	store *history.Store,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		schedule:  schedule,
		feed:      feed,
		out:       out,
		predictor: p,
		store:     store,
		log:       logger.Named("scheduler").With("zone", cfg.ZoneID),
	}
}

func (s *Scheduler) WithSink(sink ObservationSink) *Scheduler {
	s.sink = sink
	return s
}

func (s *Scheduler) WithRecorder(rec Recorder) *Scheduler {
	s.rec = rec
	return s
}

func (s *Scheduler) SetStrategy(st predictor.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Strategy = st
}

func (s *Scheduler) Strategy() predictor.Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Strategy
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.State = s.state
	return st
}

// Run ticks every interval until ctx is cancelled. In-memory state is kept.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Tick advances the state machine and returns the resulting state.
func (s *Scheduler) Tick(now time.Time) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running:
		s.tickRunning(now)
	case Completed:
		s.state = Idle
		fallthrough
	default:
		s.tickWaiting(now)
	}
	return s.state
}

func (s *Scheduler) tickWaiting(now time.Time) {
	ev, err := s.schedule.NextOccupancy(now)
	if err != nil {
		s.log.Warnf("No next occupancy: %v", err)
		s.state = Idle
		return
	}
	s.status.CycleStart = ev.Start

	if ev.Start.Equal(s.handled) || now.Before(ev.Earliest()) {
		s.state = Idle
		return
	}
	s.state = Evaluating

	zone, zoneErr := s.feed.Read(s.cfg.ZoneSensor)
	outdoor := s.readOutdoor()

	startAt, lead, degraded := s.startTime(ev, zone, zoneErr, outdoor)
	s.status.StartAt, s.status.LeadMinutes, s.status.Degraded = startAt, lead, degraded

	if now.Before(startAt) {
		return
	}

	if zoneErr == nil && s.comfortable(zone) {
		s.handled = ev.Start
		s.state = Idle
		s.log.Infof("Zone at %.2f already within comfort, no start before %s", zone, ev.Start.Format(time.RFC3339))
		return
	}

	if err := s.out.StartEquipment(s.cfg.ZoneID, now); err != nil {
		s.log.Errorf("Start command failed, will retry: %v", err)
		return
	}
	s.handled = ev.Start
	s.state = Running
	if zoneErr != nil {
		zone = math.NaN()
	}
	s.current = &run{
		id:        uuid.New().String(),
		startedAt: now,
		outdoor:   outdoor,
		zone:      zone,
		cooling:   zone > s.cfg.Comfort.Upper,
	}
	s.log.Infof("Equipment started %.0f min before occupancy at %s (zone %.2f, outdoor %.2f)",
		ev.Start.Sub(now).Minutes(), ev.Start.Format(time.RFC3339), zone, outdoor)
	if s.rec != nil {
		s.rec.EquipmentStarted(s.cfg.ZoneID)
	}
}

// startTime returns when equipment should start for ev. A predictor that
// cannot give a lead time falls back to the earliest allowed time.
func (s *Scheduler) startTime(ev Event, zone float64, zoneErr error, outdoor float64) (time.Time, float64, bool) {
	earliest := ev.Earliest()
	fallback := func(reason interface{}) (time.Time, float64, bool) {
		s.log.Warnf("Degraded mode, starting at earliest allowed time %s: %v", earliest.Format(time.RFC3339), reason)
		if s.rec != nil {
			s.rec.Degraded(s.cfg.ZoneID)
		}
		return earliest, ev.EarliestOffset.Minutes(), true
	}

	if zoneErr != nil {
		return fallback(zoneErr)
	}
	pr, err := s.predictor.Predict(predictor.Request{
		OutdoorTemp:      outdoor,
		ZoneTemp:         zone,
		OccupiedSetpoint: s.cfg.OccupiedSetpoint,
	}, s.cfg.Strategy)
	if err != nil {
		return fallback(err)
	}
	if pr.Unit != predictor.UnitMinutes {
		return fallback(predictor.ErrNotLeadTime)
	}

	lead := pr.Value + ev.ExtraLead.Minutes()
	startAt := ev.Start.Add(-time.Duration(lead * float64(time.Minute)))
	if startAt.Before(earliest) {
		startAt = earliest
		lead = ev.EarliestOffset.Minutes()
	}
	s.log.Debugf("Lead time %.1f min (%s), start at %s", lead, pr.Strategy, startAt.Format(time.RFC3339))
	if s.rec != nil {
		s.rec.LeadTime(s.cfg.ZoneID, lead)
	}
	return startAt, lead, false
}

func (s *Scheduler) readOutdoor() float64 {
	v, err := s.feed.Read(s.cfg.OutdoorSensor)
	if err != nil {
		s.log.Warnf("Outdoor temperature unavailable: %v", err)
		return math.NaN()
	}
	return v
}

func (s *Scheduler) tickRunning(now time.Time) {
	r := s.current
	elapsed := now.Sub(r.startedAt)
	s.status.RunningFor = elapsed

	zone, err := s.feed.Read(s.cfg.ZoneSensor)
	if err == nil && s.reached(r, zone) {
		s.complete(r, now, elapsed)
		return
	}
	if err != nil {
		s.log.Warnf("Zone temperature unavailable while running: %v", err)
	}

	if s.cfg.MaxWarmup > 0 && elapsed > s.cfg.MaxWarmup {
		if err := s.out.StopEquipment(s.cfg.ZoneID, now); err != nil {
			s.log.Errorf("Stop command failed: %v", err)
		}
		s.log.Warnf("Warm-up abandoned after %.0f min without reaching comfort", elapsed.Minutes())
		if s.rec != nil {
			s.rec.CycleAbandoned(s.cfg.ZoneID)
		}
		s.current = nil
		s.state = Completed
	}
}

func (s *Scheduler) comfortable(zone float64) bool {
	return zone >= s.cfg.Comfort.Lower && zone <= s.cfg.Comfort.Upper
}

func (s *Scheduler) reached(r *run, zone float64) bool {
	if r.cooling {
		return zone <= s.cfg.Comfort.Upper
	}
	return zone >= s.cfg.Comfort.Lower
}

func (s *Scheduler) complete(r *run, now time.Time, elapsed time.Duration) {
	s.current = nil
	s.state = Completed

	o := history.Observation{
		OutdoorTemp:   r.outdoor,
		ZoneTemp:      r.zone,
		WarmupMinutes: elapsed.Minutes(),
		RecordedAt:    now,
		CycleID:       r.id,
	}
	s.log.Infof("Warm-up completed in %.1f min", o.WarmupMinutes)
	if s.rec != nil {
		s.rec.CycleCompleted(s.cfg.ZoneID, o.WarmupMinutes)
	}

	if err := s.store.Add(o); err != nil {
		s.log.Errorf("Observation not recorded: %v", err)
		return
	}
	if s.sink != nil {
		if err := s.sink.SaveObservation(s.cfg.ZoneID, o); err != nil {
			s.log.Errorf("Failed to persist observation: %v", err)
		}
	}
}
