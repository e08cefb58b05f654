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

// Package predictor turns current conditions into a lead time: minutes
// before scheduled occupancy at which equipment should start.
package predictor

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/antst/optstart/internal/logger"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrNotLeadTime     = errors.New("strategy does not produce a lead time")
)

type Strategy string

const (
	StrategyPhysicalModel      Strategy = "physical_model"
	StrategyNearestNeighbor    Strategy = "nearest_neighbor"
	StrategyRuntimePerDegree   Strategy = "runtime_per_degree"
	StrategyRequestAggregation Strategy = "request_aggregation"
)

// Unit is what a model's output measures.
type Unit int

const (
	UnitMinutes Unit = iota
	UnitSetpoint
)

func (u Unit) String() string {
	if u == UnitSetpoint {
		return "setpoint"
	}
	return "minutes"
}

// Request carries one tick's conditions. ZoneDeviations is only read by
// request aggregation.
type Request struct {
	OutdoorTemp      float64
	ZoneTemp         float64
	OccupiedSetpoint float64
	ZoneDeviations   []float64
}

// Model is one interchangeable prediction strategy.
type Model interface {
	Estimate(req Request) (float64, error)
	Unit() Unit
}

type Prediction struct {
	Value    float64
	Unit     Unit
	Strategy Strategy
	Clamped  bool
}

const (
	DefaultLateStart  = 10.0
	DefaultEarlyStart = 180.0
)

// Limits bound a lead time: never later than LateStart minutes before
// occupancy, never earlier than EarlyStart.
type Limits struct {
	LateStart  float64
	EarlyStart float64
}

func DefaultLimits() Limits {
	return Limits{LateStart: DefaultLateStart, EarlyStart: DefaultEarlyStart}
}

func (l Limits) Clamp(minutes float64) (float64, bool) {
	switch {
	case minutes < l.LateStart:
		return l.LateStart, true
	case minutes > l.EarlyStart:
		return l.EarlyStart, true
	}
	return minutes, false
}

// LeadTimePredictor dispatches a request to the selected strategy and keeps
// lead times inside the configured limits. One instance per zone.
type LeadTimePredictor struct {
	limits      Limits
	models      map[Strategy]Model
	clampLogged bool
	log         *zap.SugaredLogger
}

func New(limits Limits) *LeadTimePredictor {
	if limits.LateStart > limits.EarlyStart || limits.LateStart < 0 {
		limits = DefaultLimits()
	}
	return &LeadTimePredictor{
		limits: limits,
		models: make(map[Strategy]Model),
		log:    logger.Named("predictor"),
	}
}

func (p *LeadTimePredictor) Register(s Strategy, m Model) {
	p.models[s] = m
}

func (p *LeadTimePredictor) Limits() Limits {
	return p.limits
}

func (p *LeadTimePredictor) Has(s Strategy) bool {
	_, ok := p.models[s]
	return ok
}

// Predict evaluates strategy s. Lead times are clamped to the limits;
// setpoint outputs are bounded by the model itself.
func (p *LeadTimePredictor) Predict(req Request, s Strategy) (Prediction, error) {
	m, ok := p.models[s]
	if !ok {
		return Prediction{}, errors.Wrapf(ErrUnknownStrategy, "%q", s)
	}

	v, err := m.Estimate(req)
	if err != nil {
		return Prediction{}, errors.WithMessagef(err, "strategy %s", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Prediction{}, errors.Errorf("strategy %s produced non-finite value %v", s, v)
	}

	pr := Prediction{Value: v, Unit: m.Unit(), Strategy: s}
	if pr.Unit != UnitMinutes {
		return pr, nil
	}

	pr.Value, pr.Clamped = p.limits.Clamp(v)
	if pr.Clamped && !p.clampLogged {
		p.clampLogged = true
		p.log.Infof("Lead time %.2f from %s outside [%.0f, %.0f], clamped to %.0f",
			v, s, p.limits.LateStart, p.limits.EarlyStart, pr.Value)
	}
	return pr, nil
}

// LeadTime is Predict for callers that can only use minutes.
func (p *LeadTimePredictor) LeadTime(req Request, s Strategy) (float64, error) {
	pr, err := p.Predict(req, s)
	if err != nil {
		return 0, err
	}
	if pr.Unit != UnitMinutes {
		return 0, errors.Wrapf(ErrNotLeadTime, "%s yields %s", s, pr.Unit)
	}
	return pr.Value, nil
}
