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

package predictor

import (
	"math"
	"sort"

	"github.com/antst/optstart/internal/history"
	"github.com/antst/optstart/internal/thermo_model"
)

const DefaultMinutes = 60.0

// ParameterSource exposes the current fitted model parameters.
type ParameterSource interface {
	Parameters() thermo_model.Parameters
}

// HistorySource exposes retained observations, oldest first.
type HistorySource interface {
	All() []history.Observation
}

// PhysicalModel evaluates the fitted warm-up formula.
type PhysicalModel struct {
	params ParameterSource
	bTerm  thermo_model.BTerm
}

func NewPhysicalModel(params ParameterSource, bTerm thermo_model.BTerm) *PhysicalModel {
	if !bTerm.Valid() {
		bTerm = thermo_model.BTermLegacy
	}
	return &PhysicalModel{params: params, bTerm: bTerm}
}

func (m *PhysicalModel) Estimate(req Request) (float64, error) {
	return thermo_model.Evaluate(m.params.Parameters(), m.bTerm, req.OccupiedSetpoint, req.ZoneTemp, req.OutdoorTemp), nil
}

func (m *PhysicalModel) Unit() Unit { return UnitMinutes }

// NearestNeighbor interpolates between the two historical warm-ups closest
// to the current conditions.
type NearestNeighbor struct {
	history        HistorySource
	defaultMinutes float64
}

func NewNearestNeighbor(h HistorySource, defaultMinutes float64) *NearestNeighbor {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultMinutes
	}
	return &NearestNeighbor{history: h, defaultMinutes: defaultMinutes}
}

type neighbour struct {
	distance float64
	minutes  float64
}

func (m *NearestNeighbor) Estimate(req Request) (float64, error) {
	data := m.history.All()
	switch len(data) {
	case 0:
		return m.defaultMinutes, nil
	case 1:
		return data[0].WarmupMinutes, nil
	}

	ns := make([]neighbour, len(data))
	for i, o := range data {
		ns[i] = neighbour{
			distance: math.Abs(req.OutdoorTemp-o.OutdoorTemp) + math.Abs(req.ZoneTemp-o.ZoneTemp),
			minutes:  o.WarmupMinutes,
		}
	}
	// Ties keep insertion order.
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].distance < ns[j].distance })

	w1, w2 := inverseDistance(ns[0].distance), inverseDistance(ns[1].distance)
	v := (ns[0].minutes*w1 + ns[1].minutes*w2) / (w1 + w2)
	return math.RoundToEven(v), nil
}

func (m *NearestNeighbor) Unit() Unit { return UnitMinutes }

func inverseDistance(d float64) float64 {
	if d == 0 {
		return 1
	}
	return 1 / d
}

// ComfortLimits is the acceptable occupied zone temperature band, °F.
type ComfortLimits struct {
	Lower float64
	Upper float64
}

func (c ComfortLimits) Contains(t float64) bool {
	return t >= c.Lower && t <= c.Upper
}

// RuntimePerDegree charges a fixed number of minutes for every degree the
// zone sits outside the comfort band.
type RuntimePerDegree struct {
	comfort     ComfortLimits
	heatingRate float64
	coolingRate float64
}

func NewRuntimePerDegree(comfort ComfortLimits, heatingRate, coolingRate float64) *RuntimePerDegree {
	return &RuntimePerDegree{comfort: comfort, heatingRate: heatingRate, coolingRate: coolingRate}
}

func (m *RuntimePerDegree) Estimate(req Request) (float64, error) {
	switch {
	case req.ZoneTemp > m.comfort.Upper:
		return math.Trunc((req.ZoneTemp - m.comfort.Upper) * m.coolingRate), nil
	case req.ZoneTemp < m.comfort.Lower:
		return math.Trunc((m.comfort.Lower - req.ZoneTemp) * m.heatingRate), nil
	}
	return 0, nil
}

func (m *RuntimePerDegree) Unit() Unit { return UnitMinutes }
