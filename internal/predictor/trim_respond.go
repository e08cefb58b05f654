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
)

// DynamicMax resets the maximum setpoint linearly with outdoor air
// temperature: Max at or below OATMin, MaxAtHighOAT at or above OATMax.
type DynamicMax struct {
	OATMin       float64 `yaml:"oat_min"`
	OATMax       float64 `yaml:"oat_max"`
	MaxAtHighOAT float64 `yaml:"max_at_high_oat"`
}

type ResetConfig struct {
	Initial       float64
	Min           float64
	Max           float64
	Ignore        int
	Threshold     float64
	Trim          float64
	Respond       float64
	MaxAdjustment float64
	DynamicMax    *DynamicMax
}

// Adjustment describes one trim-and-respond cycle.
type Adjustment struct {
	Requests int
	Delta    float64
	Previous float64
	Setpoint float64
	Max      float64
}

// RequestAggregation is a trim-and-respond setpoint reset. Zones deviating
// beyond the threshold are requests; the top Ignore deviations are dropped
// first. It keeps the current setpoint between cycles.
type RequestAggregation struct {
	cfg      ResetConfig
	setpoint float64
}

func NewRequestAggregation(cfg ResetConfig) *RequestAggregation {
	if cfg.Min > cfg.Max {
		cfg.Min, cfg.Max = cfg.Max, cfg.Min
	}
	if cfg.Ignore < 0 {
		cfg.Ignore = 0
	}
	r := &RequestAggregation{cfg: cfg}
	r.setpoint = clamp(cfg.Initial, cfg.Min, cfg.Max)
	return r
}

// CountRequests sorts deviations descending, drops the first ignore
// values and counts the rest strictly above threshold.
func CountRequests(deviations []float64, ignore int, threshold float64) int {
	if ignore < 0 {
		ignore = 0
	}
	if ignore >= len(deviations) {
		return 0
	}
	sorted := make([]float64, len(deviations))
	copy(sorted, deviations)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	n := 0
	for _, d := range sorted[ignore:] {
		if d > threshold {
			n++
		}
	}
	return n
}

func (r *RequestAggregation) maxAt(oat float64) float64 {
	dm := r.cfg.DynamicMax
	if dm == nil || math.IsNaN(oat) || dm.OATMax <= dm.OATMin {
		return r.cfg.Max
	}
	var m float64
	switch {
	case oat <= dm.OATMin:
		m = r.cfg.Max
	case oat >= dm.OATMax:
		m = dm.MaxAtHighOAT
	default:
		m = r.cfg.Max - (r.cfg.Max-dm.MaxAtHighOAT)*((oat-dm.OATMin)/(dm.OATMax-dm.OATMin))
	}
	return math.Max(m, r.cfg.Min)
}

// Respond runs one cycle and moves the held setpoint.
func (r *RequestAggregation) Respond(deviations []float64, oat float64) Adjustment {
	adj := Adjustment{
		Requests: CountRequests(deviations, r.cfg.Ignore, r.cfg.Threshold),
		Previous: r.setpoint,
		Max:      r.maxAt(oat),
	}

	if adj.Requests == 0 {
		adj.Delta = r.cfg.Trim
	} else {
		adj.Delta = r.cfg.Respond * float64(adj.Requests)
	}
	if limit := math.Abs(r.cfg.MaxAdjustment); limit > 0 {
		adj.Delta = clamp(adj.Delta, -limit, limit)
	}

	r.setpoint = clamp(r.setpoint+adj.Delta, r.cfg.Min, adj.Max)
	adj.Setpoint = r.setpoint
	return adj
}

func (r *RequestAggregation) Setpoint() float64 {
	return r.setpoint
}

func (r *RequestAggregation) Estimate(req Request) (float64, error) {
	return r.Respond(req.ZoneDeviations, req.OutdoorTemp).Setpoint, nil
}

func (r *RequestAggregation) Unit() Unit { return UnitSetpoint }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
