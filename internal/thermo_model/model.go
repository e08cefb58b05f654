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

// Package thermo_model holds the physical warm-up model
//
//	t_opt = a*(Tsp-Tz) + B(b)*(Tsp-Tz)*(Tsp-To) + d
//
// and the estimator fitting a, b and d from observed warm-ups.
package thermo_model

import (
	"math"

	"github.com/pkg/errors"
)

const epsilon = 1e-10

var (
	ErrDegenerateSample = errors.New("degenerate sample")
	ErrNonFinite        = errors.New("non-finite parameters")
)

// BTerm selects how the outdoor-influence coefficient enters the model.
type BTerm string

const (
	// BTermLegacy evaluates b*X/b, which is X for any b. b is still fitted
	// and reported but has no effect on predictions.
	BTermLegacy BTerm = "legacy"
	// BTermWeighted evaluates b*X.
	BTermWeighted BTerm = "weighted"
)

func (b BTerm) Valid() bool {
	return b == BTermLegacy || b == BTermWeighted
}

// Parameters are the coefficients of the warm-up model.
type Parameters struct {
	TimePerDegree    float64 `json:"alpha_time_per_degree" yaml:"a" db:"alpha_a"`
	OutdoorInfluence float64 `json:"alpha_outdoor_influence" yaml:"b" db:"alpha_b"`
	Offset           float64 `json:"alpha_offset" yaml:"d" db:"alpha_d"`
}

// DefaultParameters are the untrained starting point: 10 min per degree,
// 5 for outdoor influence, no offset.
func DefaultParameters() Parameters {
	return Parameters{TimePerDegree: 10, OutdoorInfluence: 5, Offset: 0}
}

func (p Parameters) Finite() bool {
	return finite(p.TimePerDegree) && finite(p.OutdoorInfluence) && finite(p.Offset)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// outdoorTerm is the b-term of the model for the given product
// x = (Tsp-Tz)*(Tsp-To).
func outdoorTerm(mode BTerm, b, x float64) float64 {
	if mode == BTermWeighted {
		return b * x
	}
	// b*x/b without dividing, so b == 0 cannot produce NaN.
	return x
}

// Evaluate returns the raw (unclamped) warm-up minutes predicted for
// the setpoint sp, zone temperature zt and outdoor temperature ot.
func Evaluate(p Parameters, mode BTerm, sp, zt, ot float64) float64 {
	dz := sp - zt
	do := sp - ot
	return p.TimePerDegree*dz + outdoorTerm(mode, p.OutdoorInfluence, dz*do) + p.Offset
}
