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

package thermo_model

import "math"

// column is one regressor of the linear model. Features are standardised
// before descent so a single learning rate works for both degree and
// degree-squared terms.
type column struct {
	x     []float64
	mean  float64
	std   float64
	prior float64
	coef  float64
	fixed bool
}

func newColumn(x []float64, prior float64) *column {
	c := &column{x: x, prior: prior, coef: prior}
	n := float64(len(x))
	for _, v := range x {
		c.mean += v
	}
	c.mean /= n
	for _, v := range x {
		c.std += (v - c.mean) * (v - c.mean)
	}
	c.std = math.Sqrt(c.std / n)
	// A constant regressor cannot be told apart from the offset.
	c.fixed = c.std < epsilon
	return c
}

// gradientDescent minimises the mean squared error over all samples
// jointly. It starts every pass from the least-squares intercept with zero
// slopes, so the result depends only on the samples.
func (e *Estimator) gradientDescent(samples []sample) (Parameters, int) {
	n := len(samples)
	y := make([]float64, n)
	dz := make([]float64, n)
	x := make([]float64, n)
	for i, s := range samples {
		y[i] = s.t
		dz[i] = s.dz
		x[i] = s.dz * s.do
		if e.cfg.BTerm == BTermLegacy {
			y[i] -= x[i]
		}
	}

	cols := []*column{newColumn(dz, e.params.TimePerDegree)}
	if e.cfg.BTerm == BTermWeighted {
		cols = append(cols, newColumn(x, e.params.OutdoorInfluence))
	}

	target := make([]float64, n)
	copy(target, y)
	for _, c := range cols {
		if c.fixed {
			for i := range target {
				target[i] -= c.prior * c.x[i]
			}
		}
	}

	var intercept float64
	for _, v := range target {
		intercept += v
	}
	intercept /= float64(n)

	weights := make([]float64, len(cols))
	lr := e.cfg.LearningRate
	prevLoss := math.Inf(1)
	iterations := 0
	residual := make([]float64, n)

	for iterations < e.cfg.MaxIterations {
		var loss float64
		for i := 0; i < n; i++ {
			pred := intercept
			for j, c := range cols {
				if !c.fixed {
					pred += weights[j] * (c.x[i] - c.mean) / c.std
				}
			}
			residual[i] = pred - target[i]
			loss += residual[i] * residual[i]
		}
		loss /= float64(n)
		if math.Abs(prevLoss-loss) < e.cfg.Tolerance {
			break
		}
		prevLoss = loss

		var gc float64
		for i := 0; i < n; i++ {
			gc += residual[i]
		}
		intercept -= lr * 2 * gc / float64(n)

		for j, c := range cols {
			if c.fixed {
				continue
			}
			var g float64
			for i := 0; i < n; i++ {
				g += residual[i] * (c.x[i] - c.mean) / c.std
			}
			weights[j] -= lr * 2 * g / float64(n)
		}
		iterations++
	}

	offset := intercept
	for j, c := range cols {
		if c.fixed {
			continue
		}
		c.coef = weights[j] / c.std
		offset -= c.coef * c.mean
	}

	next := Parameters{TimePerDegree: cols[0].coef, OutdoorInfluence: e.params.OutdoorInfluence, Offset: offset}
	if len(cols) > 1 {
		next.OutdoorInfluence = cols[1].coef
	}
	return next, iterations
}
