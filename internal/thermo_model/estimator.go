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

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/antst/optstart/internal/history"
	"github.com/antst/optstart/internal/logger"
)

// Method is the calibration strategy used by the Estimator.
type Method string

const (
	MethodEMA             Method = "ema"
	MethodForgetting      Method = "forgetting"
	MethodGradientDescent Method = "gradient_descent"
)

func (m Method) Valid() bool {
	switch m {
	case MethodEMA, MethodForgetting, MethodGradientDescent:
		return true
	}
	return false
}

const (
	DefaultForgettingFactor = 0.1
	DefaultLearningRate     = 0.1
	DefaultMaxIterations    = 5000
	DefaultTolerance        = 1e-9
)

type EstimatorConfig struct {
	Method           Method
	BTerm            BTerm
	OccupiedSetpoint float64
	ForgettingFactor float64
	LearningRate     float64
	MaxIterations    int
	Tolerance        float64
}

// CalibrationResult reports one calibration pass. Loss is the mean squared
// error of the new parameters over the samples used; Iterations is only
// non-zero for gradient descent.
type CalibrationResult struct {
	Parameters Parameters
	Used       int
	Skipped    int
	Loss       float64
	Iterations int
}

// Estimator owns the model parameters of one zone. Parameters only change
// through Calibrate.
type Estimator struct {
	cfg    EstimatorConfig
	params Parameters
	log    *zap.SugaredLogger
}

func NewEstimator(cfg EstimatorConfig, initial Parameters) *Estimator {
	if !cfg.Method.Valid() {
		cfg.Method = MethodEMA
	}
	if !cfg.BTerm.Valid() {
		cfg.BTerm = BTermLegacy
	}
	if cfg.ForgettingFactor <= 0 || cfg.ForgettingFactor > 1 {
		cfg.ForgettingFactor = DefaultForgettingFactor
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if !initial.Finite() {
		initial = DefaultParameters()
	}
	return &Estimator{cfg: cfg, params: initial, log: logger.Named("estimator")}
}

func (e *Estimator) Parameters() Parameters {
	return e.params
}

func (e *Estimator) Config() EstimatorConfig {
	return e.cfg
}

type sample struct {
	dz, do, t float64
}

// Calibrate refits the parameters from the observation history. On error
// the previous parameters are kept.
func (e *Estimator) Calibrate(observations []history.Observation) (CalibrationResult, error) {
	res := CalibrationResult{Parameters: e.params}
	if len(observations) == 0 {
		return res, history.ErrEmptyHistory
	}

	samples := make([]sample, 0, len(observations))
	for i, o := range observations {
		if err := o.Validate(); err != nil {
			res.Skipped++
			e.log.Debugf("Skip observation %d: %v", i, err)
			continue
		}
		s := sample{dz: e.cfg.OccupiedSetpoint - o.ZoneTemp, do: e.cfg.OccupiedSetpoint - o.OutdoorTemp, t: o.WarmupMinutes}
		if e.cfg.Method != MethodGradientDescent && (math.Abs(s.dz) < epsilon || math.Abs(s.do) < epsilon) {
			res.Skipped++
			e.log.Debugf("Skip observation %d: %v (zone=%.2f, outdoor=%.2f)", i, ErrDegenerateSample, o.ZoneTemp, o.OutdoorTemp)
			continue
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return res, errors.Wrapf(ErrDegenerateSample, "all %d observations skipped", len(observations))
	}
	res.Used = len(samples)

	var next Parameters
	switch e.cfg.Method {
	case MethodForgetting:
		next = e.forgetting(samples)
	case MethodGradientDescent:
		next, res.Iterations = e.gradientDescent(samples)
	default:
		next = e.ema(samples)
	}

	if !next.Finite() {
		return res, errors.Wrapf(ErrNonFinite, "%+v", next)
	}

	e.params = next
	res.Parameters = next
	res.Loss = e.loss(next, samples)
	e.log.Debugf(
		"Calibrated (%s): a=%.4f b=%.4f d=%.4f, loss=%.3f, used=%d, skipped=%d, iterations=%d",
		e.cfg.Method, next.TimePerDegree, next.OutdoorInfluence, next.Offset, res.Loss, res.Used, res.Skipped, res.Iterations,
	)
	return res, nil
}

// closedForm solves each coefficient from a single sample.
func (e *Estimator) closedForm(s sample) Parameters {
	x := s.dz * s.do
	a := math.Abs(s.t / s.dz)
	b := math.Abs(s.t / x)
	return Parameters{
		TimePerDegree:    a,
		OutdoorInfluence: b,
		Offset:           s.t - (a*s.dz + outdoorTerm(e.cfg.BTerm, b, x)),
	}
}

func (e *Estimator) ema(samples []sample) Parameters {
	as := make([]float64, len(samples))
	bs := make([]float64, len(samples))
	ds := make([]float64, len(samples))
	for i, s := range samples {
		p := e.closedForm(s)
		as[i], bs[i], ds[i] = p.TimePerDegree, p.OutdoorInfluence, p.Offset
	}
	return Parameters{
		TimePerDegree:    ExponentialMovingAverage(as),
		OutdoorInfluence: ExponentialMovingAverage(bs),
		Offset:           ExponentialMovingAverage(ds),
	}
}

func (e *Estimator) forgetting(samples []sample) Parameters {
	p := e.params
	f := e.cfg.ForgettingFactor
	for _, s := range samples {
		n := e.closedForm(s)
		p.TimePerDegree += f * (n.TimePerDegree - p.TimePerDegree)
		p.OutdoorInfluence += f * (n.OutdoorInfluence - p.OutdoorInfluence)
		p.Offset += f * (n.Offset - p.Offset)
	}
	return p
}

func (e *Estimator) loss(p Parameters, samples []sample) float64 {
	var sum float64
	for _, s := range samples {
		pred := p.TimePerDegree*s.dz + outdoorTerm(e.cfg.BTerm, p.OutdoorInfluence, s.dz*s.do) + p.Offset
		d := pred - s.t
		sum += d * d
	}
	return sum / float64(len(samples))
}

// ExponentialMovingAverage weights values geometrically from the most
// recent (last) one, with smoothing constant min(1, 4/(n+1)). The oldest
// value also carries the residual weight so the weights sum to one.
func ExponentialMovingAverage(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	k := math.Min(1, 2.0/(float64(n)+1.0)*2.0)

	var ema float64
	for i := 0; i < n; i++ {
		ema += values[n-1-i] * k * math.Pow(1-k, float64(i))
	}
	ema += values[0] * math.Pow(1-k, float64(n))
	return ema
}
