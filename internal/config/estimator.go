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

package config

import "github.com/antst/optstart/internal/thermo_model"

// EstimatorConfig selects and tunes the parameter fitting of the physical
// model.
type EstimatorConfig struct {
	Method           string                   `yaml:"method"`
	ForgettingFactor *float64                 `yaml:"forgetting_factor"`
	LearningRate     *float64                 `yaml:"learning_rate"`
	MaxIterations    int                      `yaml:"max_iterations"`
	Tolerance        *float64                 `yaml:"tolerance"`
	BTerm            string                   `yaml:"b_term"`
	Initial          *thermo_model.Parameters `yaml:"initial"`
}

func NewEstimatorConfig() *EstimatorConfig {
	cfg := &EstimatorConfig{}
	cfg.FillDefaults()
	return cfg
}

func (c *EstimatorConfig) FillDefaults() {
	if c.Method == "" {
		c.Method = string(thermo_model.MethodEMA)
	}
	if c.ForgettingFactor == nil {
		c.ForgettingFactor = GetPTR(thermo_model.DefaultForgettingFactor)
	}
	if c.LearningRate == nil {
		c.LearningRate = GetPTR(thermo_model.DefaultLearningRate)
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = thermo_model.DefaultMaxIterations
	}
	if c.Tolerance == nil {
		c.Tolerance = GetPTR(thermo_model.DefaultTolerance)
	}
	if c.BTerm == "" {
		c.BTerm = string(thermo_model.BTermLegacy)
	}
	if c.Initial == nil {
		c.Initial = GetPTR(thermo_model.DefaultParameters())
	}
}

// Model converts to the estimator's own configuration for the setpoint sp.
func (c *EstimatorConfig) Model(sp float64) thermo_model.EstimatorConfig {
	return thermo_model.EstimatorConfig{
		Method:           thermo_model.Method(c.Method),
		BTerm:            thermo_model.BTerm(c.BTerm),
		OccupiedSetpoint: sp,
		ForgettingFactor: *c.ForgettingFactor,
		LearningRate:     *c.LearningRate,
		MaxIterations:    c.MaxIterations,
		Tolerance:        *c.Tolerance,
	}
}
