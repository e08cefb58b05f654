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

import "github.com/antst/optstart/internal/predictor"

// ResetConfig enables the trim-and-respond supply-air setpoint reset.
type ResetConfig struct {
	Initial              float64               `yaml:"initial"`
	Min                  float64               `yaml:"min"`
	Max                  float64               `yaml:"max"`
	Ignore               int                   `yaml:"ignore"`
	Threshold            float64               `yaml:"threshold"`
	Trim                 float64               `yaml:"trim"`
	Respond              float64               `yaml:"respond"`
	MaxAdjustment        float64               `yaml:"max_adjustment"`
	DynamicMax           *predictor.DynamicMax `yaml:"dynamic_max,omitempty"`
	OutputTopic          string                `yaml:"output_topic"`
	DeviationTopicPrefix string                `yaml:"deviation_topic_prefix,omitempty"`
}

func (c *ResetConfig) FillDefaults(controlTopic string) {
	if c.OutputTopic == "" {
		c.OutputTopic = controlTopic + "/reset/setpoint"
	}
}

func (c *ResetConfig) Predictor() predictor.ResetConfig {
	return predictor.ResetConfig{
		Initial:       c.Initial,
		Min:           c.Min,
		Max:           c.Max,
		Ignore:        c.Ignore,
		Threshold:     c.Threshold,
		Trim:          c.Trim,
		Respond:       c.Respond,
		MaxAdjustment: c.MaxAdjustment,
		DynamicMax:    c.DynamicMax,
	}
}
