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

import (
	"time"

	"github.com/antst/optstart/internal/history"
	"github.com/antst/optstart/internal/predictor"
)

const defaultMaxWarmup = 240 * time.Minute

type CommandsConfig struct {
	StartTopic string `yaml:"start_topic"`
	StopTopic  string `yaml:"stop_topic"`
}

type ZoneConfig struct {
	SensorsAverageType string                  `yaml:"sensors_average_type"`
	Sensors            []*SensorConfig         `yaml:"sensors"`
	OccupiedSetpoint   *float64                `yaml:"occupied_setpoint"`
	Comfort            *ComfortConfig          `yaml:"comfort"`
	Strategy           string                  `yaml:"strategy"`
	Limits             *LimitsConfig           `yaml:"limits"`
	DefaultMinutes     *float64                `yaml:"default_minutes"`
	MaxDaysOfData      int                     `yaml:"max_days_of_data"`
	MaxWarmup          time.Duration           `yaml:"max_warmup"`
	Schedule           *ScheduleConfig         `yaml:"schedule"`
	Estimator          *EstimatorConfig        `yaml:"estimator"`
	RuntimePerDegree   *RuntimePerDegreeConfig `yaml:"runtime_per_degree"`
	Commands           *CommandsConfig         `yaml:"commands"`
}

func (z *ZoneConfig) FillDefaults(name, controlTopic string) {
	if z.SensorsAverageType == "" {
		z.SensorsAverageType = DefaultAverageType
	}
	if z.OccupiedSetpoint == nil {
		z.OccupiedSetpoint = GetPTR(defaultOccupiedSetpoint)
	}
	if z.Strategy == "" {
		z.Strategy = string(predictor.StrategyPhysicalModel)
	}
	if z.DefaultMinutes == nil {
		z.DefaultMinutes = GetPTR(predictor.DefaultMinutes)
	}
	if z.MaxDaysOfData <= 0 {
		z.MaxDaysOfData = history.DefaultMaxDaysOfData
	}
	if z.MaxWarmup <= 0 {
		z.MaxWarmup = defaultMaxWarmup
	}
	if z.Comfort == nil {
		z.Comfort = &ComfortConfig{}
	}
	if z.Limits == nil {
		z.Limits = &LimitsConfig{}
	}
	if z.Schedule == nil {
		z.Schedule = &ScheduleConfig{}
	}
	if z.Estimator == nil {
		z.Estimator = &EstimatorConfig{}
	}
	if z.RuntimePerDegree == nil {
		z.RuntimePerDegree = &RuntimePerDegreeConfig{}
	}
	if z.Commands == nil {
		z.Commands = &CommandsConfig{}
	}
	if z.Commands.StartTopic == "" {
		z.Commands.StartTopic = controlTopic + "/zone/" + name + "/start"
	}
	if z.Commands.StopTopic == "" {
		z.Commands.StopTopic = controlTopic + "/zone/" + name + "/stop"
	}

	z.Comfort.FillDefaults()
	z.Limits.FillDefaults()
	z.Schedule.FillDefaults()
	z.Estimator.FillDefaults()
	z.RuntimePerDegree.FillDefaults()
	for _, s := range z.Sensors {
		s.FillDefaults()
	}
}

func NewZoneConfig() *ZoneConfig {
	return &ZoneConfig{
		Sensors: make([]*SensorConfig, 0),
	}
}
