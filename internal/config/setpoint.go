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

const (
	defaultOccupiedSetpoint = 70.0
	defaultComfortLower     = 68.0
	defaultComfortUpper     = 77.0
	defaultLateStart        = 10.0
	defaultEarlyStart       = 180.0
	defaultRuntimePerDegree = 10.0
)

// ComfortConfig is the acceptable occupied temperature band, °F.
type ComfortConfig struct {
	Lower *float64 `yaml:"lower"`
	Upper *float64 `yaml:"upper"`
}

func NewComfortConfig() *ComfortConfig {
	cfg := &ComfortConfig{}
	cfg.FillDefaults()
	return cfg
}

func (c *ComfortConfig) FillDefaults() {
	if c.Lower == nil {
		c.Lower = GetPTR(defaultComfortLower)
	}
	if c.Upper == nil {
		c.Upper = GetPTR(defaultComfortUpper)
	}
}

// LimitsConfig bounds lead times in minutes before occupancy.
type LimitsConfig struct {
	LateStart  *float64 `yaml:"late_start"`
	EarlyStart *float64 `yaml:"early_start"`
}

func NewLimitsConfig() *LimitsConfig {
	cfg := &LimitsConfig{}
	cfg.FillDefaults()
	return cfg
}

func (c *LimitsConfig) FillDefaults() {
	if c.LateStart == nil {
		c.LateStart = GetPTR(defaultLateStart)
	}
	if c.EarlyStart == nil {
		c.EarlyStart = GetPTR(defaultEarlyStart)
	}
}

// RuntimePerDegreeConfig holds minutes of runtime per degree outside comfort.
type RuntimePerDegreeConfig struct {
	Heating *float64 `yaml:"heating"`
	Cooling *float64 `yaml:"cooling"`
}

func (c *RuntimePerDegreeConfig) FillDefaults() {
	if c.Heating == nil {
		c.Heating = GetPTR(defaultRuntimePerDegree)
	}
	if c.Cooling == nil {
		c.Cooling = GetPTR(defaultRuntimePerDegree)
	}
}
