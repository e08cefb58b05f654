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

// OutdoorConfig represents the configuration for outdoor air sensors
type OutdoorConfig struct {
	Sensors     []*SensorConfig `yaml:"sensors"`
	AverageType string          `yaml:"average_type"`
}

// NewOutdoorConfig creates a new OutdoorConfig with default values
func NewOutdoorConfig() *OutdoorConfig {
	cfg := &OutdoorConfig{}
	cfg.FillDefaults()
	return cfg
}

// FillDefaults sets default values for the OutdoorConfig
func (c *OutdoorConfig) FillDefaults() {
	fillSensorDefaults(c.Sensors, &c.AverageType)
}

func fillSensorDefaults(sensors []*SensorConfig, avgType *string) {
	for _, s := range sensors {
		s.FillDefaults()
	}
	if *avgType == "" {
		*avgType = DefaultAverageType
	}
}
