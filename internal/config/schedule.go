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

	"github.com/pkg/errors"
)

const (
	defaultRRule           = "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR;BYHOUR=8;BYMINUTE=0;BYSECOND=0"
	defaultOccupiedMinutes = 600
	defaultEarliestOffset  = 180.0
	defaultAfterIdleExtra  = 30.0
	defaultIdleGap         = 36 * time.Hour
)

var dtstartLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// ScheduleConfig describes occupancy as a recurrence rule. DTStart is read
// in Timezone when it carries no offset.
type ScheduleConfig struct {
	RRule                 string        `yaml:"rrule"`
	DTStart               string        `yaml:"dtstart,omitempty"`
	Timezone              string        `yaml:"timezone,omitempty"`
	OccupiedMinutes       int           `yaml:"occupied_minutes"`
	EarliestOffsetMinutes *float64      `yaml:"earliest_offset_minutes"`
	AfterIdleExtraMinutes *float64      `yaml:"after_idle_extra_minutes"`
	IdleGap               time.Duration `yaml:"idle_gap"`
}

func NewScheduleConfig() *ScheduleConfig {
	cfg := &ScheduleConfig{}
	cfg.FillDefaults()
	return cfg
}

func (c *ScheduleConfig) FillDefaults() {
	if c.RRule == "" {
		c.RRule = defaultRRule
	}
	if c.OccupiedMinutes <= 0 {
		c.OccupiedMinutes = defaultOccupiedMinutes
	}
	if c.EarliestOffsetMinutes == nil {
		c.EarliestOffsetMinutes = GetPTR(defaultEarliestOffset)
	}
	if c.AfterIdleExtraMinutes == nil {
		c.AfterIdleExtraMinutes = GetPTR(defaultAfterIdleExtra)
	}
	if c.IdleGap <= 0 {
		c.IdleGap = defaultIdleGap
	}
}

// Start parses DTStart. An empty DTStart gives the zero time.
func (c *ScheduleConfig) Start() (time.Time, error) {
	loc := time.Local
	if c.Timezone != "" {
		l, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "timezone %q", c.Timezone)
		}
		loc = l
	}
	if c.DTStart == "" {
		return time.Time{}, nil
	}
	for _, layout := range dtstartLayouts {
		if t, err := time.ParseInLocation(layout, c.DTStart, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("cannot parse dtstart %q", c.DTStart)
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func (c *ScheduleConfig) EarliestOffset() time.Duration {
	return minutes(*c.EarliestOffsetMinutes)
}

func (c *ScheduleConfig) AfterIdleExtra() time.Duration {
	return minutes(*c.AfterIdleExtraMinutes)
}
