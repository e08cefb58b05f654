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

// Package schedule answers occupancy questions from an RFC 5545 recurrence
// rule.
package schedule

import (
	"time"

	"github.com/pkg/errors"
	"github.com/teambition/rrule-go"

	"github.com/antst/optstart/internal/scheduler"
)

var ErrNoOccurrence = errors.New("no further occupancy")

type Config struct {
	RRule           string
	DTStart         time.Time
	OccupiedMinutes int
	EarliestOffset  time.Duration
	// AfterIdleExtra is added to the lead time when the previous occupancy
	// started more than IdleGap before the next one.
	AfterIdleExtra time.Duration
	IdleGap        time.Duration
}

type Calendar struct {
	cfg  Config
	rule *rrule.RRule
}

func New(cfg Config) (*Calendar, error) {
	rr, err := rrule.StrToRRule(cfg.RRule)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid rrule %q", cfg.RRule)
	}
	if !cfg.DTStart.IsZero() {
		rr.DTStart(cfg.DTStart)
	}
	return &Calendar{cfg: cfg, rule: rr}, nil
}

// NextOccupancy returns the first occupancy start strictly after now.
func (c *Calendar) NextOccupancy(now time.Time) (scheduler.Event, error) {
	next := c.rule.After(now, false)
	if next.IsZero() {
		return scheduler.Event{}, ErrNoOccurrence
	}

	ev := scheduler.Event{Start: next, EarliestOffset: c.cfg.EarliestOffset}
	prev := c.rule.Before(next, false)
	if prev.IsZero() || next.Sub(prev) > c.cfg.IdleGap {
		ev.ExtraLead = c.cfg.AfterIdleExtra
	}
	return ev, nil
}

// IsOccupied reports whether now falls inside an occupied period.
func (c *Calendar) IsOccupied(now time.Time) bool {
	prev := c.rule.Before(now, true)
	if prev.IsZero() {
		return false
	}
	return now.Before(prev.Add(time.Duration(c.cfg.OccupiedMinutes) * time.Minute))
}
