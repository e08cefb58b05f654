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

// Package history keeps the bounded record of completed warm-up cycles.
package history

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

const DefaultMaxDaysOfData = 10

var (
	ErrInvalidObservation = errors.New("invalid observation")
	ErrEmptyHistory       = errors.New("empty history")
)

// Observation is one completed warm-up: conditions when equipment was
// started and how many minutes it took to reach the occupied threshold.
type Observation struct {
	OutdoorTemp   float64   `json:"outdoor_temp" db:"outdoor_temp"`
	ZoneTemp      float64   `json:"zone_temp" db:"zone_temp"`
	WarmupMinutes float64   `json:"warmup_minutes" db:"warmup_minutes"`
	RecordedAt    time.Time `json:"recorded_at,omitempty" db:"recorded_at"`
	CycleID       string    `json:"cycle_id,omitempty" db:"cycle_id"`
}

func (o Observation) Validate() error {
	if math.IsNaN(o.WarmupMinutes) || math.IsInf(o.WarmupMinutes, 0) {
		return errors.Wrapf(ErrInvalidObservation, "non-finite warm-up duration %v", o.WarmupMinutes)
	}
	if o.WarmupMinutes < 0 {
		return errors.Wrapf(ErrInvalidObservation, "negative warm-up duration %.2f", o.WarmupMinutes)
	}
	if math.IsNaN(o.OutdoorTemp) || math.IsInf(o.OutdoorTemp, 0) ||
		math.IsNaN(o.ZoneTemp) || math.IsInf(o.ZoneTemp, 0) {
		return errors.Wrapf(ErrInvalidObservation, "non-finite temperature (outdoor=%v, zone=%v)", o.OutdoorTemp, o.ZoneTemp)
	}
	return nil
}

// Store holds the most recent maxDays observations, oldest first.
// Not safe for concurrent use; a Store belongs to exactly one zone loop.
type Store struct {
	maxDays      int
	observations []Observation
}

func NewStore(maxDaysOfData int) *Store {
	if maxDaysOfData <= 0 {
		maxDaysOfData = DefaultMaxDaysOfData
	}
	return &Store{
		maxDays:      maxDaysOfData,
		observations: make([]Observation, 0, maxDaysOfData+1),
	}
}

// Add appends o and drops the oldest entries beyond the retention count.
// Invalid observations are rejected and the store is left untouched.
func (s *Store) Add(o Observation) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.observations = append(s.observations, o)
	s.prune()
	return nil
}

func (s *Store) prune() {
	if extra := len(s.observations) - s.maxDays; extra > 0 {
		kept := make([]Observation, s.maxDays, s.maxDays+1)
		copy(kept, s.observations[extra:])
		s.observations = kept
	}
}

// All returns a copy of the retained observations in insertion order.
func (s *Store) All() []Observation {
	out := make([]Observation, len(s.observations))
	copy(out, s.observations)
	return out
}

func (s *Store) Len() int {
	return len(s.observations)
}

func (s *Store) MaxDays() int {
	return s.maxDays
}

// Export is All under the name used by persistence sinks.
func (s *Store) Export() []Observation {
	return s.All()
}

// Import appends observations in order, as if each had been added.
// Invalid entries are skipped; the first rejection is returned after the
// rest have been imported.
func (s *Store) Import(observations []Observation) error {
	var firstErr error
	for i, o := range observations {
		if err := s.Add(o); err != nil && firstErr == nil {
			firstErr = errors.WithMessagef(err, "import entry %d", i)
		}
	}
	return firstErr
}
