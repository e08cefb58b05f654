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

package history

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(outdoor, zone, minutes float64) Observation {
	return Observation{OutdoorTemp: outdoor, ZoneTemp: zone, WarmupMinutes: minutes}
}

func TestStore_AddKeepsInsertionOrder(t *testing.T) {
	s := NewStore(5)
	require.NoError(t, s.Add(obs(5, 60, 111)))
	require.NoError(t, s.Add(obs(9, 61, 100)))
	require.NoError(t, s.Add(obs(15, 62, 90)))

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, 111.0, all[0].WarmupMinutes)
	assert.Equal(t, 100.0, all[1].WarmupMinutes)
	assert.Equal(t, 90.0, all[2].WarmupMinutes)
}

func TestStore_PrunesOldest(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 7; i++ {
		require.NoError(t, s.Add(obs(float64(i), 60, float64(i*10))))
	}

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, 40.0, all[0].WarmupMinutes)
	assert.Equal(t, 50.0, all[1].WarmupMinutes)
	assert.Equal(t, 60.0, all[2].WarmupMinutes)
	assert.Equal(t, 3, s.Len())
}

func TestStore_RejectsInvalidObservation(t *testing.T) {
	s := NewStore(3)
	require.NoError(t, s.Add(obs(10, 60, 30)))

	cases := []Observation{
		obs(10, 60, -1),
		obs(10, 60, math.NaN()),
		obs(10, 60, math.Inf(1)),
		obs(math.NaN(), 60, 10),
	}
	for _, o := range cases {
		err := s.Add(o)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidObservation))
	}
	assert.Equal(t, 1, s.Len())
}

func TestStore_ZeroMinutesIsValid(t *testing.T) {
	s := NewStore(3)
	assert.NoError(t, s.Add(obs(45, 65, 0)))
}

func TestStore_AllReturnsCopy(t *testing.T) {
	s := NewStore(3)
	require.NoError(t, s.Add(obs(10, 60, 30)))

	all := s.All()
	all[0].WarmupMinutes = 999
	assert.Equal(t, 30.0, s.All()[0].WarmupMinutes)
}

func TestStore_DefaultRetention(t *testing.T) {
	assert.Equal(t, DefaultMaxDaysOfData, NewStore(0).MaxDays())
}

func TestStore_ExportImportRoundtrip(t *testing.T) {
	src := NewStore(4)
	for i := 0; i < 6; i++ {
		require.NoError(t, src.Add(obs(float64(i), 60+float64(i), float64(100-i))))
	}

	dst := NewStore(4)
	require.NoError(t, dst.Import(src.Export()))
	assert.Equal(t, src.All(), dst.All())
}

func TestStore_ImportSkipsInvalid(t *testing.T) {
	s := NewStore(4)
	err := s.Import([]Observation{obs(1, 60, 10), obs(2, 60, -5), obs(3, 60, 20)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidObservation))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, 20.0, all[1].WarmupMinutes)
}
