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

package internal

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antst/optstart/internal/config"
)

func TestExtractF64PlainOrJson(t *testing.T) {
	v, err := extractF64PlainOrJson(&fakeMessage{topic: "t", payload: []byte(" 21.5\n")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 21.5, v)

	entry := "temperature"
	v, err = extractF64PlainOrJson(&fakeMessage{topic: "t", payload: []byte(`{"temperature": 19.25, "humidity": 40}`)}, &entry)
	require.NoError(t, err)
	assert.Equal(t, 19.25, v)

	_, err = extractF64PlainOrJson(&fakeMessage{topic: "t", payload: []byte(`{"humidity": 40}`)}, &entry)
	assert.Error(t, err)
	_, err = extractF64PlainOrJson(&fakeMessage{topic: "t", payload: []byte(`{"temperature": "warm"}`)}, &entry)
	assert.Error(t, err)
	_, err = extractF64PlainOrJson(&fakeMessage{topic: "t", payload: []byte(`warm`)}, nil)
	assert.Error(t, err)
}

func sensorCfg(topic string, weight float64) *config.SensorConfig {
	s := &config.SensorConfig{Topic: topic, Weight: config.GetPTR(weight)}
	s.FillDefaults()
	return s
}

func TestSensorFeed_WeightedMean(t *testing.T) {
	m := newFakeMqtt()
	f := NewSensorFeed(m, "optstart/control", nil)
	clock := time.Date(2024, 1, 8, 7, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return clock }

	f.AddGroup("zone/office", []*config.SensorConfig{sensorCfg("a", 1), sensorCfg("b", 3)}, "mean")

	_, err := f.Read("zone/office")
	assert.True(t, errors.Is(err, ErrNoReading))

	m.deliver("a", "60")
	v, err := f.Read("zone/office")
	require.NoError(t, err)
	assert.Equal(t, 60.0, v)

	m.deliver("b", "64")
	v, err = f.Read("zone/office")
	require.NoError(t, err)
	assert.Equal(t, 63.0, v)
}

func TestSensorFeed_ScaleOffsetAndControl(t *testing.T) {
	m := newFakeMqtt()
	f := NewSensorFeed(m, "optstart/control", nil)

	s := &config.SensorConfig{Topic: "celsius", Scale: config.GetPTR(1.8), Offset: config.GetPTR(32.0)}
	s.FillDefaults()
	f.AddGroup("outdoor", []*config.SensorConfig{s}, "mean")

	m.deliver("celsius", "20")
	v, err := f.Read("outdoor")
	require.NoError(t, err)
	assert.InDelta(t, 68.0, v, 1e-9)

	assert.Equal(t, 1, m.deliver("optstart/control/sensors/outdoor-1/offset", "30"))
	m.deliver("celsius", "20")
	v, err = f.Read("outdoor")
	require.NoError(t, err)
	assert.InDelta(t, 66.0, v, 1e-9)
}

func TestSensorFeed_StaleReadings(t *testing.T) {
	m := newFakeMqtt()
	f := NewSensorFeed(m, "optstart/control", nil)
	clock := time.Date(2024, 1, 8, 7, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return clock }

	f.AddGroup("outdoor", []*config.SensorConfig{sensorCfg("weather", 1)}, "median")
	m.deliver("weather", "20")

	clock = clock.Add(31 * time.Minute)
	_, err := f.Read("outdoor")
	assert.True(t, errors.Is(err, ErrStaleReading))

	_, err = f.Read("nowhere")
	assert.True(t, errors.Is(err, ErrNoReading))
}

func TestEquipmentCommander(t *testing.T) {
	m := newFakeMqtt()
	c := NewEquipmentCommander(m)
	c.AddZone("office", &config.CommandsConfig{StartTopic: "hvac/office/start", StopTopic: "hvac/office/stop"})
	ts := time.Date(2024, 1, 8, 7, 0, 0, 0, time.UTC)

	require.NoError(t, c.StartEquipment("office", ts))
	require.NoError(t, c.StopEquipment("office", ts))

	starts := m.publishedTo("hvac/office/start")
	require.Len(t, starts, 1)
	assert.JSONEq(t, `{"zone":"office","command":"start","timestamp":"2024-01-08T07:00:00Z"}`, starts[0].payload)
	assert.False(t, starts[0].retained)
	assert.Len(t, m.publishedTo("hvac/office/stop"), 1)

	assert.Error(t, c.StartEquipment("lobby", ts))

	m.publishErr = errors.New("not connected")
	assert.Error(t, c.StartEquipment("office", ts))
}
