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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/antst/optstart/internal/thermo_model"
)

const sampleConfig = `
log_level: debug
mqtt:
  url: tcp://broker:1883
tick_interval: 30s
outdoor:
  sensors:
    - topic: weather/outdoor
      json_entry: temperature
zones:
  office:
    sensors:
      - topic: zigbee/office
        json_entry: temperature
        scale: 1.8
        offset: 32
    strategy: nearest_neighbor
    limits:
      early_start: 240
    schedule:
      rrule: FREQ=DAILY;BYHOUR=7;BYMINUTE=30;BYSECOND=0
      dtstart: 2024-01-01T07:30
      timezone: UTC
    estimator:
      method: gradient_descent
      b_term: weighted
      initial: {a: 8, b: 1, d: 2}
  lobby:
    sensors:
      - topic: lobby/temp
reset:
  initial: 65
  min: 55
  max: 65
  trim: 0.2
  respond: -0.3
  dynamic_max: {oat_min: 60, oat_max: 70, max_at_high_oat: 60}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Sample(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTConfig.URL)
	assert.Equal(t, defaultControlTopic, cfg.MQTTConfig.ControlTopic)
	assert.Equal(t, 30*time.Second, cfg.TickInterval)
	assert.Equal(t, 24*time.Hour, cfg.CalibrationInterval)
	assert.Equal(t, []string{"lobby", "office"}, cfg.ZoneNames())

	office := cfg.Zones["office"]
	assert.Equal(t, "nearest_neighbor", office.Strategy)
	assert.Equal(t, 10.0, *office.Limits.LateStart)
	assert.Equal(t, 240.0, *office.Limits.EarlyStart)
	assert.Equal(t, 1.8, *office.Sensors[0].Scale)
	assert.Equal(t, 30*time.Minute, office.Sensors[0].MaxAge)
	assert.Equal(t, thermo_model.Parameters{TimePerDegree: 8, OutdoorInfluence: 1, Offset: 2}, *office.Estimator.Initial)
	assert.Equal(t, thermo_model.MethodGradientDescent, office.Estimator.Model(70).Method)

	start, err := office.Schedule.Start()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 7, 30, 0, 0, time.UTC), start)

	require.NotNil(t, cfg.Reset)
	assert.Equal(t, "optstart/control/reset/setpoint", cfg.Reset.OutputTopic)
	assert.Equal(t, 60.0, cfg.Reset.Predictor().DynamicMax.MaxAtHighOAT)
}

func TestLoad_ZoneDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	z := cfg.Zones["lobby"]
	assert.Equal(t, 70.0, *z.OccupiedSetpoint)
	assert.Equal(t, 68.0, *z.Comfort.Lower)
	assert.Equal(t, 77.0, *z.Comfort.Upper)
	assert.Equal(t, "physical_model", z.Strategy)
	assert.Equal(t, 60.0, *z.DefaultMinutes)
	assert.Equal(t, 10, z.MaxDaysOfData)
	assert.Equal(t, 240*time.Minute, z.MaxWarmup)
	assert.Equal(t, 180*time.Minute, z.Schedule.EarliestOffset())
	assert.Equal(t, 30*time.Minute, z.Schedule.AfterIdleExtra())
	assert.Equal(t, 36*time.Hour, z.Schedule.IdleGap)
	assert.Equal(t, "legacy", z.Estimator.BTerm)
	assert.Equal(t, "ema", z.Estimator.Method)
	assert.Equal(t, thermo_model.DefaultParameters(), *z.Estimator.Initial)
	assert.Equal(t, 10.0, *z.RuntimePerDegree.Heating)
	assert.Equal(t, "optstart/control/zone/lobby/start", z.Commands.StartTopic)
	assert.Equal(t, "optstart/control/zone/lobby/stop", z.Commands.StopTopic)
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Zones)
	assert.Equal(t, defaultDBFile, cfg.DBFile)
	assert.Equal(t, time.Minute, cfg.TickInterval)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"strategy":   "zones: {a: {sensors: [{topic: t}], strategy: crystal_ball}}",
		"no sensors": "zones: {a: {}}",
		"comfort":    "zones: {a: {sensors: [{topic: t}], comfort: {lower: 80, upper: 70}}}",
		"limits":     "zones: {a: {sensors: [{topic: t}], limits: {late_start: 200}}}",
		"method":     "zones: {a: {sensors: [{topic: t}], estimator: {method: guess}}}",
		"b_term":     "zones: {a: {sensors: [{topic: t}], estimator: {b_term: squared}}}",
		"dtstart":    "zones: {a: {sensors: [{topic: t}], schedule: {dtstart: yesterday}}}",
		"reset":      "reset: {min: 70, max: 60}",
		"yaml":       "zones: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestScheduleStart_EmptyIsZero(t *testing.T) {
	s := NewScheduleConfig()
	start, err := s.Start()
	require.NoError(t, err)
	assert.True(t, start.IsZero())
	assert.Equal(t, defaultRRule, s.RRule)
}

func TestGetPTR(t *testing.T) {
	p := GetPTR(1.5)
	*p = 2
	assert.Equal(t, 2.0, *p)
	assert.Equal(t, "x", *GetPTR("x"))
}
