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
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/antst/optstart/internal/config"
	"github.com/antst/optstart/internal/db"
	"github.com/antst/optstart/internal/logger"
	"github.com/antst/optstart/internal/safe_mqtt"
)

type averageFunc func([]*SensorController, time.Time) (float64, time.Time, error)

type sensorGroup struct {
	sensors []*SensorController
	average averageFunc
}

// SensorFeed serves averaged temperatures of named sensor groups: the
// outdoor group and one group per zone.
type SensorFeed struct {
	mu           sync.RWMutex
	mqtt         safe_mqtt.MqttClient
	controlTopic string
	queries      *db.Queries
	groups       map[string]*sensorGroup
	now          func() time.Time
}

func NewSensorFeed(_mqtt safe_mqtt.MqttClient, _controlTopic string, _q *db.Queries) *SensorFeed {
	return &SensorFeed{
		mqtt:         _mqtt,
		controlTopic: _controlTopic,
		queries:      _q,
		groups:       make(map[string]*sensorGroup),
		now:          time.Now,
	}
}

func linkAverageFun(group, averageType string) averageFunc {
	if averageType != config.DefaultAverageType {
		logger.L().Errorf("Unknown average function type for %s: %v", group, averageType)
		logger.L().Error("Reverting to the `mean`")
	}
	return sensorsMean
}

// AddGroup subscribes the sensors of one group. Sensor names are
// prefixed with the group so they stay unique in the database.
func (f *SensorFeed) AddGroup(group string, sensors []*config.SensorConfig, averageType string) {
	g := &sensorGroup{
		sensors: make([]*SensorController, len(sensors)),
		average: linkAverageFun(group, averageType),
	}
	for i, sensor := range sensors {
		sName := group + "-"
		if sensor.Name == "" {
			sName += strconv.Itoa(i + 1)
		} else {
			sName += sensor.Name
		}
		g.sensors[i] = NewSensorController(sName, sensor, f.mqtt, f.controlTopic, f.queries, f.clock)
	}

	f.mu.Lock()
	f.groups[group] = g
	f.mu.Unlock()
}

func (f *SensorFeed) clock() time.Time {
	return f.now()
}

// Read returns the current averaged value of a group.
func (f *SensorFeed) Read(group string) (float64, error) {
	f.mu.RLock()
	g, ok := f.groups[group]
	f.mu.RUnlock()
	if !ok {
		return 0, errors.Wrapf(ErrNoReading, "unknown sensor group %q", group)
	}

	v, _, err := g.average(g.sensors, f.now())
	if err != nil {
		return 0, errors.WithMessagef(err, "group %s", group)
	}
	return v, nil
}
