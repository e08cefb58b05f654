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
	"context"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/antst/optstart/internal/config"
	"github.com/antst/optstart/internal/db"
	"github.com/antst/optstart/internal/logger"
	"github.com/antst/optstart/internal/safe_mqtt"
)

const (
	epsilon             = 1e-10
	sensorControlSuffix = "/sensors/"
)

var (
	ErrNoReading    = errors.New("no reading")
	ErrStaleReading = errors.New("stale reading")
)

// SensorController follows one MQTT temperature topic.
type SensorController struct {
	name      string
	lock      sync.RWMutex
	cfg       *config.SensorConfig
	queries   *db.Queries
	value     float64
	timestamp time.Time
	now       func() time.Time
	log       *zap.SugaredLogger
}

func NewSensorController(
	_name string, _cfg *config.SensorConfig, _mqtt safe_mqtt.MqttClient, _controlTopic string, _q *db.Queries,
	now func() time.Time,
) *SensorController {
	s := &SensorController{
		name:      _name,
		cfg:       _cfg,
		queries:   _q,
		timestamp: zeroTS,
		now:       now,
		log:       logger.Named("sensor").With("sensor", _name),
	}

	if s.readState() {
		s.log.Debugf("Loaded previous state from DB: %v at %v", s.value, s.timestamp)
	}

	_mqtt.SafeSubscribe(_cfg.Topic, mqttQoS, s.ValueUpdateHandler)
	group := _controlTopic + sensorControlSuffix + s.name + "/"
	_mqtt.SafeSubscribe(group+"offset", mqttQoS, s.controlUpdateHandler)
	_mqtt.SafeSubscribe(group+"weight", mqttQoS, s.controlUpdateHandler)
	_mqtt.SafeSubscribe(group+"scale", mqttQoS, s.controlUpdateHandler)

	return s
}

func (s *SensorController) ValueUpdateHandler(client mqtt.Client, message mqtt.Message) {
	t0, err := extractF64PlainOrJson(message, s.cfg.JSONEntry)
	if err != nil {
		s.log.Error(err)
		return
	}
	s.lock.Lock()
	s.value = t0*(*s.cfg.Scale) + (*s.cfg.Offset)
	s.timestamp = s.now()
	s.lock.Unlock()
	if err := s.writeState(); err != nil {
		s.log.Error(err)
	}
	s.log.Debugf("Got value %f", s.value)
}

// reading returns the last value; ok is false before the first message.
func (s *SensorController) reading() (float64, time.Time, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.value, s.timestamp, s.timestamp.After(zeroTS)
}

func (s *SensorController) weight() float64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return *s.cfg.Weight
}

func (s *SensorController) writeState() error {
	if s.queries == nil {
		return nil
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.queries.UpsertSensorValue(context.Background(), s.name, s.value, s.timestamp)
}

func (s *SensorController) readState() bool {
	if s.queries == nil {
		return false
	}
	val, err := s.queries.GetSensorValue(context.Background(), s.name)
	if err != nil {
		return false
	}
	s.value = val.Value
	s.timestamp = val.UpdatedAt
	return true
}

func (s *SensorController) controlUpdateHandler(client mqtt.Client, message mqtt.Message) {
	topic := lastTopicSegment(message.Topic())
	s.log.Infof("Got MQTT control request: %v : %v", topic, string(message.Payload()))

	value, err := strconv.ParseFloat(string(message.Payload()), 64)
	if err != nil {
		s.log.Error(err)
		return
	}

	s.lock.Lock()
	switch topic {
	case "weight":
		s.cfg.Weight = &value
	case "offset":
		s.cfg.Offset = &value
	case "scale":
		s.cfg.Scale = &value
	default:
		s.lock.Unlock()
		s.log.Errorf("Unknown control topic: %s", topic)
		return
	}
	s.lock.Unlock()

	s.log.Infof("Updated %s to %v", topic, value)
}

// sensorsMean is the weighted mean of readings no older than their max
// age at now. The timestamp is that of the newest reading used.
func sensorsMean(sensors []*SensorController, now time.Time) (float64, time.Time, error) {
	var v, wt float64
	var newest time.Time
	stale := false

	for _, sensor := range sensors {
		value, ts, ok := sensor.reading()
		if !ok {
			continue
		}
		if now.Sub(ts) > sensor.cfg.MaxAge {
			stale = true
			continue
		}
		weight := sensor.weight()
		v += value * weight
		wt += weight
		if ts.After(newest) {
			newest = ts
		}
	}

	if wt < epsilon {
		if stale {
			return 0, zeroTS, ErrStaleReading
		}
		return 0, zeroTS, ErrNoReading
	}
	return v / wt, newest, nil
}
