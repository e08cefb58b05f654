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
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/antst/optstart/internal/config"
	"github.com/antst/optstart/internal/db"
	"github.com/antst/optstart/internal/history"
	"github.com/antst/optstart/internal/logger"
	"github.com/antst/optstart/internal/metrics"
	"github.com/antst/optstart/internal/predictor"
	"github.com/antst/optstart/internal/safe_mqtt"
	"github.com/antst/optstart/internal/schedule"
	"github.com/antst/optstart/internal/scheduler"
	"github.com/antst/optstart/internal/thermo_model"
)

// ZoneController wires store, estimator, predictor and scheduler of one
// zone. Tick and Calibrate must be called from the same goroutine.
type ZoneController struct {
	name      string
	cfg       *config.ZoneConfig
	mqtt      safe_mqtt.MqttClient
	queries   *db.Queries
	metrics   *metrics.Metrics
	feed      *SensorFeed
	store     *history.Store
	estimator *thermo_model.Estimator
	predictor *predictor.LeadTimePredictor
	calendar  *schedule.Calendar
	scheduler *scheduler.Scheduler
	topic     string
	occupied  *bool
	log       *zap.SugaredLogger
}

func newZoneController(
	_name string, _cfg *config.ZoneConfig, _mqtt safe_mqtt.MqttClient, _controlTopic string, _q *db.Queries,
	_feed *SensorFeed, _out scheduler.CommandOutput, _m *metrics.Metrics,
) (*ZoneController, error) {
	z := &ZoneController{
		name:    _name,
		cfg:     _cfg,
		mqtt:    _mqtt,
		queries: _q,
		metrics: _m,
		feed:    _feed,
		topic:   _controlTopic + controlZoneGroup + _name + "/",
		log:     logger.Named("zone").With("zone", _name),
	}

	z.store = history.NewStore(_cfg.MaxDaysOfData)
	z.loadHistory()

	estCfg := _cfg.Estimator.Model(*_cfg.OccupiedSetpoint)
	if estCfg.BTerm == thermo_model.BTermLegacy {
		z.log.Warn("b_term is legacy: the outdoor coefficient is fitted but does not change predictions")
	}
	z.estimator = thermo_model.NewEstimator(estCfg, z.initialParameters())

	z.predictor = predictor.New(predictor.Limits{LateStart: *_cfg.Limits.LateStart, EarlyStart: *_cfg.Limits.EarlyStart})
	z.predictor.Register(predictor.StrategyPhysicalModel, predictor.NewPhysicalModel(z.estimator, estCfg.BTerm))
	z.predictor.Register(predictor.StrategyNearestNeighbor, predictor.NewNearestNeighbor(z.store, *_cfg.DefaultMinutes))
	z.predictor.Register(predictor.StrategyRuntimePerDegree, predictor.NewRuntimePerDegree(
		z.comfort(), *_cfg.RuntimePerDegree.Heating, *_cfg.RuntimePerDegree.Cooling,
	))

	start, err := _cfg.Schedule.Start()
	if err != nil {
		return nil, errors.WithMessagef(err, "zone %s", _name)
	}
	z.calendar, err = schedule.New(schedule.Config{
		RRule:           _cfg.Schedule.RRule,
		DTStart:         start,
		OccupiedMinutes: _cfg.Schedule.OccupiedMinutes,
		EarliestOffset:  _cfg.Schedule.EarliestOffset(),
		AfterIdleExtra:  _cfg.Schedule.AfterIdleExtra(),
		IdleGap:         _cfg.Schedule.IdleGap,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "zone %s", _name)
	}

	_feed.AddGroup(zoneGroup(_name), _cfg.Sensors, _cfg.SensorsAverageType)

	z.scheduler = scheduler.New(scheduler.Config{
		ZoneID:           _name,
		ZoneSensor:       zoneGroup(_name),
		OutdoorSensor:    outdoorGroup,
		OccupiedSetpoint: *_cfg.OccupiedSetpoint,
		Comfort:          z.comfort(),
		Strategy:         predictor.Strategy(_cfg.Strategy),
		MaxWarmup:        _cfg.MaxWarmup,
	}, z.calendar, _feed, _out, z.predictor, z.store).WithRecorder(_m)
	if _q != nil {
		z.scheduler.WithSink(_q)
	}

	_mqtt.SafeSubscribe(z.topic+"strategy", mqttQoS, z.controlUpdateHandler)
	return z, nil
}

func (z *ZoneController) comfort() predictor.ComfortLimits {
	return predictor.ComfortLimits{Lower: *z.cfg.Comfort.Lower, Upper: *z.cfg.Comfort.Upper}
}

func (z *ZoneController) loadHistory() {
	if z.queries == nil {
		return
	}
	saved, err := z.queries.ListObservations(context.Background(), z.name, z.store.MaxDays())
	if err != nil {
		z.log.Error(err)
		return
	}
	if err := z.store.Import(saved); err != nil {
		z.log.Warnf("Some stored observations were skipped: %v", err)
	}
	z.log.Debugf("Loaded %d observations from DB", z.store.Len())
}

func (z *ZoneController) initialParameters() thermo_model.Parameters {
	if z.queries != nil {
		p, err := z.queries.GetModelParameters(context.Background(), z.name)
		if err == nil {
			z.log.Debugf("Loaded model parameters from DB: %+v", p)
			return p
		}
		if !errors.Is(err, db.ErrNotFound) {
			z.log.Error(err)
		}
	}
	return *z.cfg.Estimator.Initial
}

// Tick advances the scheduler and publishes occupancy changes.
func (z *ZoneController) Tick(now time.Time) scheduler.State {
	state := z.scheduler.Tick(now)

	occupied := z.calendar.IsOccupied(now)
	if z.occupied == nil || *z.occupied != occupied {
		z.occupied = &occupied
		payload := "OFF"
		if occupied {
			payload = "ON"
		}
		z.mqtt.SafePublish(z.topic+"occupied", mqttQoS, true, payload)
		z.log.Infof("Occupancy: %s", payload)
	}
	return state
}

// Running reports whether equipment was started and the warm-up is not
// finished yet.
func (z *ZoneController) Running() bool {
	return z.scheduler.State() == scheduler.Running
}

// Calibrate refits the physical model from the retained history and
// persists the parameters.
func (z *ZoneController) Calibrate() (thermo_model.CalibrationResult, error) {
	res, err := z.estimator.Calibrate(z.store.All())
	z.metrics.Calibrated(z.name, res, err)
	if err != nil {
		if errors.Is(err, history.ErrEmptyHistory) {
			z.log.Debugf("Calibration skipped: %v", err)
		} else {
			z.log.Warnf("Calibration failed, keeping %+v: %v", z.estimator.Parameters(), err)
		}
		return res, err
	}

	z.log.Infof("Calibrated from %d observations (%d skipped): a=%.4f b=%.4f d=%.4f mse=%.3f",
		res.Used, res.Skipped, res.Parameters.TimePerDegree, res.Parameters.OutdoorInfluence, res.Parameters.Offset, res.Loss)
	if z.queries != nil {
		if err := z.queries.UpsertModelParameters(context.Background(), z.name, res.Parameters); err != nil {
			z.log.Error(err)
		}
	}
	return res, nil
}

// Deviation is the zone temperature above the occupied setpoint.
func (z *ZoneController) Deviation() (float64, bool) {
	t, err := z.feed.Read(zoneGroup(z.name))
	if err != nil {
		return 0, false
	}
	return t - *z.cfg.OccupiedSetpoint, true
}

func (z *ZoneController) controlUpdateHandler(client mqtt.Client, message mqtt.Message) {
	topic := lastTopicSegment(message.Topic())
	value := string(message.Payload())
	z.log.Infof("Got MQTT control request: %v : %v", topic, value)

	switch topic {
	case "strategy":
		s := predictor.Strategy(value)
		if !z.predictor.Has(s) {
			z.log.Errorf("Unknown strategy `%v`", value)
			return
		}
		z.scheduler.SetStrategy(s)
		z.log.Infof("Updated strategy to `%v`", s)
	default:
		z.log.Errorf("Unknown control topic: %s", topic)
	}
}
