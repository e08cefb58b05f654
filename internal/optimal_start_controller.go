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
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/antst/optstart/internal/config"
	"github.com/antst/optstart/internal/db"
	"github.com/antst/optstart/internal/logger"
	"github.com/antst/optstart/internal/metrics"
	"github.com/antst/optstart/internal/safe_mqtt"
)

const recalibrateBuffer = 4

// OptimalStartController runs every zone on one loop: scheduler ticks,
// periodic and requested calibration, and the optional setpoint reset.
type OptimalStartController struct {
	cfg             *config.Config
	queries         *db.Queries
	mqtt            safe_mqtt.MqttClient
	feed            *SensorFeed
	commander       *EquipmentCommander
	zones           []*ZoneController
	reset           *ResetController
	enabled         atomic.Bool
	recalibrateChan chan struct{}
	log             *zap.SugaredLogger
}

func NewOptimalStartController(
	_cfg *config.Config, _mqtt safe_mqtt.MqttClient, _q *db.Queries, _m *metrics.Metrics,
) (*OptimalStartController, error) {
	c := &OptimalStartController{
		cfg:             _cfg,
		queries:         _q,
		mqtt:            _mqtt,
		recalibrateChan: make(chan struct{}, recalibrateBuffer),
		log:             logger.Named("controller"),
	}
	controlTopic := _cfg.MQTTConfig.ControlTopic

	c.feed = NewSensorFeed(_mqtt, controlTopic, _q)
	c.feed.AddGroup(outdoorGroup, _cfg.Outdoor.Sensors, _cfg.Outdoor.AverageType)
	c.commander = NewEquipmentCommander(_mqtt)

	for _, name := range _cfg.ZoneNames() {
		zcfg := _cfg.Zones[name]
		c.commander.AddZone(name, zcfg.Commands)
		zone, err := newZoneController(name, zcfg, _mqtt, controlTopic, _q, c.feed, c.commander, _m)
		if err != nil {
			return nil, err
		}
		c.zones = append(c.zones, zone)
	}

	if _cfg.Reset != nil {
		c.reset = NewResetController(_cfg.Reset, _mqtt, _m)
	}

	c.setupMQTTSubscriptions()
	c.setEnabled(c.readValueWithDefault("enabled", "true"))
	return c, nil
}

func (c *OptimalStartController) setupMQTTSubscriptions() {
	controlTopic := c.cfg.MQTTConfig.ControlTopic
	c.mqtt.SafeSubscribe(controlTopic+"/log_level", mqttQoS, c.controlUpdateHandler)
	c.mqtt.SafeSubscribe(controlTopic+"/enable", mqttQoS, c.controlUpdateHandler)
	c.mqtt.SafeSubscribe(controlTopic+"/recalibrate", mqttQoS, c.controlUpdateHandler)
}

// Run calibrates once, then ticks until ctx is cancelled.
func (c *OptimalStartController) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	calibration := time.NewTicker(c.cfg.CalibrationInterval)
	defer calibration.Stop()

	c.Calibrate()
	c.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Stopping")
			return ctx.Err()
		case now := <-ticker.C:
			c.Tick(now)
		case <-calibration.C:
			c.Calibrate()
		case <-c.recalibrateChan:
			c.Calibrate()
		}
	}
}

// Tick evaluates every zone and the setpoint reset at now. While disabled
// only warm-ups already running are followed to completion.
func (c *OptimalStartController) Tick(now time.Time) {
	enabled := c.enabled.Load()
	for _, zone := range c.zones {
		if !enabled && !zone.Running() {
			continue
		}
		state := zone.Tick(now)
		c.log.Debugf("Zone %s: %s", zone.name, state)
	}
	if !enabled {
		return
	}
	if c.reset != nil {
		oat, err := c.feed.Read(outdoorGroup)
		if err != nil {
			c.log.Debugf("Reset without outdoor temperature: %v", err)
			oat = math.NaN()
		}
		c.reset.Update(c.zones, oat)
	}
}

func (c *OptimalStartController) Calibrate() {
	for _, zone := range c.zones {
		zone.Calibrate()
	}
}

func (c *OptimalStartController) controlUpdateHandler(client mqtt.Client, message mqtt.Message) {
	topic := lastTopicSegment(message.Topic())
	c.log.Infof("Got MQTT control request: %v : %v", topic, string(message.Payload()))
	switch topic {
	case "log_level":
		if err := c.cfg.LogLevel.Set(string(message.Payload())); err != nil {
			c.log.Errorf("Wrong log level `%v`", string(message.Payload()))
		} else {
			logger.SetLogLevel(c.cfg.LogLevel)
			c.log.Infof("Updated loglevel to `%v`", c.cfg.LogLevel.String())
		}
	case "enable":
		c.setEnabled(string(message.Payload()))
	case "recalibrate":
		select {
		case c.recalibrateChan <- struct{}{}:
		default:
			c.log.Warn("Recalibration already pending")
		}
	}
}

func (c *OptimalStartController) setEnabled(val string) {
	switch strings.ToLower(val) {
	case "true", "on":
		c.mqtt.SafePublish(c.cfg.MQTTConfig.ControlTopic+"/active", mqttQoS, true, "ON")
		c.enabled.Store(true)
	case "false", "off":
		c.mqtt.SafePublish(c.cfg.MQTTConfig.ControlTopic+"/active", mqttQoS, true, "OFF")
		c.enabled.Store(false)
	default:
		c.log.Warnf("Invalid value for enabled: %v", val)
		return
	}
	if err := c.writeValue("enabled", strconv.FormatBool(c.enabled.Load())); err != nil {
		c.log.Error(err)
	}
}

func (c *OptimalStartController) Enabled() bool {
	return c.enabled.Load()
}

func (c *OptimalStartController) writeValue(name, value string) error {
	if c.queries == nil {
		return nil
	}
	return c.queries.UpsertControllerValue(
		context.Background(),
		db.UpsertControllerValueParams{Name: name, Value: value},
	)
}

func (c *OptimalStartController) readValueWithDefault(name string, defValue string) string {
	if c.queries == nil {
		return defValue
	}
	val, err := c.queries.GetControllerValue(context.Background(), name)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			c.log.Error(err)
		}
		val = defValue
	}
	return val
}
