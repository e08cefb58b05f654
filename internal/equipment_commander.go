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
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/antst/optstart/internal/config"
	"github.com/antst/optstart/internal/logger"
	"github.com/antst/optstart/internal/safe_mqtt"
)

type equipmentCommand struct {
	Zone      string    `json:"zone"`
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

// EquipmentCommander publishes start/stop commands to per-zone topics.
type EquipmentCommander struct {
	lock   sync.Mutex
	mqtt   safe_mqtt.MqttClient
	topics map[string]*config.CommandsConfig
}

func NewEquipmentCommander(_mqtt safe_mqtt.MqttClient) *EquipmentCommander {
	return &EquipmentCommander{mqtt: _mqtt, topics: make(map[string]*config.CommandsConfig)}
}

func (b *EquipmentCommander) AddZone(zone string, cfg *config.CommandsConfig) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.topics[zone] = cfg
}

func (b *EquipmentCommander) StartEquipment(zone string, ts time.Time) error {
	return b.publish(zone, "start", ts)
}

func (b *EquipmentCommander) StopEquipment(zone string, ts time.Time) error {
	return b.publish(zone, "stop", ts)
}

func (b *EquipmentCommander) publish(zone, command string, ts time.Time) error {
	b.lock.Lock()
	cfg, ok := b.topics[zone]
	b.lock.Unlock()
	if !ok {
		return errors.Errorf("no command topics for zone %s", zone)
	}

	topic := cfg.StartTopic
	if command == "stop" {
		topic = cfg.StopTopic
	}
	payload, err := json.Marshal(equipmentCommand{Zone: zone, Command: command, Timestamp: ts})
	if err != nil {
		return errors.Wrap(err, "marshal command")
	}

	if err := waitToken(b.mqtt.SafePublish(topic, mqttQoS, false, payload)); err != nil {
		return errors.Wrapf(err, "publish %s to %s", command, topic)
	}
	logger.Named("commander").Infof("Sent %s for zone %s to %s", command, zone, topic)
	return nil
}
