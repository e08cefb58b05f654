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
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

const (
	mqttQoS          = 1
	publishTimeout   = 5 * time.Second
	outdoorGroup     = "outdoor"
	zoneGroupPrefix  = "zone/"
	controlZoneGroup = "/zone/"
)

var zeroTS time.Time

func init() {
	zeroTS = time.UnixMicro(0)
}

func zoneGroup(zone string) string {
	return zoneGroupPrefix + zone
}

func lastTopicSegment(topic string) string {
	return topic[strings.LastIndex(topic, "/")+1:]
}

func extractF64PlainOrJson(message mqtt.Message, JSONEntry *string) (float64, error) {
	if JSONEntry == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(string(message.Payload())), 64)
		return v, errors.Wrapf(err, "plain value on %v", message.Topic())
	}

	var valMap map[string]interface{}
	if err := json.Unmarshal(message.Payload(), &valMap); err != nil {
		return 0, errors.Wrapf(err, "json unmarshal error with : %v : %v", message.Topic(), string(message.Payload()))
	}

	v, ok := valMap[*JSONEntry]
	if !ok {
		return 0, errors.Errorf("not found: `%v` in `%v`: %v", *JSONEntry, message.Topic(), string(message.Payload()))
	}

	t0, ok := v.(float64)
	if !ok {
		return 0, errors.Errorf("cannot cast `%v` to float64 in : %v : %v", v, message.Topic(), string(message.Payload()))
	}

	return t0, nil
}

// waitToken waits for a publish acknowledgement and returns its error.
func waitToken(token mqtt.Token) error {
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("timed out after %v", publishTimeout)
	}
	return token.Error()
}
