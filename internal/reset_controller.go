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
	"fmt"
	"sort"
	"strconv"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/antst/optstart/internal/config"
	"github.com/antst/optstart/internal/logger"
	"github.com/antst/optstart/internal/metrics"
	"github.com/antst/optstart/internal/predictor"
	"github.com/antst/optstart/internal/safe_mqtt"
)

// ResetController runs the trim-and-respond setpoint reset once per tick
// and publishes the resulting setpoint. Deviations come from the local
// zones plus any published under the deviation topic prefix.
type ResetController struct {
	mu       sync.Mutex
	cfg      *config.ResetConfig
	mqtt     safe_mqtt.MqttClient
	metrics  *metrics.Metrics
	reset    *predictor.RequestAggregation
	external map[string]float64
	log      *zap.SugaredLogger
}

func NewResetController(_cfg *config.ResetConfig, _mqtt safe_mqtt.MqttClient, _m *metrics.Metrics) *ResetController {
	r := &ResetController{
		cfg:      _cfg,
		mqtt:     _mqtt,
		metrics:  _m,
		reset:    predictor.NewRequestAggregation(_cfg.Predictor()),
		external: make(map[string]float64),
		log:      logger.Named("reset"),
	}
	if _cfg.DeviationTopicPrefix != "" {
		_mqtt.SafeSubscribe(_cfg.DeviationTopicPrefix+"/+", mqttQoS, r.deviationHandler)
	}
	return r
}

func (r *ResetController) deviationHandler(client mqtt.Client, message mqtt.Message) {
	v, err := strconv.ParseFloat(string(message.Payload()), 64)
	if err != nil {
		r.log.Error(err)
		return
	}
	r.mu.Lock()
	r.external[lastTopicSegment(message.Topic())] = v
	r.mu.Unlock()
}

func (r *ResetController) deviations(zones []*ZoneController) []float64 {
	out := make([]float64, 0, len(zones))
	for _, z := range zones {
		if d, ok := z.Deviation(); ok {
			out = append(out, d)
		}
	}

	r.mu.Lock()
	keys := make([]string, 0, len(r.external))
	for k := range r.external {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, r.external[k])
	}
	r.mu.Unlock()
	return out
}

// Update runs one reset cycle at outdoor temperature oat.
func (r *ResetController) Update(zones []*ZoneController, oat float64) predictor.Adjustment {
	adj := r.reset.Respond(r.deviations(zones), oat)
	r.metrics.ResetAdjusted(adj.Requests, adj.Setpoint)

	if adj.Setpoint != adj.Previous {
		r.log.Infof("Setpoint %.2f -> %.2f (%d requests, max %.2f)", adj.Previous, adj.Setpoint, adj.Requests, adj.Max)
	}
	if err := waitToken(r.mqtt.SafePublish(r.cfg.OutputTopic, mqttQoS, true, fmt.Sprintf("%.1f", adj.Setpoint))); err != nil {
		r.log.Error(err)
	}
	return adj
}
