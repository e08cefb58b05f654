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

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/antst/optstart/internal"
	"github.com/antst/optstart/internal/config"
	"github.com/antst/optstart/internal/db"
	"github.com/antst/optstart/internal/logger"
	"github.com/antst/optstart/internal/metrics"
	"github.com/antst/optstart/internal/safe_mqtt"
)

// Build version, overridden with flag during build.
var version = "devel"

func main() {
	defer logger.Close()
	logger.L().Warnf("Optimal Start Controller, version: %+v", version)

	cfg := config.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queries := db.OpenDatabase(cfg.DBFile)
	defer queries.Close()

	client := safe_mqtt.InitMQTTClient(cfg.MQTTConfig.URL, clientID(cfg.MQTTConfig.ControlTopic))
	defer client.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.L().Infof("Serving metrics on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.L().Errorf("Metrics server: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	c, err := internal.NewOptimalStartController(cfg, client, queries, m)
	if err != nil {
		logger.L().Errorf("Cannot start: %v", err)
		return
	}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.L().Error(err)
	}
}

// clientID is stable per host and control topic so the broker keeps the
// session across restarts.
func clientID(controlTopic string) string {
	host, _ := os.Hostname()
	return "optstart-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(host+"/"+controlTopic)).String()[:8]
}
