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
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/pborman/getopt/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/antst/optstart/internal/logger"
	"github.com/antst/optstart/internal/predictor"
	"github.com/antst/optstart/internal/thermo_model"
)

const (
	defaultDBFile              = "~/.optstart.db"
	defaultConfigFile          = "config.yaml"
	DefaultAverageType         = "mean"
	defaultTickInterval        = time.Minute
	defaultCalibrationInterval = 24 * time.Hour
)

type Config struct {
	LogLevel            zapcore.Level          `yaml:"log_level"`
	MQTTConfig          *MQTTConfig            `yaml:"mqtt"`
	DBFile              string                 `yaml:"db_file"`
	MetricsAddr         string                 `yaml:"metrics_addr,omitempty"`
	TickInterval        time.Duration          `yaml:"tick_interval"`
	CalibrationInterval time.Duration          `yaml:"calibration_interval"`
	Outdoor             *OutdoorConfig         `yaml:"outdoor"`
	Zones               map[string]*ZoneConfig `yaml:"zones"`
	Reset               *ResetConfig           `yaml:"reset,omitempty"`
}

func defConfig() *Config {
	return &Config{
		LogLevel:   zapcore.InfoLevel,
		Zones:      make(map[string]*ZoneConfig),
		Outdoor:    NewOutdoorConfig(),
		MQTTConfig: NewMQTTConfig(),
		DBFile:     defaultDBFile,
	}
}

func prettyPrint(cfg *Config) {
	d, err := yaml.Marshal(cfg)
	if err != nil {
		logger.L().Error("Failed to marshal config for pretty print", err)
		return
	}
	logger.L().Debugf("--- Config ---\n%s\n\n", string(d))
}

func (cfg *Config) FillDefaults() {
	if cfg.MQTTConfig == nil {
		cfg.MQTTConfig = &MQTTConfig{}
	}
	cfg.MQTTConfig.FillDefaults()
	if cfg.Outdoor == nil {
		cfg.Outdoor = &OutdoorConfig{}
	}
	cfg.Outdoor.FillDefaults()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.CalibrationInterval <= 0 {
		cfg.CalibrationInterval = defaultCalibrationInterval
	}
	for name, z := range cfg.Zones {
		if z == nil {
			z = NewZoneConfig()
			cfg.Zones[name] = z
		}
		z.FillDefaults(name, cfg.MQTTConfig.ControlTopic)
	}
	if cfg.Reset != nil {
		cfg.Reset.FillDefaults(cfg.MQTTConfig.ControlTopic)
	}
}

// ZoneNames returns zone names in a stable order.
func (cfg *Config) ZoneNames() []string {
	names := make([]string, 0, len(cfg.Zones))
	for n := range cfg.Zones {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate reports the first setting that cannot run. Call after
// FillDefaults.
func (cfg *Config) Validate() error {
	for _, name := range cfg.ZoneNames() {
		z := cfg.Zones[name]
		switch predictor.Strategy(z.Strategy) {
		case predictor.StrategyPhysicalModel, predictor.StrategyNearestNeighbor, predictor.StrategyRuntimePerDegree:
		default:
			return errors.Errorf("zone %s: unknown strategy %q", name, z.Strategy)
		}
		if len(z.Sensors) == 0 {
			return errors.Errorf("zone %s: no sensors", name)
		}
		if *z.Comfort.Lower > *z.Comfort.Upper {
			return errors.Errorf("zone %s: comfort lower %.1f above upper %.1f", name, *z.Comfort.Lower, *z.Comfort.Upper)
		}
		if *z.Limits.LateStart < 0 || *z.Limits.LateStart > *z.Limits.EarlyStart {
			return errors.Errorf("zone %s: invalid limits [%.0f, %.0f]", name, *z.Limits.LateStart, *z.Limits.EarlyStart)
		}
		if !thermo_model.Method(z.Estimator.Method).Valid() {
			return errors.Errorf("zone %s: unknown estimator method %q", name, z.Estimator.Method)
		}
		if !thermo_model.BTerm(z.Estimator.BTerm).Valid() {
			return errors.Errorf("zone %s: unknown b_term %q", name, z.Estimator.BTerm)
		}
		if _, err := z.Schedule.Start(); err != nil {
			return errors.WithMessagef(err, "zone %s", name)
		}
	}
	if r := cfg.Reset; r != nil && r.Min > r.Max {
		return errors.Errorf("reset: min %.1f above max %.1f", r.Min, r.Max)
	}
	return nil
}

// Load reads configFile (a missing file gives the defaults), fills
// defaults and validates.
func Load(configFile string) (*Config, error) {
	cfg := defConfig()
	if err := readFile(cfg, configFile); err != nil {
		return nil, err
	}
	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid config")
	}
	return cfg, nil
}

func Get() *Config {
	logLevel := getopt.StringLong("log-level", 'l', "", "log levels: debug, info, warn, error, dpanic, panic, fatal")
	configFile := getopt.StringLong("config", 'c', defaultConfigFile, "config file pathname")
	dbFile := getopt.StringLong("db", 'd', "", "DB file pathname")
	help := getopt.BoolLong("help", 'h', "display help")

	getopt.Parse()
	if *help {
		getopt.Usage()
		os.Exit(0)
	}

	cfg, err := Load(*configFile)
	if err != nil {
		logger.L().Fatalf("GetConfig: %v", err)
	}
	logger.L().Infof("Using config file `%v`", *configFile)

	if *dbFile != "" {
		cfg.DBFile = *dbFile
	}
	logger.L().Infof("Using DB file `%v`", cfg.DBFile)

	if *logLevel != "" {
		if err := cfg.LogLevel.Set(*logLevel); err != nil {
			logger.L().Errorf("Wrong log level `%v`: %v", *logLevel, err)
		}
	}
	logger.SetLogLevel(cfg.LogLevel)

	prettyPrint(cfg)

	return cfg
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

func readFile(cfg *Config, configFileName string) error {
	if !fileExists(configFileName) {
		return nil
	}

	f, err := os.Open(configFileName)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	return nil
}
