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

// Package db persists observations, fitted parameters and controller state
// in sqlite.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/antst/optstart/internal/history"
	"github.com/antst/optstart/internal/thermo_model"
)

var ErrNotFound = errors.New("not found")

type Queries struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Queries {
	return &Queries{db: db}
}

func (q *Queries) Close() error {
	return q.db.Close()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

type observationRow struct {
	ZoneName string `db:"zone_name"`
	history.Observation
}

func (q *Queries) InsertObservation(ctx context.Context, zone string, o history.Observation) error {
	const query = `
		INSERT INTO observation(zone_name, cycle_id, outdoor_temp, zone_temp, warmup_minutes, recorded_at)
		VALUES(:zone_name, :cycle_id, :outdoor_temp, :zone_temp, :warmup_minutes, :recorded_at);`
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now()
	}
	_, err := q.db.NamedExecContext(ctx, query, observationRow{ZoneName: zone, Observation: o})
	return errors.Wrapf(err, "insert observation for %s", zone)
}

// ListObservations returns the latest limit observations of a zone, oldest
// first.
func (q *Queries) ListObservations(ctx context.Context, zone string, limit int) ([]history.Observation, error) {
	const query = `
		SELECT outdoor_temp, zone_temp, warmup_minutes, recorded_at, cycle_id FROM (
			SELECT * FROM observation WHERE zone_name = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC;`
	var out []history.Observation
	if err := q.db.SelectContext(ctx, &out, query, zone, limit); err != nil {
		return nil, errors.Wrapf(err, "list observations for %s", zone)
	}
	return out, nil
}

// SaveObservation lets Queries act as a scheduler observation sink.
func (q *Queries) SaveObservation(zone string, o history.Observation) error {
	return q.InsertObservation(context.Background(), zone, o)
}

type modelParametersRow struct {
	ZoneName string `db:"zone_name"`
	thermo_model.Parameters
	UpdatedAt time.Time `db:"updated_at"`
}

func (q *Queries) UpsertModelParameters(ctx context.Context, zone string, p thermo_model.Parameters) error {
	const query = `
		INSERT INTO model_parameters(zone_name, alpha_a, alpha_b, alpha_d, updated_at)
		VALUES(:zone_name, :alpha_a, :alpha_b, :alpha_d, :updated_at)
		ON CONFLICT(zone_name) DO UPDATE SET
		alpha_a=excluded.alpha_a,
		alpha_b=excluded.alpha_b,
		alpha_d=excluded.alpha_d,
		updated_at=excluded.updated_at;`
	_, err := q.db.NamedExecContext(ctx, query, modelParametersRow{ZoneName: zone, Parameters: p, UpdatedAt: time.Now()})
	return errors.Wrapf(err, "upsert parameters for %s", zone)
}

func (q *Queries) GetModelParameters(ctx context.Context, zone string) (thermo_model.Parameters, error) {
	const query = `SELECT alpha_a, alpha_b, alpha_d FROM model_parameters WHERE zone_name = ?;`
	var p thermo_model.Parameters
	err := q.db.GetContext(ctx, &p, query, zone)
	return p, notFound(err)
}

type UpsertControllerValueParams struct {
	Name  string `db:"name"`
	Value string `db:"value"`
}

func (q *Queries) UpsertControllerValue(ctx context.Context, arg UpsertControllerValueParams) error {
	const query = `
		INSERT INTO controller(name, value, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
		value=excluded.value,
		updated_at=excluded.updated_at;`
	_, err := q.db.ExecContext(ctx, query, arg.Name, arg.Value, time.Now())
	return err
}

func (q *Queries) GetControllerValue(ctx context.Context, name string) (string, error) {
	var v string
	err := q.db.GetContext(ctx, &v, `SELECT value FROM controller WHERE name = ?;`, name)
	return v, notFound(err)
}

type SensorValue struct {
	Value     float64   `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (q *Queries) UpsertSensorValue(ctx context.Context, name string, value float64, at time.Time) error {
	const query = `
		INSERT INTO sensor(sensor_name, value, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(sensor_name) DO UPDATE SET
		value=excluded.value,
		updated_at=excluded.updated_at;`
	_, err := q.db.ExecContext(ctx, query, name, value, at)
	return err
}

func (q *Queries) GetSensorValue(ctx context.Context, name string) (SensorValue, error) {
	var v SensorValue
	err := q.db.GetContext(ctx, &v, `SELECT value, updated_at FROM sensor WHERE sensor_name = ?;`, name)
	return v, notFound(err)
}
