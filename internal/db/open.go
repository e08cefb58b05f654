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

package db

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/antst/optstart/internal/logger"
)

//go:embed schema.sql
var schema string

// sqlite has a single writer; one connection also keeps :memory: databases
// shared across calls.
const maxOpenConns = 1

// Open connects to the sqlite file and creates missing tables.
func Open(dbFile string) (*Queries, error) {
	path := expandHome(dbFile)
	sqlDB, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, errors.Wrapf(err, "ping %s", path)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return New(sqlDB), nil
}

// OpenDatabase is Open for startup code: a database that cannot be opened
// is fatal.
func OpenDatabase(dbFile string) *Queries {
	q, err := Open(dbFile)
	if err != nil {
		logger.L().Panic(err)
	}
	return q
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
