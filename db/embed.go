// Package db provides the embedded database migrations.
package db

import "embed"

// Migrations holds the versioned up/down SQL files applied by golang-migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the files.
const MigrationsDir = "migrations"
