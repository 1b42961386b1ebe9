// Package coredb provides the database instance for the cart platform.
package coredb

import (
	"encore.dev/storage/sqldb"
)

// DB is the core database instance for the cart platform.
// It holds system settings and durable cart snapshots.
var DB = sqldb.NewDatabase("cartdb", sqldb.DatabaseConfig{
	Migrations: "./migrations",
})
