// Package database holds integration tests for the PostgreSQL-backed
// conversation store, running against a real server.
package database

import (
	"testing"

	"github.com/refinehq/refinery/pkg/database"
	"github.com/refinehq/refinery/test/util"
)

// NewTestClient creates a database client over a migrated per-test
// schema. In CI (when CI_DATABASE_URL is set) it connects to the
// external PostgreSQL service container; locally it spins up a shared
// testcontainer. Cleanup is handled by util.SetupTestDatabase.
func NewTestClient(t *testing.T) *database.Client {
	db := util.SetupTestDatabase(t)
	return database.NewClientFromDB(db)
}
