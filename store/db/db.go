// Package db selects the store driver for the configured database.
package db

import (
	"github.com/pkg/errors"

	"github.com/refind-ai/refind/internal/profile"
	"github.com/refind-ai/refind/store"
	"github.com/refind-ai/refind/store/db/postgres"
	"github.com/refind-ai/refind/store/db/sqlite"
)

// NewDBDriver creates a new DB driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "postgres":
		return postgres.NewDB(profile)
	case "sqlite":
		return sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
}
