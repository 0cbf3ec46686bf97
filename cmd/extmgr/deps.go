// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net/http"

	"github.com/holomush/extmgr/internal/config"
	"github.com/holomush/extmgr/internal/locks"
	"github.com/holomush/extmgr/internal/observability"
	"github.com/holomush/extmgr/internal/store"
)

// Deps contains injectable dependencies shared by the subcommands.
// All fields with nil values use their default implementations.
type Deps struct {
	// StoreFactory opens the install record store and returns its closer.
	// Default: openStore
	StoreFactory func(ctx context.Context, cfg *config.Config) (store.InstallStore, func(), error)

	// LockerFactory creates the per-extension locker and returns its closer.
	// Default: openLocker
	LockerFactory func(ctx context.Context, cfg *config.Config) (locks.Locker, func(), error)

	// HTTPClient performs outbound catalog and archive requests.
	// Default: catalog client default
	HTTPClient *http.Client

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, register ...observability.RegisterFunc) ObservabilityServer

	// MigratorFactory opens a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// ObservabilityServer is the subset of observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// Migrator is the subset of store.Migrator used by the migrate commands.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.StoreFactory == nil {
		out.StoreFactory = openStore
	}
	if out.LockerFactory == nil {
		out.LockerFactory = openLocker
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, register ...observability.RegisterFunc) ObservabilityServer {
			return observability.NewServer(addr, version, ready, register...)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	return &out
}
